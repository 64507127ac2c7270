package topic

import (
	"math"
	"strconv"
	"strings"
)

// Generation counts (possibly coalesced) posts to a topic. It never decreases.
type Generation = uint64

// InvalidGeneration marks a topic as not of interest.
const InvalidGeneration Generation = math.MaxUint64

// GenerationsList holds one generation per topic. It has no locking of its
// own; callers serialize access.
//
// The zero value is all-zero, not all-invalid. Use InvalidGenerations for a
// list that ignores every topic. Callers may rely on the difference between a
// freshly constructed list and an explicitly uninterested one.
type GenerationsList struct {
	gens [Count]Generation
}

// NewGenerationsList returns an all-zero list.
func NewGenerationsList() GenerationsList {
	return GenerationsList{}
}

// InvalidGenerations returns a list containing InvalidGeneration only.
func InvalidGenerations() GenerationsList {
	var l GenerationsList
	for i := range l.gens {
		l.gens[i] = InvalidGeneration
	}
	return l
}

// Get returns the generation for t.
func (l *GenerationsList) Get(t Topic) Generation {
	return l.gens[t]
}

// Set sets the generation for t.
func (l *GenerationsList) Set(t Topic, g Generation) {
	l.gens[t] = g
}

// Update copies every generation from other into l.
func (l *GenerationsList) Update(other *GenerationsList) {
	l.gens = other.gens
}

// SetMinFrom sets t to the smaller of l's and other's value.
func (l *GenerationsList) SetMinFrom(t Topic, other *GenerationsList) {
	if l.gens[t] > other.gens[t] {
		l.gens[t] = other.gens[t]
	}
}

// IsValid reports whether t is of interest.
func (l *GenerationsList) IsValid(t Topic) bool {
	return l.gens[t] != InvalidGeneration
}

// AnyValid reports whether any topic is of interest.
func (l *GenerationsList) AnyValid() bool {
	for _, g := range l.gens {
		if g != InvalidGeneration {
			return true
		}
	}
	return false
}

// Equal reports whether both lists hold identical generations.
func (l *GenerationsList) Equal(other *GenerationsList) bool {
	return l.gens == other.gens
}

// Array returns the generations in topic order.
func (l *GenerationsList) Array() [Count]Generation {
	return l.gens
}

// Describe renders the list as comma-separated values, -1 for invalid.
func (l *GenerationsList) Describe() string {
	var b strings.Builder
	for i, g := range l.gens {
		if i > 0 {
			b.WriteByte(',')
		}
		if g == InvalidGeneration {
			b.WriteString("-1")
		} else {
			b.WriteString(strconv.FormatUint(g, 10))
		}
	}
	return b.String()
}

// Map returns valid generations keyed by topic name.
func (l *GenerationsList) Map() map[string]Generation {
	m := make(map[string]Generation, Count)
	for _, t := range All() {
		if l.IsValid(t) {
			m[t.String()] = l.gens[t]
		}
	}
	return m
}
