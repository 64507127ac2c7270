// Package topic defines the closed set of things that can happen and the
// per-topic generation counters used to observe them.
//
// A topic is "a thing that can happen": a SIGINT, a child exit, an internal
// process exit. Posting to a topic bumps its generation; a consumer that saw
// generation N and now sees N+k knows the topic was posted at least once.
// Posts may coalesce, so k is never an exact post count.
package topic

import (
	"fmt"
	"strings"
)

// Topic identifies one class of occurrence. Each topic owns bit 1<<t in the
// monitor's status word.
type Topic uint8

const (
	SigHupInt    Topic = iota // SIGHUP and SIGINT
	SigChld                   // SIGCHLD
	InternalExit              // an internal process exited

	// Count is the number of topics. The status word reserves its top bit,
	// so at most MaxTopics topics can exist.
	Count = 3
)

// MaxTopics bounds Count: one status bit per topic plus the wakeup bit in a byte.
const MaxTopics = 7

// NeedsWakeupBit is the status word bit reserved for "a reader is parked".
// No topic bit may overlap it.
const NeedsWakeupBit uint8 = 1 << MaxTopics

var names = [Count]string{
	SigHupInt:    "sighupint",
	SigChld:      "sigchld",
	InternalExit: "internal_exit",
}

// All returns every topic in bit order.
func All() [Count]Topic {
	return [Count]Topic{SigHupInt, SigChld, InternalExit}
}

// Bit returns the status-word bit owned by t.
func (t Topic) Bit() uint8 {
	return 1 << t
}

// Valid reports whether t is one of the defined topics.
func (t Topic) Valid() bool {
	return t < Count
}

func (t Topic) String() string {
	if !t.Valid() {
		return fmt.Sprintf("topic(%d)", uint8(t))
	}
	return names[t]
}

// Parse resolves a topic by name. Matching is case-insensitive.
func Parse(name string) (Topic, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range All() {
		if names[t] == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown topic %q", name)
}

// Set is a bitmask of topics, using the same bit layout as the status word.
type Set uint8

// SetOf builds a Set from the given topics. No arguments yields the empty set.
func SetOf(topics ...Topic) Set {
	var s Set
	for _, t := range topics {
		s |= Set(t.Bit())
	}
	return s
}

// AllSet contains every topic.
func AllSet() Set {
	all := All()
	return SetOf(all[:]...)
}

// Has reports whether t is in s.
func (s Set) Has(t Topic) bool {
	return s&Set(t.Bit()) != 0
}

// Empty reports whether s contains no topics.
func (s Set) Empty() bool {
	return s == 0
}

// Topics lists the members of s in bit order.
func (s Set) Topics() []Topic {
	var out []Topic
	for _, t := range All() {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s Set) String() string {
	parts := make([]string, 0, Count)
	for _, t := range s.Topics() {
		parts = append(parts, t.String())
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Compile-time guard: adding topics past MaxTopics would collide with the
// wakeup bit.
var _ [MaxTopics - Count]struct{}
