// Package monitor implements the topic monitor: producers post to topics
// without blocking, and consumers query or wait for topic generations to
// advance.
//
// The obvious design, a condition variable tickled by Post, does not work
// because Post must be safe on the signal path, where nothing may lock. So
// Post announces changes through an atomic status word and, when someone is
// parked, a signal-safe binary semaphore. In the wait case:
//
//   - A goroutine fetches the generations, sees nothing new, and tries to
//     become the reader by swapping StatusNeedsWakeup into the status word.
//   - If that succeeds it parks on the semaphore; the next Post wakes it.
//   - If it fails, either a Post just landed (so re-check) or another
//     goroutine is already the reader. Non-readers park on the condition
//     variable and are woken when the reader (or any flush) broadcasts.
//
// At most one goroutine is ever parked on the semaphore.
package monitor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/topicmon/notify"
	"github.com/maxpert/topicmon/telemetry"
	"github.com/maxpert/topicmon/topic"
	"github.com/rs/zerolog/log"
)

// StatusNeedsWakeup is the status value meaning "no pending topics, and a
// reader is parked on the notifier and must be signalled". It is never set
// together with a topic bit.
const StatusNeedsWakeup = topic.NeedsWakeupBit

const statusNeedsWakeup = uint32(StatusNeedsWakeup)

// Options configures a TopicMonitor.
type Options struct {
	Notifier notify.NotifierOptions

	// Sema overrides the notifier built from Notifier. The monitor takes
	// ownership of it.
	Sema notify.Notifier
}

// TopicMonitor tracks topic generations. It permits querying the current
// generations and blocking until any of a set of topics advances.
type TopicMonitor struct {
	// mu guards current and hasReader.
	mu sync.Mutex

	// cond broadcasts ledger changes and reader hand-offs. Tied to mu.
	cond *sync.Cond

	current topic.GenerationsList

	// hasReader is true while some goroutine is responsible for calling
	// sema.Wait and relaying the result through cond.
	hasReader bool

	// status holds an 8-bit value:
	//   0:                 no changed topics, nobody waiting
	//   StatusNeedsWakeup: no changed topics, the reader needs a wakeup
	//   anything else:     some topics changed, nobody waiting
	// Only the low byte is used; sync/atomic has no 8-bit type.
	status atomic.Uint32

	// sema carries wakeups from Post to the reader. While status is
	// StatusNeedsWakeup the reader has committed to sema.Wait, and the next
	// Post must balance it with sema.Signal.
	sema notify.Notifier
}

// New creates a topic monitor with all generations at zero.
func New(opts Options) (*TopicMonitor, error) {
	sema := opts.Sema
	if sema == nil {
		var err error
		sema, err = notify.NewNotifier(opts.Notifier)
		if err != nil {
			return nil, fmt.Errorf("topic monitor notifier: %w", err)
		}
	}

	m := &TopicMonitor{sema: sema}
	m.cond = sync.NewCond(&m.mu)
	log.Debug().Str("backend", string(sema.Backend())).Msg("Topic monitor created")
	return m, nil
}

// Post marks that topic t happened.
//
// Post is safe on the signal path: it never blocks, never allocates and never
// takes a lock.
func (m *TopicMonitor) Post(t topic.Topic) {
	if !t.Valid() {
		panic("topic monitor: post to undefined topic")
	}
	bit := uint32(t.Bit())

	// CAS in our bit, capturing the old status value.
	var oldStatus uint32
	for {
		oldStatus = m.status.Load()
		// Clear the wakeup bit and set our topic bit.
		newStatus := (oldStatus &^ statusNeedsWakeup) | bit
		if m.status.CompareAndSwap(oldStatus, newStatus) {
			break
		}
	}
	if (oldStatus == statusNeedsWakeup) != (oldStatus&statusNeedsWakeup != 0) {
		panic("topic monitor: wakeup bit set together with topic bits")
	}

	// Someone already posted this topic and nobody has flushed it yet.
	if oldStatus&bit != 0 {
		return
	}

	// We set a new bit. Wake the reader if one committed to waiting.
	// sync/atomic operations are sequentially consistent, so the CAS above
	// is ordered before the Signal and the reader observes our bit.
	if oldStatus&statusNeedsWakeup != 0 {
		m.sema.Signal()
	}
}

// updatedGensLocked applies pending posts to the ledger and returns a copy
// of it. m.mu must be held.
func (m *TopicMonitor) updatedGensLocked() topic.GenerationsList {
	// Atomically take the pending topics, swapping in 0. Nothing pending
	// (likely) or a parked reader means there is nothing to apply.
	var changed uint32
	for {
		changed = m.status.Load()
		if changed == 0 || changed == statusNeedsWakeup {
			return m.current
		}
		if m.status.CompareAndSwap(changed, 0) {
			break
		}
	}
	if changed&statusNeedsWakeup != 0 {
		panic("topic monitor: wakeup bit set while flushing topics")
	}

	// Each topic advances by exactly one however many posts coalesced.
	for _, t := range topic.All() {
		if changed&uint32(t.Bit()) == 0 {
			continue
		}
		gen := m.current.Get(t) + 1
		m.current.Set(t, gen)
		telemetry.TopicUpdatesTotal.With(t.String()).Inc()
		log.Debug().Stringer("topic", t).Uint64("generation", gen).Msg("Updating topic")
	}

	m.cond.Broadcast()
	return m.current
}

// updatedGens returns the current generations, applying pending posts.
func (m *TopicMonitor) updatedGens() topic.GenerationsList {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatedGensLocked()
}

// CurrentGenerations returns the current generation of every topic.
func (m *TopicMonitor) CurrentGenerations() topic.GenerationsList {
	return m.updatedGens()
}

// GenerationForTopic returns the current generation of t.
func (m *TopicMonitor) GenerationForTopic(t topic.Topic) topic.Generation {
	gens := m.CurrentGenerations()
	return gens.Get(t)
}

// tryUpdateGensMaybeBecomingReader tries to move gens to something newer.
//
// If gens is stale it is updated in place and false is returned. If gens is
// current and nobody is reading, this goroutine becomes the reader: gens is
// left untouched and true is returned, and the caller must wait on the
// semaphore and broadcast when done. If gens is current and someone else is
// reading, it waits on the condition variable and tries again.
func (m *TopicMonitor) tryUpdateGensMaybeBecomingReader(gens *topic.GenerationsList) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		current := m.updatedGensLocked()
		if !gens.Equal(&current) {
			*gens = current
			return false
		}

		// Holding mu, so no other goroutine can become reader concurrently.
		if m.hasReader {
			m.cond.Wait()
			continue
		}

		if m.status.Load()&statusNeedsWakeup != 0 {
			panic("topic monitor: wakeup bit set with no reader")
		}

		// Claim the reader role. Failure means a post just arrived.
		if !m.status.CompareAndSwap(0, statusNeedsWakeup) {
			telemetry.ReaderElectionRacesTotal.Inc()
			continue
		}

		// From here every new topic post must signal us.
		m.hasReader = true
		telemetry.ReaderElectionsTotal.Inc()
		return true
	}
}

// awaitGens blocks until the generations differ from input and returns them.
func (m *TopicMonitor) awaitGens(input topic.GenerationsList) topic.GenerationsList {
	gens := input
	for gens.Equal(&input) {
		if !m.tryUpdateGensMaybeBecomingReader(&gens) {
			continue
		}

		// We are the reader and no longer hold the lock.
		if !gens.Equal(&input) {
			panic("topic monitor: generations changed under the reader")
		}

		start := time.Now()
		m.sema.Wait()
		telemetry.ReaderWaitSeconds.With(string(m.sema.Backend())).Observe(time.Since(start).Seconds())

		// Stop being the reader and wake everyone waiting for us to finish.
		m.mu.Lock()
		gens = m.current
		if !m.hasReader {
			m.mu.Unlock()
			panic("topic monitor: reader flag cleared while reading")
		}
		m.hasReader = false
		m.cond.Broadcast()
		m.mu.Unlock()
	}
	return gens
}

// Check reports whether any valid topic in gens advanced.
//
// For each valid topic, the current generation is compared with gens. If
// some topic is newer, gens is updated and Check returns true. Otherwise, if
// wait is set, Check blocks until a valid topic advances; if not, it returns
// false immediately and leaves gens untouched.
//
// Passing a generation newer than anything published is a programming error
// and panics. A list with no valid topics returns false without touching the
// ledger.
func (m *TopicMonitor) Check(gens *topic.GenerationsList, wait bool) bool {
	if !gens.AnyValid() {
		return false
	}

	current := m.updatedGens()
	changed := false
	for {
		for _, t := range topic.All() {
			if !gens.IsValid(t) {
				continue
			}
			if gens.Get(t) > current.Get(t) {
				panic(fmt.Sprintf("topic monitor: incoming generation %d for %s exceeds published %d",
					gens.Get(t), t, current.Get(t)))
			}
			if gens.Get(t) < current.Get(t) {
				gens.Set(t, current.Get(t))
				changed = true
			}
		}

		if !wait || changed {
			break
		}

		current = m.awaitGens(current)
	}

	telemetry.CheckCallsTotal.With(checkMode(wait), checkResult(changed)).Inc()
	return changed
}

// Status returns the raw status byte.
func (m *TopicMonitor) Status() uint8 {
	return uint8(m.status.Load())
}

// HasReader reports whether a goroutine currently owns the reader role.
func (m *TopicMonitor) HasReader() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasReader
}

// Backend names the notifier implementation in use.
func (m *TopicMonitor) Backend() notify.Backend {
	return m.sema.Backend()
}

func checkMode(wait bool) string {
	if wait {
		return "wait"
	}
	return "nowait"
}

func checkResult(changed bool) string {
	if changed {
		return "changed"
	}
	return "unchanged"
}
