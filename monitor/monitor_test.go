package monitor

import (
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maxpert/topicmon/notify"
	"github.com/maxpert/topicmon/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

func newMemMonitor(t *testing.T) (*TopicMonitor, *notify.MemNotifier) {
	t.Helper()
	sema := notify.NewMemNotifier()
	m, err := New(Options{Sema: sema})
	require.NoError(t, err)
	return m, sema
}

// backendMonitors builds one monitor per notifier backend available here.
func backendMonitors(t *testing.T) map[string]*TopicMonitor {
	t.Helper()
	opts := map[string]notify.NotifierOptions{
		"channel": {Backend: notify.BackendChannel},
	}
	switch runtime.GOOS {
	case "windows", "js", "wasip1", "plan9":
	default:
		opts["pipe"] = notify.NotifierOptions{Backend: notify.BackendPipe}
		opts["pipe_nonblocking"] = notify.NotifierOptions{Backend: notify.BackendPipe, ForceNonBlocking: true}
	}
	if runtime.GOOS == "linux" {
		opts["eventfd"] = notify.NotifierOptions{Backend: notify.BackendEventfd}
	}

	out := make(map[string]*TopicMonitor, len(opts))
	for name, o := range opts {
		m, err := New(Options{Notifier: o})
		require.NoError(t, err)
		t.Cleanup(func() { m.sema.Close() })
		out[name] = m
	}
	return out
}

// only returns an invalid list with t set to g.
func only(t topic.Topic, g topic.Generation) topic.GenerationsList {
	gens := topic.InvalidGenerations()
	gens.Set(t, g)
	return gens
}

// checkAsync runs a waiting Check in a goroutine and returns its result channel.
func checkAsync(m *TopicMonitor, gens *topic.GenerationsList) <-chan bool {
	res := make(chan bool, 1)
	go func() {
		res <- m.Check(gens, true)
	}()
	return res
}

func TestNew_StartsAtZero(t *testing.T) {
	m, _ := newMemMonitor(t)

	gens := m.CurrentGenerations()
	for _, tp := range topic.All() {
		assert.Equal(t, topic.Generation(0), gens.Get(tp))
		assert.Equal(t, topic.Generation(0), m.GenerationForTopic(tp))
	}
	assert.Equal(t, uint8(0), m.Status())
	assert.False(t, m.HasReader())
}

func TestPost_SetsPendingBitWithoutTouchingLedger(t *testing.T) {
	m, sema := newMemMonitor(t)

	m.Post(topic.SigChld)
	assert.Equal(t, topic.SigChld.Bit(), m.Status())

	m.Post(topic.SigHupInt)
	assert.Equal(t, topic.SigChld.Bit()|topic.SigHupInt.Bit(), m.Status())

	// Nobody was waiting, so the notifier stays quiet.
	assert.Equal(t, uint64(0), sema.Waits())

	gens := m.CurrentGenerations()
	assert.Equal(t, topic.Generation(1), gens.Get(topic.SigChld))
	assert.Equal(t, topic.Generation(1), gens.Get(topic.SigHupInt))
	assert.Equal(t, topic.Generation(0), gens.Get(topic.InternalExit))
	assert.Equal(t, uint8(0), m.Status())
}

func TestPost_Coalesces(t *testing.T) {
	m, _ := newMemMonitor(t)

	gens := only(topic.SigChld, 0)

	const posts = 10
	for i := 0; i < posts; i++ {
		m.Post(topic.SigChld)
	}

	assert.True(t, m.Check(&gens, false))
	assert.Equal(t, topic.Generation(1), gens.Get(topic.SigChld))

	// The coalesced posts are reported exactly once.
	assert.False(t, m.Check(&gens, false))
	assert.Equal(t, topic.Generation(1), gens.Get(topic.SigChld))
}

func TestCurrentGenerations_Monotonic(t *testing.T) {
	m, _ := newMemMonitor(t)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for _, tp := range topic.All() {
		wg.Add(1)
		go func(tp topic.Topic) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					m.Post(tp)
					runtime.Gosched()
				}
			}
		}(tp)
	}

	prev := m.CurrentGenerations()
	for i := 0; i < 5000; i++ {
		cur := m.CurrentGenerations()
		for _, tp := range topic.All() {
			require.GreaterOrEqual(t, cur.Get(tp), prev.Get(tp), "topic %s went backwards", tp)
		}
		prev = cur
	}

	close(stop)
	wg.Wait()
}

func TestCheck_NoWaitUnchangedLeavesGensAlone(t *testing.T) {
	m, _ := newMemMonitor(t)

	m.Post(topic.SigHupInt)
	gens := m.CurrentGenerations()
	before := gens

	assert.False(t, m.Check(&gens, false))
	assert.True(t, gens.Equal(&before))
}

func TestCheck_InvalidListShortCircuits(t *testing.T) {
	m, _ := newMemMonitor(t)

	m.Post(topic.SigChld)
	gens := topic.InvalidGenerations()

	assert.False(t, m.Check(&gens, true))
	assert.False(t, gens.AnyValid())

	// The pending post was not flushed: Check never reached the ledger.
	assert.Equal(t, topic.SigChld.Bit(), m.Status())
}

func TestCheck_DefaultListWatchesEverything(t *testing.T) {
	m, _ := newMemMonitor(t)

	gens := topic.NewGenerationsList()
	assert.False(t, m.Check(&gens, false))

	m.Post(topic.InternalExit)
	assert.True(t, m.Check(&gens, false))
	assert.Equal(t, topic.Generation(1), gens.Get(topic.InternalExit))
}

func TestCheck_IgnoresTopicsNotOfInterest(t *testing.T) {
	m, _ := newMemMonitor(t)

	gens := only(topic.SigChld, 0)
	m.Post(topic.SigHupInt)

	assert.False(t, m.Check(&gens, false))
	assert.Equal(t, topic.InvalidGeneration, gens.Get(topic.SigHupInt))
}

func TestCheck_FutureGenerationPanics(t *testing.T) {
	m, _ := newMemMonitor(t)

	gens := only(topic.SigChld, 5)
	assert.Panics(t, func() {
		m.Check(&gens, false)
	})
}

func TestCheck_WaitReturnsOnRelevantPost(t *testing.T) {
	for name, m := range backendMonitors(t) {
		t.Run(name, func(t *testing.T) {
			gens := only(topic.SigChld, m.GenerationForTopic(topic.SigChld))
			start := gens.Get(topic.SigChld)
			res := checkAsync(m, &gens)

			require.Eventually(t, m.HasReader, waitTimeout, time.Millisecond)

			// An irrelevant post wakes the reader but Check keeps waiting.
			m.Post(topic.SigHupInt)
			select {
			case <-res:
				t.Fatal("Check returned for a topic it does not watch")
			case <-time.After(50 * time.Millisecond):
			}

			m.Post(topic.SigChld)
			select {
			case changed := <-res:
				assert.True(t, changed)
				assert.Equal(t, start+1, gens.Get(topic.SigChld))
			case <-time.After(waitTimeout):
				t.Fatal("Check did not wake after post")
			}
		})
	}
}

// A waiter on sigchld sees two quick posts as a single increment.
func TestCheck_DoublePostObservedOnce(t *testing.T) {
	for name, m := range backendMonitors(t) {
		t.Run(name, func(t *testing.T) {
			gens := only(topic.SigChld, 0)
			res := checkAsync(m, &gens)

			require.Eventually(t, m.HasReader, waitTimeout, time.Millisecond)

			m.Post(topic.SigChld)
			m.Post(topic.SigChld)

			select {
			case changed := <-res:
				assert.True(t, changed)
				assert.Equal(t, topic.Generation(1), gens.Get(topic.SigChld))
			case <-time.After(waitTimeout):
				t.Fatal("Check did not wake after post")
			}
		})
	}
}

func TestCheck_ManyWaitersAllWake(t *testing.T) {
	for name, m := range backendMonitors(t) {
		t.Run(name, func(t *testing.T) {
			const perTopic = 8

			var wg sync.WaitGroup
			var woke atomic.Int32
			for _, tp := range topic.All() {
				for i := 0; i < perTopic; i++ {
					wg.Add(1)
					go func(tp topic.Topic) {
						defer wg.Done()
						gens := only(tp, 0)
						if m.Check(&gens, true) {
							woke.Add(1)
						}
					}(tp)
				}
			}

			require.Eventually(t, m.HasReader, waitTimeout, time.Millisecond)
			for _, tp := range topic.All() {
				m.Post(tp)
			}

			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(waitTimeout):
				t.Fatal("not every waiter woke")
			}
			assert.Equal(t, int32(perTopic*topic.Count), woke.Load())
			assert.False(t, m.HasReader())
		})
	}
}

func TestCheck_SingleReaderAtATime(t *testing.T) {
	m, sema := newMemMonitor(t)

	const waiters = 16
	const rounds = 50

	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gens := only(topic.SigChld, 0)
			for gens.Get(topic.SigChld) < rounds {
				m.Check(&gens, true)
			}
		}()
	}

	for m.GenerationForTopic(topic.SigChld) < rounds {
		m.Post(topic.SigChld)
		time.Sleep(100 * time.Microsecond)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("waiters did not finish")
	}

	assert.LessOrEqual(t, sema.MaxWaiting(), 1)
	assert.Equal(t, 0, sema.Waiting())
}

func TestStatusWord_InvariantUnderConcurrency(t *testing.T) {
	m, _ := newMemMonitor(t)

	var stop atomic.Bool
	var violations atomic.Int32
	var wg sync.WaitGroup

	// Sampler
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			s := m.Status()
			if s&StatusNeedsWakeup != 0 && s != StatusNeedsWakeup {
				violations.Add(1)
			}
		}
	}()

	// Posters
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for !stop.Load() {
				m.Post(topic.Topic(r.Intn(topic.Count)))
				if r.Intn(8) == 0 {
					runtime.Gosched()
				}
			}
		}(int64(i))
	}

	// Checkers, waiting and not waiting, on random topic subsets
	var checkers sync.WaitGroup
	for i := 0; i < 6; i++ {
		checkers.Add(1)
		go func(seed int64) {
			defer checkers.Done()
			r := rand.New(rand.NewSource(seed))
			gens := m.CurrentGenerations()
			for !stop.Load() {
				probe := gens
				for _, tp := range topic.All() {
					if r.Intn(2) == 0 {
						probe.Set(tp, topic.InvalidGeneration)
					}
				}
				m.Check(&probe, r.Intn(2) == 0)
				gens = m.CurrentGenerations()
			}
		}(int64(100 + i))
	}

	time.Sleep(300 * time.Millisecond)
	stop.Store(true)

	// Release any checker still parked waiting for its topics.
	checkersDone := make(chan struct{})
	go func() {
		checkers.Wait()
		close(checkersDone)
	}()
	deadline := time.After(waitTimeout)
release:
	for {
		select {
		case <-checkersDone:
			break release
		case <-deadline:
			t.Fatal("checkers did not exit")
		default:
			for _, tp := range topic.All() {
				m.Post(tp)
			}
			time.Sleep(time.Millisecond)
		}
	}
	wg.Wait()

	assert.Zero(t, violations.Load())
	s := m.Status()
	assert.False(t, s&StatusNeedsWakeup != 0 && s != StatusNeedsWakeup)
}

func TestPost_WakesOnlyOnNewBit(t *testing.T) {
	m, sema := newMemMonitor(t)

	gens := only(topic.SigHupInt, 0)
	res := checkAsync(m, &gens)
	require.Eventually(t, func() bool { return sema.Waiting() == 1 }, waitTimeout, time.Millisecond)
	assert.Equal(t, StatusNeedsWakeup, m.Status())

	m.Post(topic.SigHupInt)
	// The wakeup bit is replaced by the topic bit.
	s := m.Status()
	assert.True(t, s == topic.SigHupInt.Bit() || s == 0, "unexpected status %#x", s)

	select {
	case changed := <-res:
		assert.True(t, changed)
	case <-time.After(waitTimeout):
		t.Fatal("Check did not wake")
	}
	assert.Equal(t, uint64(1), sema.Waits())
}

func TestPost_UndefinedTopicPanics(t *testing.T) {
	m, sema := newMemMonitor(t)

	// Topic 7 would land on the wakeup bit; topic 8 shifts out of the byte.
	assert.Panics(t, func() { m.Post(topic.Topic(topic.MaxTopics)) })
	assert.Panics(t, func() { m.Post(topic.Topic(8)) })
	assert.Panics(t, func() { m.Post(topic.Count) })
	assert.Equal(t, uint8(0), m.Status())
	assert.False(t, m.HasReader())

	// A parked reader is left parked.
	gens := only(topic.SigChld, 0)
	res := checkAsync(m, &gens)
	require.Eventually(t, func() bool { return sema.Waiting() == 1 }, waitTimeout, time.Millisecond)

	assert.Panics(t, func() { m.Post(topic.Topic(8)) })
	assert.Equal(t, StatusNeedsWakeup, m.Status())
	assert.Equal(t, uint64(0), sema.Waits())

	m.Post(topic.SigChld)
	select {
	case changed := <-res:
		assert.True(t, changed)
	case <-time.After(waitTimeout):
		t.Fatal("Check did not wake")
	}
}
