package monitor

import (
	"sync/atomic"

	"github.com/maxpert/topicmon/notify"
	"github.com/maxpert/topicmon/topic"
)

// Watcher relays generation changes from a monitor into a notify.Hub so
// consumers can select on channels instead of calling Check.
type Watcher struct {
	mon     *TopicMonitor
	hub     *notify.Hub
	stopped atomic.Bool
	done    chan struct{}
}

// Watch starts a goroutine that blocks in Check on every topic and publishes
// each advance to hub.
func (m *TopicMonitor) Watch(hub *notify.Hub) *Watcher {
	w := &Watcher{
		mon:  m,
		hub:  hub,
		done: make(chan struct{}),
	}

	// Snapshot before returning so posts made after Watch are never missed.
	gens := m.CurrentGenerations()
	go w.run(gens)
	return w
}

func (w *Watcher) run(gens topic.GenerationsList) {
	defer close(w.done)

	for {
		prev := gens
		w.mon.Check(&gens, true)
		if w.stopped.Load() {
			return
		}
		w.hub.Publish(&prev, &gens)
	}
}

// Stop ends the watch loop and waits for it to exit. Check has no
// cancellation, so Stop wakes the loop by posting InternalExit; other
// consumers may observe that as a spurious internal exit. Stop is idempotent.
func (w *Watcher) Stop() {
	if w.stopped.CompareAndSwap(false, true) {
		w.mon.Post(topic.InternalExit)
	}
	<-w.done
}

// Done is closed once the watch loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}
