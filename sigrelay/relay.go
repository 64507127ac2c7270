// Package sigrelay turns OS signals into topic posts.
//
// The Go runtime delivers signals to a channel rather than running user code
// in a handler, so the relay goroutine is this process's signal path. Post
// comes first on that path and never blocks.
package sigrelay

import (
	"os"
	"os/signal"
	"sync"

	"github.com/maxpert/topicmon/telemetry"
	"github.com/maxpert/topicmon/topic"
	"github.com/rs/zerolog/log"
)

// signalBufferSize bounds signals queued between the runtime and the relay.
// Overflow is harmless: posts coalesce anyway.
const signalBufferSize = 16

// Poster is the producing side of a topic monitor.
type Poster interface {
	Post(t topic.Topic)
}

// Relay forwards OS signals to a Poster.
type Relay struct {
	poster  Poster
	signals []os.Signal
	sigCh   chan os.Signal
	wg      sync.WaitGroup
	once    sync.Once
}

// New creates a relay for the signals that map to topics in filter. An empty
// filter relays every mapped signal.
func New(poster Poster, filter topic.Set) *Relay {
	if filter.Empty() {
		filter = topic.AllSet()
	}
	var sigs []os.Signal
	for _, sig := range mappedSignals() {
		if t, ok := TopicFor(sig); ok && filter.Has(t) {
			sigs = append(sigs, sig)
		}
	}
	return &Relay{
		poster:  poster,
		signals: sigs,
		sigCh:   make(chan os.Signal, signalBufferSize),
	}
}

// Signals returns the signals this relay handles.
func (r *Relay) Signals() []os.Signal {
	return r.signals
}

// Start registers for the signals and begins relaying. The poster must already
// exist and stay valid for as long as signals can arrive.
func (r *Relay) Start() {
	if len(r.signals) == 0 {
		log.Warn().Msg("No signals to relay")
	}
	signal.Notify(r.sigCh, r.signals...)

	r.wg.Add(1)
	go r.loop()

	log.Info().Int("signals", len(r.signals)).Msg("Signal relay started")
}

func (r *Relay) loop() {
	defer r.wg.Done()
	for sig := range r.sigCh {
		r.Deliver(sig)
	}
}

// Deliver posts the topic for sig, if any. It is what the relay loop runs
// for every received signal.
func (r *Relay) Deliver(sig os.Signal) {
	t, ok := TopicFor(sig)
	if !ok {
		return
	}
	r.poster.Post(t)
	telemetry.SignalsRelayedTotal.With(sig.String()).Inc()
}

// Stop unregisters the signals and waits for the relay goroutine to exit.
// Posts already made stay made. Stop is idempotent.
func (r *Relay) Stop() {
	r.once.Do(func() {
		signal.Stop(r.sigCh)
		close(r.sigCh)
		r.wg.Wait()
		log.Info().Msg("Signal relay stopped")
	})
}
