package monitor

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// principal is the process-wide monitor. Once set it is never cleared or
// closed: signal relays may post to it at any point until the process exits,
// including during what would otherwise be shutdown, so its address must stay
// valid for the lifetime of the process.
var (
	principal     atomic.Pointer[TopicMonitor]
	principalInit sync.Mutex
)

// Initialize creates the principal monitor if needed and returns it. It is
// idempotent; options are only honoured by the first call. Call it from main
// before arming any signal relay that posts to it.
//
// Failure to create the notifier is fatal.
func Initialize(opts Options) *TopicMonitor {
	if m := principal.Load(); m != nil {
		return m
	}

	principalInit.Lock()
	defer principalInit.Unlock()

	if m := principal.Load(); m != nil {
		return m
	}

	m, err := New(opts)
	if err != nil {
		log.Panic().Err(err).Msg("Failed to initialize principal topic monitor")
	}
	principal.Store(m)
	log.Info().Str("backend", string(m.Backend())).Msg("Principal topic monitor initialized")
	return m
}

// Principal returns the monitor created by Initialize. Calling it first is a
// programming error and panics.
func Principal() *TopicMonitor {
	m := principal.Load()
	if m == nil {
		panic("topic monitor: principal not initialized")
	}
	return m
}
