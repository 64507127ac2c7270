package notify

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Notifier is a binary semaphore whose Signal side is safe to call from the
// signal relay path: it never blocks, never allocates and never takes a lock.
//
// Only one goroutine may be inside Wait at a time. The notifier does not
// enforce this; the topic monitor's reader election does.
type Notifier interface {
	// Signal releases the waiter. Retries on EINTR; any other failure is fatal.
	Signal()
	// Wait blocks until a Signal has been delivered.
	Wait()
	// Close releases the underlying descriptors.
	Close() error
	// Backend names the implementation in use.
	Backend() Backend
}

// Backend selects a Notifier implementation.
type Backend string

const (
	BackendAuto    Backend = "auto"    // eventfd where available, otherwise pipe
	BackendEventfd Backend = "eventfd" // Linux eventfd in semaphore mode
	BackendPipe    Backend = "pipe"    // self-pipe
	BackendChannel Backend = "channel" // in-process channel, no descriptors
)

// ParseBackend validates a backend name.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(name); b {
	case BackendAuto, BackendEventfd, BackendPipe, BackendChannel:
		return b, nil
	case "":
		return BackendAuto, nil
	}
	return "", fmt.Errorf("unknown notifier backend %q", name)
}

// NotifierOptions configures NewNotifier.
type NotifierOptions struct {
	Backend Backend

	// ForceNonBlocking puts the pipe's read end in non-blocking mode and makes
	// Wait block in poll(2) first. Some tracing and sanitizer environments hold
	// signals back until the process enters certain blocking calls, and a
	// thread parked in read(2) never receives them.
	ForceNonBlocking bool
}

// NewNotifier builds the requested backend. BackendAuto prefers eventfd and
// falls back to a pipe when eventfd is unavailable. ForceNonBlocking is
// rejected for backends that have no read end to make non-blocking.
func NewNotifier(opts NotifierOptions) (Notifier, error) {
	if opts.ForceNonBlocking && (opts.Backend == BackendEventfd || opts.Backend == BackendChannel) {
		return nil, fmt.Errorf("force non-blocking is only supported by the pipe backend, not %s", opts.Backend)
	}

	switch opts.Backend {
	case BackendChannel:
		return NewMemNotifier(), nil
	case BackendEventfd:
		n, err := newEventfdNotifier()
		if err != nil {
			return nil, fmt.Errorf("create eventfd notifier: %w", err)
		}
		return n, nil
	case BackendPipe:
		n, err := newPipeNotifier(opts.ForceNonBlocking)
		if err != nil {
			return nil, fmt.Errorf("create pipe notifier: %w", err)
		}
		return n, nil
	case BackendAuto, "":
		if !opts.ForceNonBlocking {
			if n, err := newEventfdNotifier(); err == nil {
				return n, nil
			} else if err != errUnsupported {
				log.Debug().Err(err).Msg("eventfd unavailable, falling back to pipe")
			}
		}
		n, err := newPipeNotifier(opts.ForceNonBlocking)
		if err == errUnsupported {
			return NewMemNotifier(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("create pipe notifier: %w", err)
		}
		return n, nil
	}
	return nil, fmt.Errorf("unknown notifier backend %q", opts.Backend)
}

// Die reports an unrecoverable notifier failure and panics. There is no way
// to recover from a broken wakeup channel, least of all on the signal path.
func Die(op string, err error) {
	log.Error().Err(err).Str("op", op).Msg("Notifier failure")
	panic(fmt.Sprintf("notify: %s: %v", op, err))
}
