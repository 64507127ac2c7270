//go:build !linux

package notify

// eventfd is Linux-only. Elsewhere BackendAuto goes straight to the pipe.
type eventfdNotifier struct{ pipeNotifier }

func newEventfdNotifier() (*eventfdNotifier, error) {
	return nil, errUnsupported
}
