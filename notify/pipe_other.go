//go:build !unix

package notify

// Platforms without unix descriptors only get the channel backend.
type pipeNotifier struct{ *MemNotifier }

func newPipeNotifier(bool) (*pipeNotifier, error) {
	return nil, errUnsupported
}
