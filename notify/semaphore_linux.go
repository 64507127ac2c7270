//go:build linux

package notify

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// eventfdIncrement is the 8-byte value written by Signal. It is built once so
// Signal never allocates.
var eventfdIncrement [8]byte

func init() {
	binary.NativeEndian.PutUint64(eventfdIncrement[:], 1)
}

// eventfdNotifier uses an eventfd in EFD_SEMAPHORE mode: each read consumes
// exactly one unit.
type eventfdNotifier struct {
	fd int
}

func newEventfdNotifier() (*eventfdNotifier, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_SEMAPHORE)
	if err != nil {
		return nil, err
	}
	return &eventfdNotifier{fd: fd}, nil
}

func (n *eventfdNotifier) Signal() {
	for {
		_, err := unix.Write(n.fd, eventfdIncrement[:])
		if err == nil {
			return
		}
		if err == unix.EINTR {
			continue
		}
		Die("eventfd write", err)
	}
}

func (n *eventfdNotifier) Wait() {
	var buf [8]byte
	for {
		_, err := unix.Read(n.fd, buf[:])
		if err == nil {
			return
		}
		if err == unix.EINTR {
			continue
		}
		Die("eventfd read", err)
	}
}

func (n *eventfdNotifier) Close() error {
	return unix.Close(n.fd)
}

func (n *eventfdNotifier) Backend() Backend {
	return BackendEventfd
}
