//go:build unix

package notify

import "golang.org/x/sys/unix"

// waitReadable blocks until fd is readable. It gives up after one poll on any
// outcome; the caller's read loop tolerates spurious returns.
func waitReadable(fd int) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	_, _ = unix.Poll(fds, -1)
}
