//go:build unix

package notify

import (
	"io"

	"golang.org/x/sys/unix"
)

// pipeByte is the single byte written per Signal.
var pipeByte = [1]byte{0}

// pipeNotifier emulates a semaphore with a self-pipe. Each Signal writes one
// byte and each Wait consumes one.
type pipeNotifier struct {
	readFd      int
	writeFd     int
	nonBlocking bool
}

func newPipeNotifier(nonBlocking bool) (*pipeNotifier, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, err
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])

	if nonBlocking {
		if err := unix.SetNonblock(fds[0], true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, err
		}
	}
	return &pipeNotifier{readFd: fds[0], writeFd: fds[1], nonBlocking: nonBlocking}, nil
}

func (n *pipeNotifier) Signal() {
	for {
		_, err := unix.Write(n.writeFd, pipeByte[:])
		if err == nil {
			return
		}
		if err == unix.EINTR {
			continue
		}
		Die("pipe write", err)
	}
}

func (n *pipeNotifier) Wait() {
	var buf [1]byte
	for {
		// A non-blocking read end would spin until data arrives; park in
		// poll(2) first.
		if n.nonBlocking {
			waitReadable(n.readFd)
		}
		c, err := unix.Read(n.readFd, buf[:])
		switch {
		case err == nil && c == 1:
			return
		case err == nil:
			// Zero bytes means the write end is gone and no Signal can ever arrive.
			Die("pipe read", io.ErrUnexpectedEOF)
		case err == unix.EINTR, err == unix.EAGAIN:
			continue
		default:
			Die("pipe read", err)
		}
	}
}

func (n *pipeNotifier) Close() error {
	werr := unix.Close(n.writeFd)
	rerr := unix.Close(n.readFd)
	if werr != nil {
		return werr
	}
	return rerr
}

func (n *pipeNotifier) Backend() Backend {
	return BackendPipe
}
