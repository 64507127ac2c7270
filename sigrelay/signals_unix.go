//go:build unix

package sigrelay

import (
	"os"

	"github.com/maxpert/topicmon/topic"
	"golang.org/x/sys/unix"
)

func mappedSignals() []os.Signal {
	return []os.Signal{unix.SIGHUP, unix.SIGINT, unix.SIGCHLD}
}

// TopicFor maps a signal to its topic. SIGHUP and SIGINT share sighupint.
func TopicFor(sig os.Signal) (topic.Topic, bool) {
	switch sig {
	case unix.SIGHUP, unix.SIGINT:
		return topic.SigHupInt, true
	case unix.SIGCHLD:
		return topic.SigChld, true
	}
	return 0, false
}
