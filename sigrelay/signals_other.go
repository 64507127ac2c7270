//go:build !unix

package sigrelay

import (
	"os"

	"github.com/maxpert/topicmon/topic"
)

func mappedSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// TopicFor maps a signal to its topic. Only interrupts exist here.
func TopicFor(sig os.Signal) (topic.Topic, bool) {
	if sig == os.Interrupt {
		return topic.SigHupInt, true
	}
	return 0, false
}
