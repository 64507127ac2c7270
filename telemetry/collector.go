package telemetry

import (
	"math/bits"
	"sync"
	"time"

	"github.com/maxpert/topicmon/topic"
)

// StatsProvider interface for components that provide monitor stats
type StatsProvider interface {
	CurrentGenerations() topic.GenerationsList
	HasReader() bool
	Status() uint8
}

// MetricsCollector periodically collects stats and updates telemetry gauges
type MetricsCollector struct {
	provider StatsProvider
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(provider StatsProvider, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		provider: provider,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.provider == nil {
		return
	}

	// Status must be sampled before CurrentGenerations flushes it.
	status := mc.provider.Status()
	pending := 0
	if status&topic.NeedsWakeupBit == 0 {
		pending = bits.OnesCount8(status)
	}
	StatusPendingTopics.Set(float64(pending))

	gens := mc.provider.CurrentGenerations()
	for _, t := range topic.All() {
		TopicGeneration.With(t.String()).Set(float64(gens.Get(t)))
	}

	if mc.provider.HasReader() {
		ReaderActive.Set(1)
	} else {
		ReaderActive.Set(0)
	}
}
