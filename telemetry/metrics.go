package telemetry

// Histogram bucket definitions
var (
	// ReaderWaitBuckets for how long an elected reader stays parked on the notifier
	ReaderWaitBuckets = []float64{0.0001, 0.001, 0.01, 0.1, 1, 10, 60, 300, 1800}
)

// Topic Metrics
var (
	// TopicUpdatesTotal counts ledger increments by topic. Coalesced posts count once.
	TopicUpdatesTotal CounterVec = noopCounterVec{}

	// TopicGeneration tracks the current generation per topic
	TopicGeneration GaugeVec = noopGaugeVec{}

	// StatusPendingTopics tracks how many topic bits are set in the status word
	StatusPendingTopics Gauge = NoopStat{}
)

// Reader Election Metrics
var (
	// ReaderElectionsTotal counts successful elections to reader
	ReaderElectionsTotal Counter = NoopStat{}

	// ReaderElectionRacesTotal counts lost CAS races while trying to become reader
	ReaderElectionRacesTotal Counter = NoopStat{}

	// ReaderWaitSeconds measures time spent blocked on the notifier, by backend
	ReaderWaitSeconds HistogramVec = noopHistogramVec{}

	// ReaderActive is 1 while some goroutine owns the reader role
	ReaderActive Gauge = NoopStat{}

	// CheckCallsTotal counts Check calls by mode (wait, nowait) and result (changed, unchanged)
	CheckCallsTotal CounterVec = noopCounterVec{}
)

// Hub Metrics
var (
	// HubSubscribers tracks live hub subscriptions
	HubSubscribers Gauge = NoopStat{}

	// HubDroppedTotal counts changes dropped because a subscriber buffer was full
	HubDroppedTotal Counter = NoopStat{}
)

// Signal Relay Metrics
var (
	// SignalsRelayedTotal counts OS signals relayed to topics, by signal name
	SignalsRelayedTotal CounterVec = noopCounterVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	// Topic Metrics
	TopicUpdatesTotal = NewCounterVec(
		"topic_updates_total",
		"Generation increments by topic",
		[]string{"topic"},
	)
	TopicGeneration = NewGaugeVec(
		"topic_generation",
		"Current generation by topic",
		[]string{"topic"},
	)
	StatusPendingTopics = NewGauge(
		"status_pending_topics",
		"Topic bits pending in the status word",
	)

	// Reader Election Metrics
	ReaderElectionsTotal = NewCounter(
		"reader_elections_total",
		"Times a goroutine became the notifier reader",
	)
	ReaderElectionRacesTotal = NewCounter(
		"reader_election_races_total",
		"Reader elections lost to a concurrent post",
	)
	ReaderWaitSeconds = NewHistogramVec(
		"reader_wait_seconds",
		"Time the reader spent blocked on the notifier by backend",
		[]string{"backend"},
		ReaderWaitBuckets,
	)
	ReaderActive = NewGauge(
		"reader_active",
		"Whether a reader currently owns the notifier (1=yes, 0=no)",
	)
	CheckCallsTotal = NewCounterVec(
		"check_calls_total",
		"Check calls by mode and result",
		[]string{"mode", "result"},
	)

	// Hub Metrics
	HubSubscribers = NewGauge(
		"hub_subscribers",
		"Number of live hub subscriptions",
	)
	HubDroppedTotal = NewCounter(
		"hub_dropped_total",
		"Changes dropped because a subscriber was behind",
	)

	// Signal Relay Metrics
	SignalsRelayedTotal = NewCounterVec(
		"signals_relayed_total",
		"OS signals relayed to topics by signal",
		[]string{"signal"},
	)
}
