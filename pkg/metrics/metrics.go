package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker registry metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_workers_total",
			Help: "Total number of workers by lifecycle state (active, lost, temp)",
		},
		[]string{"state"},
	)

	CapacityBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_capacity_bytes",
			Help: "Aggregate reported capacity across active workers, by tier",
		},
		[]string{"tier"},
	)

	UsedBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_used_bytes",
			Help: "Aggregate reported usage across active workers, by tier",
		},
		[]string{"tier"},
	)

	// Block registry metrics
	BlocksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_blocks_total",
			Help: "Total number of blocks known to the registry",
		},
	)

	LostBlocksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_lost_blocks_total",
			Help: "Total number of blocks with zero replica locations",
		},
	)

	// Container id generator metrics
	ContainerIDReservationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_container_id_reservations_total",
			Help: "Total number of journal writes made to reserve a new id batch",
		},
	)

	// Journal metrics
	JournalCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_journal_commit_duration_seconds",
			Help:    "Time taken to durably commit a journal scope",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Protocol handler metrics
	HandlerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_handler_requests_total",
			Help: "Total number of protocol handler invocations by handler and outcome",
		},
		[]string{"handler", "outcome"},
	)

	HandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_handler_duration_seconds",
			Help:    "Protocol handler latency by handler name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	// Lost-worker detector metrics
	DetectorSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_detector_sweep_duration_seconds",
			Help:    "Time taken for one lost-worker detector sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	WorkersLostTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_workers_lost_total",
			Help: "Total number of workers the detector has moved from active to lost",
		},
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(CapacityBytes)
	prometheus.MustRegister(UsedBytes)
	prometheus.MustRegister(BlocksTotal)
	prometheus.MustRegister(LostBlocksTotal)
	prometheus.MustRegister(ContainerIDReservationsTotal)
	prometheus.MustRegister(JournalCommitDuration)
	prometheus.MustRegister(HandlerRequestsTotal)
	prometheus.MustRegister(HandlerDuration)
	prometheus.MustRegister(DetectorSweepDuration)
	prometheus.MustRegister(WorkersLostTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
