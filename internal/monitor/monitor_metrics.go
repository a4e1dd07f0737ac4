package monitor

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the monitoring subsystem.
type Metrics struct {
	TriggersTotal    *prometheus.CounterVec
	JobsTotal        *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	DetectorCalls    *prometheus.CounterVec
	DetectorDuration prometheus.Histogram
	AlertsTotal      *prometheus.CounterVec
	BatchesTotal     prometheus.Counter
	BatchScheduled   prometheus.Histogram
	BatchDuration    prometheus.Histogram
	ReportDuration   prometheus.Histogram
	JobsSwept        *prometheus.CounterVec
}

// NewMetrics registers and returns monitoring metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TriggersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terrawatch_triggers_total",
			Help: "Total detection trigger requests by result.",
		}, []string{"result"}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terrawatch_jobs_total",
			Help: "Total detection jobs by terminal status.",
		}, []string{"status"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "terrawatch_job_duration_seconds",
			Help:    "Duration of detection jobs in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		}, []string{"status"}),
		DetectorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terrawatch_detector_calls_total",
			Help: "Total detector calls by outcome.",
		}, []string{"outcome"}),
		DetectorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "terrawatch_detector_call_duration_seconds",
			Help:    "Duration of individual detector calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s .. ~256s
		}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terrawatch_alerts_total",
			Help: "Total alerts recorded by type and severity.",
		}, []string{"type", "severity"}),
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terrawatch_batches_total",
			Help: "Total scheduler batch runs.",
		}),
		BatchScheduled: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "terrawatch_batch_scheduled_regions",
			Help:    "Regions scheduled per batch run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 .. ~2048
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "terrawatch_batch_duration_seconds",
			Help:    "Duration of scheduler batch runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}),
		ReportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "terrawatch_report_duration_seconds",
			Help:    "Duration of analytics report builds in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms .. ~5s
		}),
		JobsSwept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terrawatch_jobs_swept_total",
			Help: "Total jobs removed or failed by the sweeper, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.TriggersTotal,
		m.JobsTotal,
		m.JobDuration,
		m.DetectorCalls,
		m.DetectorDuration,
		m.AlertsTotal,
		m.BatchesTotal,
		m.BatchScheduled,
		m.BatchDuration,
		m.ReportDuration,
		m.JobsSwept,
	)

	return m
}
