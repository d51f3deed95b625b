package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes migration metrics
type Collector struct {
	checkpointsTotal   *prometheus.CounterVec
	entitiesTotal      *prometheus.CounterVec
	recoveryPlansTotal *prometheus.CounterVec
	batchDuration      prometheus.Histogram
	overallProgress    prometheus.Gauge
}

// New creates a new metrics collector registered on the default registry
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector on a custom registry
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checkpointsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "migrate_checkpoints_total",
				Help: "Total number of checkpoints by final status",
			},
			[]string{"status"},
		),
		entitiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "migrate_entities_total",
				Help: "Total number of entities processed by result",
			},
			[]string{"result"},
		),
		recoveryPlansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "migrate_recovery_plans_total",
				Help: "Total number of recovery plans by recommended action",
			},
			[]string{"action"},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "migrate_batch_duration_seconds",
				Help:    "Time taken to migrate one entity batch",
				Buckets: prometheus.DefBuckets,
			},
		),
		overallProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "migrate_overall_progress_percent",
				Help: "Overall migration progress percentage",
			},
		),
	}

	// Register metrics
	reg.MustRegister(c.checkpointsTotal)
	reg.MustRegister(c.entitiesTotal)
	reg.MustRegister(c.recoveryPlansTotal)
	reg.MustRegister(c.batchDuration)
	reg.MustRegister(c.overallProgress)

	return c
}

// IncCheckpoint counts a checkpoint reaching a terminal status
func (c *Collector) IncCheckpoint(status string) {
	c.checkpointsTotal.WithLabelValues(status).Inc()
}

// AddMigrated counts entities successfully written to the target
func (c *Collector) AddMigrated(count int64) {
	c.entitiesTotal.WithLabelValues("migrated").Add(float64(count))
}

// AddFailed counts entities that could not be written
func (c *Collector) AddFailed(count int64) {
	c.entitiesTotal.WithLabelValues("failed").Add(float64(count))
}

// AddSkipped counts entities dropped by a skip_and_continue plan
func (c *Collector) AddSkipped(count int64) {
	c.entitiesTotal.WithLabelValues("skipped").Add(float64(count))
}

// IncRecoveryPlan counts a recovery plan by its recommended action
func (c *Collector) IncRecoveryPlan(action string) {
	c.recoveryPlansTotal.WithLabelValues(action).Inc()
}

// ObserveBatchDuration observes how long one batch took
func (c *Collector) ObserveBatchDuration(duration time.Duration) {
	c.batchDuration.Observe(duration.Seconds())
}

// SetOverallProgress sets the overall progress gauge
func (c *Collector) SetOverallProgress(percent float64) {
	c.overallProgress.Set(percent)
}

// StartServer starts the metrics HTTP server
func (c *Collector) StartServer(addr string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, nil)
}
