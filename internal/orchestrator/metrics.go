package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Counters
	tasksCreated        prometheus.Counter
	eventsDetected      *prometheus.CounterVec
	pollErrors          prometheus.Counter
	dispatched          *prometheus.CounterVec
	notificationsFailed prometheus.Counter

	// Gauges
	tasksByStatus *prometheus.GaugeVec

	// Histograms
	pollDuration   prometheus.Histogram
	actionDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg. A nil
// registerer leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "taskrelay_tasks_created_total",
				Help: "Total number of tasks appended to the sheet",
			},
		),
		eventsDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskrelay_watcher_events_total",
				Help: "Total number of change events detected",
			},
			[]string{"type"},
		),
		pollErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "taskrelay_watcher_poll_errors_total",
				Help: "Total number of failed sheet reads",
			},
		),
		dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskrelay_dispatch_total",
				Help: "Total number of dispatch decisions",
			},
			[]string{"category", "result"},
		),
		notificationsFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "taskrelay_notifications_failed_total",
				Help: "Total number of chat notifications that could not be sent",
			},
		),
		tasksByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "taskrelay_tasks_by_status",
				Help: "Number of rows per status as of the last poll",
			},
			[]string{"status"},
		),
		pollDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "taskrelay_watcher_poll_duration_seconds",
				Help:    "Time to read and diff the sheet",
				Buckets: prometheus.DefBuckets,
			},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskrelay_action_duration_seconds",
				Help:    "Local action duration in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 300, 600},
			},
			[]string{"category"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.tasksCreated,
			m.eventsDetected,
			m.pollErrors,
			m.dispatched,
			m.notificationsFailed,
			m.tasksByStatus,
			m.pollDuration,
			m.actionDuration,
		)
	}

	return m
}

// TaskCreated counts a row appended by this process
func (m *Metrics) TaskCreated() {
	if m != nil {
		m.tasksCreated.Inc()
	}
}

// NotificationFailed counts a chat message that was dropped
func (m *Metrics) NotificationFailed() {
	if m != nil {
		m.notificationsFailed.Inc()
	}
}

func (m *Metrics) observeRows(rows []tasks.Task) {
	if m == nil {
		return
	}
	m.tasksByStatus.Reset()
	counts := make(map[string]int)
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		counts[string(row.Status)]++
	}
	for status, count := range counts {
		m.tasksByStatus.WithLabelValues(status).Set(float64(count))
	}
}
