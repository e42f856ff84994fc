package render

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports scheduler activity to Prometheus. A single Metrics value can
// be shared by several managers, series are labelled by manager instance.
type Metrics struct {
	scheduled *prometheus.CounterVec
	coalesced *prometheus.CounterVec
	completed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	pending   *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "render",
			Name:      "tickets_scheduled_total",
			Help:      "Number of tickets created by Schedule and ScheduleDelayed.",
		}, []string{"manager", "mode"}),
		coalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "render",
			Name:      "tickets_coalesced_total",
			Help:      "Number of delayed schedules merged into an already waiting ticket.",
		}, []string{"manager"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "render",
			Name:      "tickets_completed_total",
			Help:      "Number of processed tickets by result.",
		}, []string{"manager", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "render",
			Name:      "duration_seconds",
			Help:      "Time spent inside tile renderers.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"manager"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "render",
			Name:      "pending_tickets",
			Help:      "Tickets waiting in the ready and delay queues.",
		}, []string{"manager"}),
	}

	if reg != nil {
		reg.MustRegister(m.scheduled, m.coalesced, m.completed, m.duration, m.pending)
	}
	return m
}

func (m *Metrics) observeScheduled(instance int, mode string) {
	if m == nil {
		return
	}
	m.scheduled.WithLabelValues(strconv.Itoa(instance), mode).Inc()
}

func (m *Metrics) observeCoalesced(instance int) {
	if m == nil {
		return
	}
	m.coalesced.WithLabelValues(strconv.Itoa(instance)).Inc()
}

func (m *Metrics) observeCompleted(instance int, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := strconv.Itoa(instance)
	m.completed.WithLabelValues(label, ErrorKind(err).String()).Inc()
	m.duration.WithLabelValues(label).Observe(elapsed.Seconds())
}

func (m *Metrics) setPending(instance int, pending int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(strconv.Itoa(instance)).Set(float64(pending))
}
