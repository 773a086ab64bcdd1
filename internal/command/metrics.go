package command

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the executor's operational counters. A nil-safe no-op
// instance backs executors constructed without a registerer.
type Metrics struct {
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
	depth    prometheus.Gauge
	rejects  prometheus.Counter
}

// NewMetrics registers the executor collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_commands_total",
			Help: "Commands completed, by operation and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_command_duration_seconds",
			Help:    "Command execution latency, by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aegis_command_queue_depth",
			Help: "Commands currently waiting in the queue.",
		}),
		rejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_command_queue_rejects_total",
			Help: "Submissions rejected because the queue was full.",
		}),
	}
	reg.MustRegister(m.commands, m.duration, m.depth, m.rejects)
	return m
}

func newNopMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) observe(op string, err error) {
	if m.commands == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.commands.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) queueDepth(depth int) {
	if m.depth == nil {
		return
	}
	m.depth.Set(float64(depth))
}

func (m *Metrics) queueReject() {
	if m.rejects == nil {
		return
	}
	m.rejects.Inc()
}

type opTimer struct {
	metrics *Metrics
	op      string
	started time.Time
}

func (m *Metrics) startTimer(op string) opTimer {
	return opTimer{metrics: m, op: op, started: time.Now()}
}

func (t opTimer) done() {
	if t.metrics.duration == nil {
		return
	}
	t.metrics.duration.WithLabelValues(t.op).Observe(time.Since(t.started).Seconds())
}
