package audit

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts recorded and failed entries. A nil *Metrics is a no-op.
type Metrics struct {
	recorded *prometheus.CounterVec
	failures *prometheus.CounterVec
	dropped  prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		recorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Audit entries handed to the sink, by action.",
		}, []string{"action"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_failures_total",
			Help: "Audit entries lost, by stage.",
		}, []string{"stage"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_buffer_dropped_total",
			Help: "Entries dropped because the async buffer was full.",
		}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.recorded, m.failures, m.dropped} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) incRecorded(action Action) {
	if m == nil {
		return
	}
	m.recorded.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) incFailure(stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage).Inc()
}

func (m *Metrics) incDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
