package incident

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the incident coordinator. A nil
// *Metrics disables instrumentation (handy in tests).
type Metrics struct {
	AlertsConsumedTotal *prometheus.CounterVec
	AssignmentsTotal    *prometheus.CounterVec
	TransitionsTotal    *prometheus.CounterVec
}

// NewMetrics registers and returns coordinator metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AlertsConsumedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codeblue_alerts_consumed_total",
			Help: "Alert events consumed from the queue by outcome.",
		}, []string{"result"}),
		AssignmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codeblue_assignments_total",
			Help: "Assignment attempts by outcome.",
		}, []string{"result"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codeblue_incident_transitions_total",
			Help: "Successful incident lifecycle transitions by target state.",
		}, []string{"to"}),
	}

	reg.MustRegister(
		m.AlertsConsumedTotal,
		m.AssignmentsTotal,
		m.TransitionsTotal,
	)
	return m
}

func (m *Metrics) incAlertConsumed(result string) {
	if m == nil {
		return
	}
	m.AlertsConsumedTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) incAssignment(result string) {
	if m == nil {
		return
	}
	m.AssignmentsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) incTransition(to State) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(string(to)).Inc()
}
