package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder collects session engine metrics.
type Recorder interface {
	RemoteCall(op string, err error)
	Reconcile(outcome string)
	Alert(kind string)
	SessionsActive(n int)
}

// Reconcile outcomes.
const (
	ReconcileApplied = "applied"
	ReconcileSkipped = "skipped_in_flight"
	ReconcileFailed  = "failed"
)

// NoOp discards everything.
type NoOp struct{}

func (NoOp) RemoteCall(string, error) {}
func (NoOp) Reconcile(string)         {}
func (NoOp) Alert(string)             {}
func (NoOp) SessionsActive(int)       {}

// Prometheus implements Recorder with client_golang collectors.
type Prometheus struct {
	remoteCalls    *prometheus.CounterVec
	reconciles     *prometheus.CounterVec
	alerts         *prometheus.CounterVec
	sessionsActive prometheus.Gauge
}

// NewPrometheus registers the collectors on reg. A nil reg uses the default registerer.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Prometheus{
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchday",
			Name:      "remote_calls_total",
			Help:      "Calls to the remote match service by operation and outcome.",
		}, []string{"op", "status"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchday",
			Name:      "reconcile_total",
			Help:      "Reconciliation polls by outcome.",
		}, []string{"outcome"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchday",
			Name:      "alerts_total",
			Help:      "Alert events emitted by kind.",
		}, []string{"kind"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "matchday",
			Name:      "sessions_active",
			Help:      "Sessions currently held in memory.",
		}),
	}
	for _, c := range []prometheus.Collector{m.remoteCalls, m.reconciles, m.alerts, m.sessionsActive} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Prometheus) RemoteCall(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.remoteCalls.WithLabelValues(op, status).Inc()
}

func (m *Prometheus) Reconcile(outcome string) {
	m.reconciles.WithLabelValues(outcome).Inc()
}

func (m *Prometheus) Alert(kind string) {
	m.alerts.WithLabelValues(kind).Inc()
}

func (m *Prometheus) SessionsActive(n int) {
	m.sessionsActive.Set(float64(n))
}
