package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Calls holds the call lifecycle collectors. A nil *Calls is a no-op so
// tests and tools can run without a registry.
type Calls struct {
	transitions      *prometheus.CounterVec
	dispatchFails    prometheus.Counter
	activeSessions   prometheus.Gauge
	rejected         *prometheus.CounterVec
	finalized        *prometheus.CounterVec
	finalizeTime     prometheus.Histogram
	summaryFallbacks prometheus.Counter
	costTotal        prometheus.Counter
}

// NewCalls creates the collectors and registers them with reg.
func NewCalls(reg prometheus.Registerer) (*Calls, error) {
	m := &Calls{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "followup",
			Name:      "call_transitions_total",
			Help:      "Call status transitions.",
		}, []string{"from", "to"}),
		dispatchFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "followup",
			Name:      "dispatch_failures_total",
			Help:      "Outbound dials the gateway refused.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "followup",
			Name:      "active_sessions",
			Help:      "Live media sessions on this instance.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "followup",
			Name:      "sessions_rejected_total",
			Help:      "Media sessions closed before bridging.",
		}, []string{"reason"}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "followup",
			Name:      "finalizations_total",
			Help:      "Call finalizations by result.",
		}, []string{"result"}),
		finalizeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "followup",
			Name:      "finalize_duration_seconds",
			Help:      "Time spent summarizing, costing and persisting a finished call.",
			Buckets:   prometheus.DefBuckets,
		}),
		summaryFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "followup",
			Name:      "summary_fallbacks_total",
			Help:      "Finished calls stored with the fallback summary.",
		}),
		costTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "followup",
			Name:      "call_cost_total",
			Help:      "Accumulated cost of finalized calls in account currency.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.transitions, m.dispatchFails, m.activeSessions, m.rejected,
		m.finalized, m.finalizeTime, m.summaryFallbacks, m.costTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Calls) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Calls) DispatchFailed() {
	if m == nil {
		return
	}
	m.dispatchFails.Inc()
}

func (m *Calls) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Calls) SessionEnded() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Calls) SessionRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// Finalized records one finalization attempt; cost is only added on success.
func (m *Calls) Finalized(ok bool, seconds, cost float64) {
	if m == nil {
		return
	}
	m.finalizeTime.Observe(seconds)
	if !ok {
		m.finalized.WithLabelValues("failed").Inc()
		return
	}
	m.finalized.WithLabelValues("ok").Inc()
	if cost > 0 {
		m.costTotal.Add(cost)
	}
}

func (m *Calls) SummaryFallback() {
	if m == nil {
		return
	}
	m.summaryFallbacks.Inc()
}

// Handler serves the default gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
