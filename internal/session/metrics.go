package session

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	statusChecks      *prometheus.CounterVec
	heartbeats        *prometheus.CounterVec
	offlineEventsSent prometheus.Counter
	anonymousCreated  prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	statusChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codetime", Subsystem: "session", Name: "status_checks_total",
		Help: "Plugin state checks by remote state.",
	}, []string{"state"})

	heartbeats := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codetime", Subsystem: "session", Name: "heartbeats_total",
		Help: "Heartbeats by outcome.",
	}, []string{"result"})

	offlineEventsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codetime", Subsystem: "session", Name: "offline_events_sent_total",
		Help: "Offline events accepted by the API and removed locally.",
	})

	anonymousCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codetime", Subsystem: "session", Name: "anonymous_users_created_total",
		Help: "Anonymous users provisioned by this agent.",
	})

	if registerer != nil {
		registerer.MustRegister(statusChecks, heartbeats, offlineEventsSent, anonymousCreated)
	}

	return &metrics{
		statusChecks:      statusChecks,
		heartbeats:        heartbeats,
		offlineEventsSent: offlineEventsSent,
		anonymousCreated:  anonymousCreated,
	}
}
