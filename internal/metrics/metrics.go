package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Retrieval tier that produced the results
	RetrievalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentchat",
			Subsystem: "retrieval",
			Name:      "searches_total",
			Help:      "Total retrieval searches by the tier that answered",
		},
		[]string{"tier"},
	)

	RetrievalFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentchat",
			Subsystem: "retrieval",
			Name:      "fallback_total",
			Help:      "Searches that fell back to substring matching, by reason",
		},
		[]string{"reason"},
	)

	StreamDegradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentchat",
			Subsystem: "completion",
			Name:      "stream_degraded_total",
			Help:      "Reply streams cut short by a backend failure or timeout",
		},
	)

	PromptFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentchat",
			Subsystem: "completion",
			Name:      "prompt_fallback_total",
			Help:      "System prompts built from the template after a backend failure",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentchat",
			Subsystem: "chat",
			Name:      "active_sessions",
			Help:      "Chat sessions currently registered",
		},
	)

	SessionRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentchat",
			Subsystem: "chat",
			Name:      "session_rejected_total",
			Help:      "Chat sessions rejected before acceptance, by close code",
		},
		[]string{"code"},
	)

	TurnsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentchat",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Completed chat turns",
		},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentchat",
			Subsystem: "knowledge",
			Name:      "uploads_total",
			Help:      "Knowledge base uploads by outcome",
		},
		[]string{"status"},
	)

	ChunkEncodeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentchat",
			Subsystem: "knowledge",
			Name:      "chunk_encode_failures_total",
			Help:      "Chunks stored without an embedding",
		},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
