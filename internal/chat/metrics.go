package chat

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics carries the chat-domain instruments. A single instance is
// registered at startup and shared across components.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	MessagesSent      prometheus.Counter
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	AuthDenials       prometheus.Counter
	DroppedFrames     prometheus.Counter
}

// NewMetrics builds the instruments and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_active_connections",
			Help: "Currently open WebSocket connections.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages successfully appended to the store.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_history_cache_hits_total",
			Help: "Conversation history reads served from cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_history_cache_misses_total",
			Help: "Conversation history reads that fell through to the store.",
		}),
		AuthDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_authorization_denials_total",
			Help: "Join or send operations denied by the authorization gate.",
		}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_dropped_frames_total",
			Help: "Outbound frames dropped because a client was too slow.",
		}),
	}
	reg.MustRegister(
		m.ActiveConnections,
		m.MessagesSent,
		m.CacheHits,
		m.CacheMisses,
		m.AuthDenials,
		m.DroppedFrames,
	)
	return m
}

// NewTestMetrics builds unregistered instruments for tests.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
