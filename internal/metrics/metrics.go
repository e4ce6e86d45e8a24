// Package metrics holds the Prometheus collectors exported by the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "vouchchat").
	Namespace string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	clients           prometheus.Gauge
	rooms             prometheus.Gauge
	registrations     *prometheus.CounterVec
	admissions        prometheus.Counter
	messages          prometheus.Counter
	dropped           prometheus.Counter
	sessions          prometheus.Gauge
	heartbeatTimeouts prometheus.Counter
	protocolErrors    *prometheus.CounterVec
}

// New registers the collectors and returns them.
func New(opts ...Option) *Metrics {
	cfg := Config{
		Namespace: "vouchchat",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "registry",
			Name:      "clients",
			Help:      "Client records currently held by the registry",
		}),
		rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "registry",
			Name:      "rooms",
			Help:      "Rooms known to the registry, including empty ones",
		}),
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "registry",
			Name:      "registrations_total",
			Help:      "Room join requests by outcome",
		}, []string{"outcome"}),
		admissions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "registry",
			Name:      "peer_admissions_total",
			Help:      "Joins admitted by a vouching occupant",
		}),
		messages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "registry",
			Name:      "messages_total",
			Help:      "Chat messages broadcast to a room",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "registry",
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because a session mailbox was full",
		}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Open sessions",
		}),
		heartbeatTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "session",
			Name:      "heartbeat_timeouts_total",
			Help:      "Sessions terminated for missing heartbeats",
		}),
		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "session",
			Name:      "protocol_errors_total",
			Help:      "Protocol violations reported to clients, by reason",
		}, []string{"reason"}),
	}
}

// SetClients records the size of the client table.
func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(n))
}

// SetRooms records the size of the room table.
func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.rooms.Set(float64(n))
}

// Registration counts a join request; outcome is "admitted" or "awaiting".
func (m *Metrics) Registration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

// PeerAdmission counts a join admitted by a voucher.
func (m *Metrics) PeerAdmission() {
	if m == nil {
		return
	}
	m.admissions.Inc()
}

// Message counts a broadcast chat message.
func (m *Metrics) Message() {
	if m == nil {
		return
	}
	m.messages.Inc()
}

// Dropped counts n undelivered notifications.
func (m *Metrics) Dropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dropped.Add(float64(n))
}

// SessionOpened increments the active sessions gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

// SessionClosed decrements the active sessions gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

// HeartbeatTimeout counts a session closed for liveness.
func (m *Metrics) HeartbeatTimeout() {
	if m == nil {
		return
	}
	m.heartbeatTimeouts.Inc()
}

// ProtocolError counts a plain-text error reported to a client.
func (m *Metrics) ProtocolError(reason string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(reason).Inc()
}
