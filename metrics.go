package firewatch

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "firewatch"

// streamMetrics holds the collectors of one StreamClient.
type streamMetrics struct {
	sessionsOpened    prometheus.Counter
	sessionCloses     *prometheus.CounterVec
	reconnects        prometheus.Counter
	reconnectDelay    prometheus.Histogram
	pingsSent         prometheus.Counter
	heartbeatTimeouts prometheus.Counter
	messages          *prometheus.CounterVec
	bootstraps        *prometheus.CounterVec
	state             prometheus.Gauge
}

// newStreamMetrics registers the stream collectors on reg. A nil reg gets a
// private registry. Clients sharing a registerer share its collectors, so
// counters aggregate across them and the state gauge shows the last writer.
func newStreamMetrics(reg prometheus.Registerer) *streamMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &streamMetrics{
		sessionsOpened: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stream",
			Name:      "sessions_opened_total",
			Help:      "Sessions that reached the open state.",
		})),
		sessionCloses: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stream",
			Name:      "session_closes_total",
			Help:      "Sessions that ended, by the state they ended in.",
		}, []string{"from"})),
		reconnects: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts scheduled.",
		})),
		reconnectDelay: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "stream",
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay chosen for each reconnect attempt.",
			Buckets:   []float64{1, 2, 4, 8, 16, 30},
		})),
		pingsSent: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stream",
			Name:      "pings_sent_total",
			Help:      "Heartbeat pings sent.",
		})),
		heartbeatTimeouts: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stream",
			Name:      "heartbeat_timeouts_total",
			Help:      "Sessions force-closed after a missed pong.",
		})),
		messages: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stream",
			Name:      "messages_total",
			Help:      "Inbound messages by kind.",
		}, []string{"kind"})),
		bootstraps: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stream",
			Name:      "bootstrap_total",
			Help:      "Snapshot fetches by result.",
		}, []string{"result"})),
		state: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "stream",
			Name:      "connection_state",
			Help:      "Current connection state (0 disconnected, 1 connecting, 2 open, 3 closing).",
		})),
	}
}

// register adds c to reg, or returns the collector already registered under
// the same descriptor. Any other registration error is a programming error.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var dup prometheus.AlreadyRegisteredError
	if errors.As(err, &dup) {
		if existing, ok := dup.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(err)
}
