package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// StateTransitions counts link state machine transitions.
	StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "net80211",
			Name:      "state_transitions_total",
			Help:      "Total number of link state machine transitions",
		},
		[]string{"link", "from", "to"},
	)

	// ScansStarted and ScansCompleted count scan controller runs.
	ScansStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "net80211",
			Name:      "scans_started_total",
			Help:      "Total number of scans started",
		},
		[]string{"link", "background"},
	)

	ScansCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "net80211",
			Name:      "scans_completed_total",
			Help:      "Total number of scans completed",
		},
		[]string{"link", "joined"},
	)

	// FramesReceived and FramesDropped count the receive path by class.
	FramesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "net80211",
			Name:      "frames_received_total",
			Help:      "Total number of frames accepted on the receive path",
		},
		[]string{"link", "class"},
	)

	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "net80211",
			Name:      "frames_dropped_total",
			Help:      "Total number of frames dropped on the receive path",
		},
		[]string{"link", "reason"},
	)

	// HandshakeFailures and ReplayDrops count the crypto paths.
	HandshakeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "net80211",
			Name:      "handshake_failures_total",
			Help:      "Total number of EAPOL 4-way handshake failures",
		},
		[]string{"link"},
	)

	ReplayDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "net80211",
			Name:      "replay_drops_total",
			Help:      "Total number of data frames dropped for failing replay detection",
		},
		[]string{"link", "sender"},
	)

	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// Idempotent.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(StateTransitions)
		prometheus.DefaultRegisterer.Register(ScansStarted)
		prometheus.DefaultRegisterer.Register(ScansCompleted)
		prometheus.DefaultRegisterer.Register(FramesReceived)
		prometheus.DefaultRegisterer.Register(FramesDropped)
		prometheus.DefaultRegisterer.Register(HandshakeFailures)
		prometheus.DefaultRegisterer.Register(ReplayDrops)
	})
}
