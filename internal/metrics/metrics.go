// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every pktstream collector plus the Go and process collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// FramesTotal counts classified frames by protocol category
	FramesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktstream_frames_total",
			Help: "Total number of captured frames classified, by protocol",
		},
		[]string{"protocol"},
	)

	// FramesFilteredTotal counts frames discarded because they carry no IP layer
	FramesFilteredTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pktstream_frames_filtered_total",
			Help: "Total number of captured frames without an IP layer",
		},
	)

	// EventsDroppedTotal counts events dropped because the handoff queue was full
	EventsDroppedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pktstream_events_dropped_total",
			Help: "Total number of capture events dropped on a full handoff queue",
		},
	)

	// EventsDeliveredTotal counts events sent to a sink
	EventsDeliveredTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pktstream_events_delivered_total",
			Help: "Total number of capture events delivered to consumers",
		},
	)

	// SessionsActive tracks sessions currently streaming
	SessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pktstream_sessions_active",
			Help: "Number of capture sessions currently active",
		},
	)

	// SessionErrorsTotal counts sessions ended by a failure
	SessionErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktstream_session_errors_total",
			Help: "Total number of sessions ended by an error, by kind",
		},
		[]string{"kind"},
	)
)

// Session error kinds
const (
	KindStartup      = "startup"
	KindCapture      = "capture"
	KindTransmission = "transmission"
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
