package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pilotMetricsOnce sync.Once
	pilotRegistry    *PilotMetrics

	devnodeMetricsOnce sync.Once
	devnodeRegistry    *DevnodeMetrics
)

// PilotMetrics wraps collectors tracking the node lifecycle controller.
type PilotMetrics struct {
	events           *prometheus.CounterVec
	actions          *prometheus.CounterVec
	dispatchLatency  *prometheus.HistogramVec
	shutdownTriggers *prometheus.CounterVec
	nodeUp           prometheus.Gauge
}

// Pilot returns the lazily-initialised metrics registry for the controller.
func Pilot() *PilotMetrics {
	pilotMetricsOnce.Do(func() {
		pilotRegistry = &PilotMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nodepilot",
				Name:      "events_total",
				Help:      "Count of node events dispatched and acknowledged, segmented by kind.",
			}, []string{"kind"}),
			actions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nodepilot",
				Name:      "actions_total",
				Help:      "Count of event-triggered node actions segmented by action and outcome.",
			}, []string{"action", "outcome"}),
			dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nodepilot",
				Name:      "dispatch_duration_seconds",
				Help:      "Latency distribution for dispatching a single node event.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
			shutdownTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nodepilot",
				Name:      "shutdown_triggers_total",
				Help:      "Count of shutdown triggers that won the race, segmented by source.",
			}, []string{"trigger"}),
			nodeUp: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nodepilot",
				Name:      "node_up",
				Help:      "Indicates whether the managed node is running (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			pilotRegistry.events,
			pilotRegistry.actions,
			pilotRegistry.dispatchLatency,
			pilotRegistry.shutdownTriggers,
			pilotRegistry.nodeUp,
		)
	})
	return pilotRegistry
}

// ObserveEvent records a dispatched event and how long it took.
func (m *PilotMetrics) ObserveEvent(kind string, d time.Duration) {
	if m == nil {
		return
	}
	label := labelOrUnknown(kind)
	m.events.WithLabelValues(label).Inc()
	m.dispatchLatency.WithLabelValues(label).Observe(d.Seconds())
}

// RecordAction increments the action counter. Outcomes should be stable
// strings such as "success", "error" or "skipped".
func (m *PilotMetrics) RecordAction(action, outcome string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(labelOrUnknown(action), labelOrUnknown(outcome)).Inc()
}

// RecordShutdown counts the trigger that initiated shutdown.
func (m *PilotMetrics) RecordShutdown(trigger string) {
	if m == nil {
		return
	}
	m.shutdownTriggers.WithLabelValues(labelOrUnknown(trigger)).Inc()
}

// SetNodeUp toggles the node_up gauge.
func (m *PilotMetrics) SetNodeUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.nodeUp.Set(1)
		return
	}
	m.nodeUp.Set(0)
}

// EventsCounter exposes the events counter for tests.
func (m *PilotMetrics) EventsCounter() *prometheus.CounterVec { return m.events }

// ActionsCounter exposes the actions counter for tests.
func (m *PilotMetrics) ActionsCounter() *prometheus.CounterVec { return m.actions }

// ShutdownCounter exposes the shutdown trigger counter for tests.
func (m *PilotMetrics) ShutdownCounter() *prometheus.CounterVec { return m.shutdownTriggers }

// NodeUpGauge exposes the node_up gauge for tests.
func (m *PilotMetrics) NodeUpGauge() prometheus.Gauge { return m.nodeUp }

// DevnodeMetrics wraps collectors for the development node.
type DevnodeMetrics struct {
	queueDepth prometheus.Gauge
	tipHeight  prometheus.Gauge
	syncErrors prometheus.Counter
	offers     *prometheus.CounterVec
}

// Devnode returns the lazily-initialised development node registry.
func Devnode() *DevnodeMetrics {
	devnodeMetricsOnce.Do(func() {
		devnodeRegistry = &DevnodeMetrics{
			queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nodepilot",
				Subsystem: "devnode",
				Name:      "event_queue_depth",
				Help:      "Number of events waiting to be acknowledged.",
			}),
			tipHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nodepilot",
				Subsystem: "devnode",
				Name:      "chain_tip_height",
				Help:      "Most recent chain tip height reported by the Esplora endpoint.",
			}),
			syncErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nodepilot",
				Subsystem: "devnode",
				Name:      "chain_sync_errors_total",
				Help:      "Count of failed chain tip polls.",
			}),
			offers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nodepilot",
				Subsystem: "devnode",
				Name:      "offers_created_total",
				Help:      "Count of offers created segmented by amount mode.",
			}, []string{"mode"}),
		}
		prometheus.MustRegister(
			devnodeRegistry.queueDepth,
			devnodeRegistry.tipHeight,
			devnodeRegistry.syncErrors,
			devnodeRegistry.offers,
		)
	})
	return devnodeRegistry
}

// SetQueueDepth records the number of unacknowledged events.
func (m *DevnodeMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// SetTipHeight records the latest observed chain tip.
func (m *DevnodeMetrics) SetTipHeight(height uint32) {
	if m == nil {
		return
	}
	m.tipHeight.Set(float64(height))
}

// RecordSyncError increments the chain sync failure counter.
func (m *DevnodeMetrics) RecordSyncError() {
	if m == nil {
		return
	}
	m.syncErrors.Inc()
}

// RecordOffer counts a created offer; mode is "fixed" or "variable".
func (m *DevnodeMetrics) RecordOffer(mode string) {
	if m == nil {
		return
	}
	m.offers.WithLabelValues(labelOrUnknown(mode)).Inc()
}

func labelOrUnknown(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}
