// Package metrics defines the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the engine exports. A single instance
// is created at composition time and threaded through the components.
type Metrics struct {
	AlertsDispatched *prometheus.CounterVec
	SpeechUtterances prometheus.Counter
	HitsSuppressed   prometheus.Counter

	RefreshTotal    prometheus.Counter
	RefreshFailures prometheus.Counter
	FeaturesCached  prometheus.Gauge

	PushReconnects prometheus.Counter
	PushState      prometheus.Gauge

	BackgroundScans    prometheus.Counter
	BackgroundScanErrs prometheus.Counter
}

// New registers all collectors against reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AlertsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proximity_alerts_dispatched_total",
			Help: "Alerts dispatched to the notification channel, by producer source.",
		}, []string{"source"}),
		SpeechUtterances: factory.NewCounter(prometheus.CounterOpts{
			Name: "proximity_speech_utterances_total",
			Help: "Speech utterances that passed the voice cooldown.",
		}),
		HitsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "proximity_hits_suppressed_total",
			Help: "Matched hits suppressed by the per-feature announcement window.",
		}),
		RefreshTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "proximity_hazard_refresh_total",
			Help: "Hazard dataset refresh attempts.",
		}),
		RefreshFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "proximity_hazard_refresh_failures_total",
			Help: "Hazard dataset refresh attempts that failed.",
		}),
		FeaturesCached: factory.NewGauge(prometheus.GaugeOpts{
			Name: "proximity_hazard_features_cached",
			Help: "Hazard features in the live cache after the last successful refresh.",
		}),
		PushReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "proximity_push_reconnects_total",
			Help: "Reconnect attempts scheduled by the push channel.",
		}),
		PushState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "proximity_push_connection_state",
			Help: "Push channel state: 0 disconnected, 1 connecting, 2 connected.",
		}),
		BackgroundScans: factory.NewCounter(prometheus.CounterOpts{
			Name: "proximity_background_scans_total",
			Help: "Background scan invocations.",
		}),
		BackgroundScanErrs: factory.NewCounter(prometheus.CounterOpts{
			Name: "proximity_background_scan_errors_total",
			Help: "Background scan invocations that returned early on a decode failure.",
		}),
	}
}
