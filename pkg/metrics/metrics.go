// Package metrics – Prometheus metrics for the sync engine.
//
// Counters the engine updates during operation:
//   - trusttrade_channel_reconnects_total        – reconnect attempts scheduled
//   - trusttrade_channel_events_total{kind}      – wire events received, by tag
//   - trusttrade_messages_failed_total           – sends that timed out or errored
//   - trusttrade_notifications_merged_total{type} – notifications entering the feed
//
// Registered in init() and served by the simulator at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trusttrade_channel_reconnects_total",
			Help: "Presence channel reconnect attempts scheduled",
		},
	)

	mtxEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trusttrade_channel_events_total",
			Help: "Wire events received, by kind",
		},
		[]string{"kind"},
	)

	mtxFailedSends = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trusttrade_messages_failed_total",
			Help: "Chat message sends that timed out or errored",
		},
	)

	mtxNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trusttrade_notifications_merged_total",
			Help: "Notifications merged into the feed, by type",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(mtxReconnects, mtxEvents, mtxFailedSends, mtxNotifications)
}

func IncReconnect() { mtxReconnects.Inc() }

func IncEvent(kind string) { mtxEvents.WithLabelValues(kind).Inc() }

func IncFailedSend() { mtxFailedSends.Inc() }

func IncNotification(typ string) { mtxNotifications.WithLabelValues(typ).Inc() }
