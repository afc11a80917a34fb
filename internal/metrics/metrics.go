// Package metrics provides Prometheus instrumentation for the estate server:
// realtime connection and presence gauges, delivery counters, and latency
// histograms for message sends and HTTP requests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of open WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "estate_ws_connections",
		Help: "Current number of open WebSocket connections",
	})

	// OnlineUsers tracks the number of users with a presence route.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "estate_online_users",
		Help: "Current number of users bound to a live connection",
	})

	// BindsTotal counts identity announcements by result: "bound" or
	// "ignored".
	BindsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "estate_presence_binds_total",
		Help: "Identity announcements processed",
	}, []string{"result"})

	// DeliveriesTotal counts realtime delivery attempts by outcome:
	// "delivered", "offline" or "failed".
	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "estate_deliveries_total",
		Help: "Realtime delivery attempts by outcome",
	}, []string{"outcome"})

	// MessagesTotal counts chat messages by stage: "persisted", "rejected"
	// or "failed".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "estate_chat_messages_total",
		Help: "Chat messages processed by the coordinator",
	}, []string{"stage"})

	// MessageLatency records time from send request to completed routing.
	MessageLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "estate_message_latency_seconds",
		Help:    "Chat message send latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// HTTPRequestDuration records REST handler latency.
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "estate_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		BindsTotal,
		DeliveriesTotal,
		MessagesTotal,
		MessageLatency,
		HTTPRequestDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
