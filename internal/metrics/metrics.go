package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "supportdesk_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	WSMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_ws_messages_received_total",
		Help: "WebSocket messages received by type.",
	}, []string{"type"})

	WSMessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_ws_messages_sent_total",
		Help: "WebSocket messages sent by type.",
	}, []string{"type"})

	WSConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "supportdesk_ws_connections_active",
		Help: "Currently open widget/admin WebSocket connections.",
	})

	TokensStreamed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportdesk_reply_chunks_streamed_total",
		Help: "Token chunks forwarded to clients by the reply pipeline.",
	})

	RepliesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportdesk_replies_persisted_total",
		Help: "AI replies durably stored after natural stream completion.",
	})

	ReplyStreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_reply_failures_total",
		Help: "Reply pipeline failures by stage (stream, persist).",
	}, []string{"stage"})

	RemindersSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_reminders_sent_total",
		Help: "Reminder emails sent by kind (session, message).",
	}, []string{"kind"})

	ReminderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_reminder_failures_total",
		Help: "Reminder email send failures by kind.",
	}, []string{"kind"})
)
