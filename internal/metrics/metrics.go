package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Webhooks by platform and outcome (success, failed, duplicate)
	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_webhooks_total",
			Help: "Inbound webhooks by outcome",
		},
		[]string{"platform", "outcome"},
	)

	// Sends by origin (campaign, auto_reply) and result (sent, failed, throttled)
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_sends_total",
			Help: "Outbound sends by origin and result",
		},
		[]string{"origin", "result"},
	)

	RateLimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_rate_limit_denials_total",
			Help: "Reservations refused by the rate limiter",
		},
		[]string{"reason"},
	)

	AutoRepliesMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_auto_replies_total",
			Help: "Auto-reply evaluations by result",
		},
		[]string{"result"}, // "matched", "no_match", "disabled", "dropped"
	)

	CampaignTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_campaign_ticks_total",
			Help: "Campaign dispatcher ticks by result",
		},
		[]string{"result"},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_campaign_tick_duration_seconds",
			Help:    "Duration of one campaign tick",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)
