package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics (admin server)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackrag_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slackrag_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Sync cycle metrics
	SyncCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackrag_sync_cycles_total",
			Help: "Total number of sync cycles run",
		},
		[]string{"status"},
	)

	SyncCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slackrag_sync_cycle_duration_seconds",
			Help:    "Duration of full sync cycles in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	ChannelsSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackrag_channels_synced_total",
			Help: "Total number of per-channel sync attempts",
		},
		[]string{"status"},
	)

	MessagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slackrag_messages_fetched_total",
			Help: "Total number of Slack messages fetched",
		},
	)

	MessagesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackrag_messages_skipped_total",
			Help: "Total number of Slack messages skipped during fetch",
		},
		[]string{"reason"},
	)

	DocumentsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackrag_documents_indexed_total",
			Help: "Total number of documents embedded and upserted",
		},
		[]string{"status"},
	)

	CursorCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackrag_cursor_commits_total",
			Help: "Total number of channel cursor commits",
		},
		[]string{"status"},
	)

	// Slack API metrics
	SlackAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackrag_slack_api_calls_total",
			Help: "Total number of Slack Web API calls",
		},
		[]string{"method", "status"},
	)

	RateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slackrag_rate_limit_waits_total",
			Help: "Total number of waits caused by Slack rate limiting",
		},
	)

	FetchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slackrag_fetch_retries_total",
			Help: "Total number of page fetch retries after transient errors",
		},
	)

	// OpenAI metrics
	EmbeddingGenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackrag_embedding_generations_total",
			Help: "Total number of embedding API calls",
		},
		[]string{"status"},
	)

	EmbeddingGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slackrag_embedding_generation_duration_seconds",
			Help:    "Duration of embedding generation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Storage metrics
	UpsertDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slackrag_upsert_duration_seconds",
			Help:    "Duration of vector store upserts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TotalPoints = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slackrag_total_points",
			Help: "Total number of points in the vector store",
		},
	)
)
