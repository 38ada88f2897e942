// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	WebhooksReceived   = expvar.NewInt("webhooks_received")
	WebhooksRejected   = expvar.NewInt("webhooks_rejected")
	RunsEnqueued       = expvar.NewInt("runs_enqueued")
	RunsCompleted      = expvar.NewInt("runs_completed")
	RunsSkipped        = expvar.NewInt("runs_skipped")
	RunsFailed         = expvar.NewInt("runs_failed")
	EventsIngested     = expvar.NewInt("events_ingested")
	IngestRejected     = expvar.NewInt("ingest_rejected")
	InferenceCalls     = expvar.NewInt("inference_calls")
	InferenceFallbacks = expvar.NewInt("inference_fallbacks")
	PullRequestsOpened = expvar.NewInt("pull_requests_opened")
	AlertsDispatched   = expvar.NewInt("alerts_dispatched")
	AlertsFailed       = expvar.NewInt("alerts_failed")
)
