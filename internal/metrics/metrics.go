// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Session metrics
	IncSessionCacheHit()
	IncSessionCacheMiss()
	IncLogin(status string) // status: "success", "invalid", "role_mismatch"
	IncSignup(role string)

	// Domain events: request_created, request_approved, request_rejected,
	// diet_plan_saved, message_sent, review_created, consultation_booked,
	// document_uploaded, verification_submitted.
	IncDomainEvent(name string)

	// Assistant metrics
	IncAssistantReply(source string) // source: "llm", "fallback", "cache"
	ObserveAssistantDuration(duration time.Duration)

	// Meal log pipeline metrics
	IncMealLogPublished(status string) // status: "success", "fallback"
	IncMealLogProcessed(status string) // status: "success", "failed", "skipped"
	ObserveMealLogBatchSize(size int)
	SetMealLogQueueDepth(depth int64)

	// Webhook delivery metrics
	IncWebhookDelivery(status, endpointID string)
	IncWebhookRetry(endpointID string, attempt int)
	ObserveWebhookDeliveryDuration(endpointID string, duration time.Duration)
	SetWebhookQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
