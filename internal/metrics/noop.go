package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncSessionCacheHit() {}
func (n *NoopRecorder) IncSessionCacheMiss() {}
func (n *NoopRecorder) IncLogin(status string) {}
func (n *NoopRecorder) IncSignup(role string) {}
func (n *NoopRecorder) IncDomainEvent(name string) {}
func (n *NoopRecorder) IncAssistantReply(source string) {}
func (n *NoopRecorder) ObserveAssistantDuration(duration time.Duration) {}
func (n *NoopRecorder) IncMealLogPublished(status string) {}
func (n *NoopRecorder) IncMealLogProcessed(status string) {}
func (n *NoopRecorder) ObserveMealLogBatchSize(size int) {}
func (n *NoopRecorder) SetMealLogQueueDepth(depth int64) {}
func (n *NoopRecorder) IncWebhookDelivery(status, endpointID string) {}
func (n *NoopRecorder) IncWebhookRetry(endpointID string, attempt int) {}
func (n *NoopRecorder) SetWebhookQueueDepth(depth int64) {}
func (n *NoopRecorder) ObserveWebhookDeliveryDuration(string, time.Duration) {}
