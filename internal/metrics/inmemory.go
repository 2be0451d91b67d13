package metrics

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	SessionCacheHits   uint64
	SessionCacheMisses uint64

	Logins           map[string]uint64
	Signups          map[string]uint64
	DomainEvents     map[string]uint64
	AssistantReplies map[string]uint64

	AssistantDurationCount   uint64
	AssistantDurationTotalNs int64

	MealLogsPublished  map[string]uint64
	MealLogsProcessed  map[string]uint64
	MealLogBatches     uint64
	MealLogBatchEvents uint64
	MealLogQueueDepth  int64

	WebhookDeliveries      map[string]uint64
	WebhookRetries         uint64
	WebhookDurationCount   uint64
	WebhookDurationTotalNs int64
	WebhookQueueDepth      int64
}

// InMemoryRecorder stores metrics in memory. It backs /metrics and tests.
type InMemoryRecorder struct {
	sessionCacheHits   uint64
	sessionCacheMisses uint64

	assistantDurationCount   uint64
	assistantDurationTotalNs int64

	mealLogBatches     uint64
	mealLogBatchEvents uint64
	mealLogQueueDepth  int64

	webhookRetries         uint64
	webhookDurationCount   uint64
	webhookDurationTotalNs int64
	webhookQueueDepth      int64

	mu       sync.Mutex
	labelled map[string]map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{labelled: make(map[string]map[string]uint64)}
}

func (m *InMemoryRecorder) incLabel(family, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counters, ok := m.labelled[family]
	if !ok {
		counters = make(map[string]uint64)
		m.labelled[family] = counters
	}
	counters[label]++
}

func (m *InMemoryRecorder) family(name string) map[string]uint64 {
	out := make(map[string]uint64, len(m.labelled[name]))
	maps.Copy(out, m.labelled[name])
	return out
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	snap := Snapshot{
		Logins:            m.family("login"),
		Signups:           m.family("signup"),
		DomainEvents:      m.family("domain"),
		AssistantReplies:  m.family("assistant"),
		MealLogsPublished: m.family("meal_published"),
		MealLogsProcessed: m.family("meal_processed"),
		WebhookDeliveries: m.family("webhook"),
	}
	m.mu.Unlock()

	snap.SessionCacheHits = atomic.LoadUint64(&m.sessionCacheHits)
	snap.SessionCacheMisses = atomic.LoadUint64(&m.sessionCacheMisses)
	snap.AssistantDurationCount = atomic.LoadUint64(&m.assistantDurationCount)
	snap.AssistantDurationTotalNs = atomic.LoadInt64(&m.assistantDurationTotalNs)
	snap.MealLogBatches = atomic.LoadUint64(&m.mealLogBatches)
	snap.MealLogBatchEvents = atomic.LoadUint64(&m.mealLogBatchEvents)
	snap.MealLogQueueDepth = atomic.LoadInt64(&m.mealLogQueueDepth)
	snap.WebhookRetries = atomic.LoadUint64(&m.webhookRetries)
	snap.WebhookDurationCount = atomic.LoadUint64(&m.webhookDurationCount)
	snap.WebhookDurationTotalNs = atomic.LoadInt64(&m.webhookDurationTotalNs)
	snap.WebhookQueueDepth = atomic.LoadInt64(&m.webhookQueueDepth)
	return snap
}

// IncSessionCacheHit increments the session cache hit counter.
func (m *InMemoryRecorder) IncSessionCacheHit() {
	atomic.AddUint64(&m.sessionCacheHits, 1)
}

// IncSessionCacheMiss increments the session cache miss counter.
func (m *InMemoryRecorder) IncSessionCacheMiss() {
	atomic.AddUint64(&m.sessionCacheMisses, 1)
}

// IncLogin counts a login attempt by outcome.
func (m *InMemoryRecorder) IncLogin(status string) { m.incLabel("login", status) }

// IncSignup counts a signup by role.
func (m *InMemoryRecorder) IncSignup(role string) { m.incLabel("signup", role) }

// IncDomainEvent counts a named domain event.
func (m *InMemoryRecorder) IncDomainEvent(name string) { m.incLabel("domain", name) }

// IncAssistantReply counts an assistant answer by source.
func (m *InMemoryRecorder) IncAssistantReply(source string) { m.incLabel("assistant", source) }

// ObserveAssistantDuration records assistant latency.
func (m *InMemoryRecorder) ObserveAssistantDuration(duration time.Duration) {
	atomic.AddUint64(&m.assistantDurationCount, 1)
	atomic.AddInt64(&m.assistantDurationTotalNs, duration.Nanoseconds())
}

// IncMealLogPublished counts meal logs handed to the stream.
func (m *InMemoryRecorder) IncMealLogPublished(status string) { m.incLabel("meal_published", status) }

// IncMealLogProcessed counts meal logs handled by the worker.
func (m *InMemoryRecorder) IncMealLogProcessed(status string) { m.incLabel("meal_processed", status) }

// ObserveMealLogBatchSize records one worker batch.
func (m *InMemoryRecorder) ObserveMealLogBatchSize(size int) {
	atomic.AddUint64(&m.mealLogBatches, 1)
	atomic.AddUint64(&m.mealLogBatchEvents, uint64(size))
}

// SetMealLogQueueDepth stores the pending stream length.
func (m *InMemoryRecorder) SetMealLogQueueDepth(depth int64) {
	atomic.StoreInt64(&m.mealLogQueueDepth, depth)
}

// IncWebhookDelivery counts a delivery attempt outcome.
func (m *InMemoryRecorder) IncWebhookDelivery(status, endpointID string) {
	m.incLabel("webhook", status)
}

// IncWebhookRetry counts a scheduled retry.
func (m *InMemoryRecorder) IncWebhookRetry(endpointID string, attempt int) {
	atomic.AddUint64(&m.webhookRetries, 1)
}

// ObserveWebhookDeliveryDuration records one delivery round trip.
func (m *InMemoryRecorder) ObserveWebhookDeliveryDuration(endpointID string, duration time.Duration) {
	atomic.AddUint64(&m.webhookDurationCount, 1)
	atomic.AddInt64(&m.webhookDurationTotalNs, duration.Nanoseconds())
}

// SetWebhookQueueDepth stores the count of due deliveries.
func (m *InMemoryRecorder) SetWebhookQueueDepth(depth int64) {
	atomic.StoreInt64(&m.webhookQueueDepth, depth)
}
