package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/smartdiet/smartdiet/internal/metrics"
)

// MetricsHandler serves the in-memory recorder in Prometheus text format.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics renders the current snapshot.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	var e exposition
	s := h.snapshotter.Snapshot()

	e.counter("smartdiet_session_cache_hits_total", s.SessionCacheHits)
	e.counter("smartdiet_session_cache_misses_total", s.SessionCacheMisses)
	e.labelled("smartdiet_logins_total", "status", s.Logins)
	e.labelled("smartdiet_signups_total", "role", s.Signups)
	e.labelled("smartdiet_domain_events_total", "event", s.DomainEvents)

	e.labelled("smartdiet_assistant_replies_total", "source", s.AssistantReplies)
	e.summary("smartdiet_assistant_duration_seconds", s.AssistantDurationCount, s.AssistantDurationTotalNs)

	e.labelled("smartdiet_meal_logs_published_total", "status", s.MealLogsPublished)
	e.labelled("smartdiet_meal_logs_processed_total", "status", s.MealLogsProcessed)
	e.counter("smartdiet_meal_log_batches_total", s.MealLogBatches)
	e.counter("smartdiet_meal_log_batch_events_total", s.MealLogBatchEvents)
	e.gauge("smartdiet_meal_log_queue_depth", s.MealLogQueueDepth)

	e.labelled("smartdiet_webhook_deliveries_total", "status", s.WebhookDeliveries)
	e.counter("smartdiet_webhook_retries_total", s.WebhookRetries)
	e.summary("smartdiet_webhook_delivery_duration_seconds", s.WebhookDurationCount, s.WebhookDurationTotalNs)
	e.gauge("smartdiet_webhook_queue_depth", s.WebhookQueueDepth)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Header().Set("Content-Length", strconv.Itoa(e.buf.Len()))
	_, _ = w.Write(e.buf.Bytes())
}

// exposition accumulates metric families so the response is written once.
type exposition struct {
	buf bytes.Buffer
}

func (e *exposition) family(name, kind string) {
	fmt.Fprintf(&e.buf, "# TYPE %s %s\n", name, kind)
}

func (e *exposition) counter(name string, v uint64) {
	e.family(name, "counter")
	fmt.Fprintf(&e.buf, "%s %d\n", name, v)
}

func (e *exposition) gauge(name string, v int64) {
	e.family(name, "gauge")
	fmt.Fprintf(&e.buf, "%s %d\n", name, v)
}

func (e *exposition) summary(name string, count uint64, totalNs int64) {
	e.family(name, "summary")
	fmt.Fprintf(&e.buf, "%s_count %d\n", name, count)
	fmt.Fprintf(&e.buf, "%s_sum %.6f\n", name, time.Duration(totalNs).Seconds())
}

// labelled writes one sample per label value, sorted for stable output.
func (e *exposition) labelled(name, label string, values map[string]uint64) {
	e.family(name, "counter")
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&e.buf, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}
