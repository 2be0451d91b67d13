package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/model"
)

// WorkerOptions tunes the delivery loop. Zero values take the defaults.
type WorkerOptions struct {
	// AllowPrivate lets deliveries reach private addresses (development).
	AllowPrivate bool
	// BatchSize is how many due deliveries one poll claims. Default 50.
	BatchSize int
	// Concurrency bounds parallel POSTs within a batch. Default 8.
	Concurrency int
	// PollInterval is the idle wait between polls. Default 5s.
	PollInterval time.Duration
	// Lease hides claimed deliveries from other workers. Default 2m.
	Lease time.Duration
	// Backoff defaults to DefaultBackoff.
	Backoff *Backoff
}

// Worker sends queued deliveries. Several API instances can run one each;
// claims use SKIP LOCKED so a delivery is sent by one worker at a time.
type Worker struct {
	repo    *Repository
	box     *SecretBox
	sender  *sender
	logger  *slog.Logger
	metrics metrics.Recorder
	opts    WorkerOptions
	backoff Backoff

	lastDepth time.Time
	running   atomic.Bool
}

// NewWorker builds a worker over repo. box opens endpoint secrets.
func NewWorker(repo *Repository, box *SecretBox, logger *slog.Logger, recorder metrics.Recorder, opts WorkerOptions) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Lease <= 0 {
		opts.Lease = 2 * time.Minute
	}
	backoff := DefaultBackoff
	if opts.Backoff != nil {
		backoff = *opts.Backoff
	}
	return &Worker{
		repo:    repo,
		box:     box,
		sender:  newSender(opts.AllowPrivate),
		logger:  logger.With("component", "webhook.worker"),
		metrics: recorder,
		opts:    opts,
		backoff: backoff,
	}
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// another poll so a backlog drains without waiting for the ticker.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("webhook worker already running")
	}
	defer w.running.Store(false)

	w.logger.Info("webhook worker started",
		"poll_interval", w.opts.PollInterval,
		"concurrency", w.opts.Concurrency,
	)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		n, err := w.poll(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return ctx.Err()
		case err != nil:
			w.logger.Error("webhook poll failed", "error", err)
		}
		if n == w.opts.BatchSize {
			timer.Reset(0)
		} else {
			timer.Reset(w.opts.PollInterval)
		}
	}
}

// ProcessOnce claims and sends one batch.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	_, err := w.poll(ctx)
	return err
}

func (w *Worker) poll(ctx context.Context) (int, error) {
	w.reportDepth(ctx)

	batch, err := w.repo.ClaimDue(ctx, w.opts.BatchSize, w.opts.Lease)
	if err != nil {
		return 0, fmt.Errorf("claim deliveries: %w", err)
	}

	// Endpoints are looked up once per batch; many events fan out to the
	// same doctor's hook.
	endpoints := newEndpointMemo(w.repo, w.box)
	sem := make(chan struct{}, w.opts.Concurrency)
	var wg sync.WaitGroup
	for _, d := range batch {
		sem <- struct{}{}
		wg.Add(1)
		go func(d *model.WebhookDelivery) {
			defer func() { <-sem; wg.Done() }()
			if err := w.attempt(ctx, endpoints, d); err != nil {
				w.logger.Error("record delivery attempt", "delivery_id", d.ID, "error", err)
			}
		}(d)
	}
	wg.Wait()
	return len(batch), nil
}

// attempt sends d once and records the outcome. The returned error is
// about recording, not about the receiver.
func (w *Worker) attempt(ctx context.Context, endpoints *endpointMemo, d *model.WebhookDelivery) error {
	target, err := endpoints.get(ctx, d.EndpointID)
	var perm permanentFailure
	if errors.As(err, &perm) {
		return w.fail(ctx, d, 0, perm.reason, true)
	}
	if err != nil {
		return err
	}

	res, sendErr := w.sender.send(ctx, target.url, target.secret, string(d.EventType), d.ID, []byte(d.PayloadJSON))
	w.metrics.ObserveWebhookDeliveryDuration(d.EndpointID, res.duration)

	if sendErr == nil && res.ok() {
		w.metrics.IncWebhookDelivery(string(model.DeliveryStatusSuccess), d.EndpointID)
		w.logger.Info("webhook delivered",
			"delivery_id", d.ID,
			"event_type", d.EventType,
			"target_host", TargetHost(target.url),
			"http_status", res.status,
			"duration_ms", res.duration.Milliseconds(),
		)
		return w.repo.RecordAttempt(ctx, d.ID, DeliveryOutcome{
			Status:     model.DeliveryStatusSuccess,
			HTTPStatus: res.status,
		})
	}

	reason := fmt.Sprintf("HTTP %d", res.status)
	switch {
	case sendErr != nil:
		reason = sendErr.Error()
	case res.excerpt != "":
		reason += ": " + res.excerpt
	}
	return w.fail(ctx, d, res.status, reason, exhausted(d.AttemptCount+1, d.MaxAttempts))
}

func (w *Worker) fail(ctx context.Context, d *model.WebhookDelivery, status int, reason string, final bool) error {
	outcome := model.DeliveryStatusFailed
	if final {
		outcome = model.DeliveryStatusExhausted
	} else {
		w.metrics.IncWebhookRetry(d.EndpointID, d.AttemptCount+1)
	}
	w.metrics.IncWebhookDelivery(string(outcome), d.EndpointID)
	w.logger.Warn("webhook delivery failed",
		"delivery_id", d.ID,
		"attempt", d.AttemptCount+1,
		"status", outcome,
		"error", reason,
	)

	o := DeliveryOutcome{Status: outcome, HTTPStatus: status, Error: reason}
	if !final {
		o.NextRetryAt = time.Now().Add(w.backoff.Delay(d.AttemptCount))
	}
	return w.repo.RecordAttempt(ctx, d.ID, o)
}

func (w *Worker) reportDepth(ctx context.Context) {
	if time.Since(w.lastDepth) < 10*time.Second {
		return
	}
	w.lastDepth = time.Now()
	depth, err := w.repo.QueueDepth(ctx)
	if err != nil {
		w.logger.Warn("webhook queue depth", "error", err)
		return
	}
	w.metrics.SetWebhookQueueDepth(depth)
}

// resolvedEndpoint is a deliverable target with its secret opened.
type resolvedEndpoint struct {
	url    string
	secret string
}

type endpointMemo struct {
	repo *Repository
	box  *SecretBox

	mu   sync.Mutex
	seen map[string]memoEntry
}

type memoEntry struct {
	target resolvedEndpoint
	err    error
}

func newEndpointMemo(repo *Repository, box *SecretBox) *endpointMemo {
	return &endpointMemo{repo: repo, box: box, seen: make(map[string]memoEntry)}
}

// get returns a permanentFailure when the endpoint can never accept this
// delivery, and a plain error when the lookup itself failed.
func (m *endpointMemo) get(ctx context.Context, id string) (resolvedEndpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.seen[id]; ok {
		return e.target, e.err
	}

	var e memoEntry
	endpoint, err := m.repo.GetEndpoint(ctx, id)
	switch {
	case errors.Is(err, ErrEndpointNotFound):
		e.err = permanentFailure{"endpoint deleted"}
	case err != nil:
		return resolvedEndpoint{}, err
	case !endpoint.IsActive():
		e.err = permanentFailure{"endpoint disabled"}
	default:
		secret, err := m.box.Open(endpoint.SecretEncrypted)
		if err != nil {
			e.err = permanentFailure{"signing secret unreadable"}
		} else {
			e.target = resolvedEndpoint{url: endpoint.TargetURL, secret: secret}
		}
	}
	m.seen[id] = e
	return e.target, e.err
}
