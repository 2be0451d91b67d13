package mealstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/model"
)

// ConsumerGroup is shared by every API instance; each instance reads as its
// own consumer so a meal log is aggregated once.
const ConsumerGroup = "progress_workers"

// Repository persists meal logs and their daily aggregates. Both calls
// must be idempotent on the log ID, since a batch can be replayed after a
// crash between write and XACK.
type Repository interface {
	BulkUpsert(ctx context.Context, logs []*model.MealLog) error
	UpdateDailyProgress(ctx context.Context, logs []*model.MealLog) error
}

// WorkerOption tunes a Worker.
type WorkerOption func(*workerConfig)

type workerConfig struct {
	batch      int
	block      time.Duration
	claimIdle  time.Duration
	claimEvery time.Duration
	attempts   int
	deliveries int64
}

// WithBatchSize caps how many messages one read returns. Default 200.
func WithBatchSize(n int) WorkerOption {
	return func(c *workerConfig) {
		if n > 0 {
			c.batch = n
		}
	}
}

// WithBlock sets how long XREADGROUP waits for new messages. Default 5s.
func WithBlock(d time.Duration) WorkerOption {
	return func(c *workerConfig) {
		if d > 0 {
			c.block = d
		}
	}
}

// WithClaimIdle sets how long a message may sit unacknowledged with a dead
// consumer before this one takes it over. Default 30s.
func WithClaimIdle(d time.Duration) WorkerOption {
	return func(c *workerConfig) {
		if d > 0 {
			c.claimIdle = d
		}
	}
}

// WithMaxDeliveries sets how many times an entry may be handed to a
// consumer before a reclaim moves it to the dead-letter stream instead of
// storing it again. Default 5.
func WithMaxDeliveries(n int) WorkerOption {
	return func(c *workerConfig) {
		if n > 0 {
			c.deliveries = int64(n)
		}
	}
}

// Worker aggregates meal logs from the stream into daily progress rows.
type Worker struct {
	rdb      *redis.Client
	repo     Repository
	logger   *slog.Logger
	metrics  metrics.Recorder
	consumer string
	cfg      workerConfig

	// Touched only by the Run goroutine.
	claimCursor string
	nextClaim   time.Time
	nextDepth   time.Time

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// NewWorker creates a worker reading as consumer within ConsumerGroup.
func NewWorker(rdb *redis.Client, repo Repository, logger *slog.Logger, consumer string, recorder metrics.Recorder, opts ...WorkerOption) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	cfg := workerConfig{
		batch:      200,
		block:      5 * time.Second,
		claimIdle:  30 * time.Second,
		claimEvery: 10 * time.Second,
		attempts:   3,
		deliveries: 5,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		rdb:         rdb,
		repo:        repo,
		logger:      logger.With("component", "mealstream.worker", "consumer", consumer),
		metrics:     recorder,
		consumer:    consumer,
		cfg:         cfg,
		claimCursor: "0-0",
	}
}

// EnsureGroup creates the stream and the consumer group if missing.
func (w *Worker) EnsureGroup(ctx context.Context) error {
	err := w.rdb.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Run consumes until ctx is cancelled or Shutdown is called. A stop via
// Shutdown lets the batch in hand finish and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.stop != nil {
		w.mu.Unlock()
		return errors.New("meal log worker already running")
	}
	w.stop, w.stopped = make(chan struct{}), make(chan struct{})
	stop, stopped := w.stop, w.stopped
	w.mu.Unlock()
	defer close(stopped)

	if err := w.EnsureGroup(ctx); err != nil {
		return err
	}
	w.logger.Info("meal log worker started")

	// Reads block for cfg.block, so a stop request cancels the read
	// instead of waiting it out.
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-readCtx.Done():
		}
	}()

	for {
		select {
		case <-stop:
			w.logger.Info("meal log worker stopped")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := w.ProcessOnce(readCtx)
		if err == nil || errors.Is(err, context.Canceled) {
			continue
		}
		w.logger.Error("meal log batch failed", "error", err)
		select {
		case <-time.After(time.Second):
		case <-readCtx.Done():
		}
	}
}

// Shutdown asks Run to return and waits for it. It has the
// server.ShutdownFunc signature.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	stop, stopped := w.stop, w.stopped
	if stop != nil {
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
	w.mu.Unlock()
	if stopped == nil {
		return nil
	}

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		w.logger.Warn("meal log worker did not stop in time")
		return ctx.Err()
	}
}

// ProcessOnce handles one batch: reclaimed messages from dead consumers
// first, otherwise new ones.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	w.reportDepth(ctx)

	msgs, err := w.reclaim(ctx)
	if err != nil {
		w.logger.Warn("reclaim pending meal logs", "error", err)
	}
	exhausted := w.exhausted(ctx, msgs)
	if len(msgs) == 0 {
		if msgs, err = w.read(ctx); err != nil {
			return err
		}
	}
	if len(msgs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(msgs))
	logs := make([]*model.MealLog, 0, len(msgs))
	for _, msg := range msgs {
		ids = append(ids, msg.ID)
		if n, ok := exhausted[msg.ID]; ok {
			w.deadLetter(ctx, msg, &rejection{"max_deliveries", fmt.Sprintf("delivered %d times without being stored", n)})
			continue
		}
		log, rejected := decodeMessage(msg)
		if rejected != nil {
			w.deadLetter(ctx, msg, rejected)
			continue
		}
		logs = append(logs, log)
	}

	if len(logs) > 0 {
		if err := w.store(ctx, logs); err != nil {
			// Left pending; a later reclaim retries the whole batch.
			return err
		}
	}
	if err := w.rdb.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

func (w *Worker) read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumer,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.cfg.batch),
		Block:    w.cfg.block,
	}).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("xreadgroup: %w", err)
	case len(streams) == 0:
		return nil, nil
	}
	return streams[0].Messages, nil
}

func (w *Worker) reclaim(ctx context.Context) ([]redis.XMessage, error) {
	now := time.Now()
	if now.Before(w.nextClaim) {
		return nil, nil
	}
	w.nextClaim = now.Add(w.cfg.claimEvery)

	msgs, cursor, err := w.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumer,
		MinIdle:  w.cfg.claimIdle,
		Start:    w.claimCursor,
		Count:    int64(w.cfg.batch),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if cursor != "" {
		w.claimCursor = cursor
	}
	if len(msgs) > 0 {
		w.logger.Info("reclaimed meal logs from an idle consumer", "count", len(msgs))
	}
	return msgs, nil
}

// exhausted returns the reclaimed entries whose delivery count reached the
// limit, keyed by ID. Lookup failures leave the entry to be stored again.
func (w *Worker) exhausted(ctx context.Context, msgs []redis.XMessage) map[string]int64 {
	if len(msgs) == 0 {
		return nil
	}
	var pending []redis.XPendingExt
	for _, msg := range msgs {
		ext, err := w.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: StreamKey,
			Group:  ConsumerGroup,
			Start:  msg.ID,
			End:    msg.ID,
			Count:  1,
		}).Result()
		if err != nil {
			w.logger.Warn("read meal log delivery count", "message_id", msg.ID, "error", err)
			continue
		}
		pending = append(pending, ext...)
	}
	return overDelivered(pending, w.cfg.deliveries)
}

func overDelivered(pending []redis.XPendingExt, limit int64) map[string]int64 {
	out := make(map[string]int64)
	for _, p := range pending {
		if p.RetryCount >= limit {
			out[p.ID] = p.RetryCount
		}
	}
	return out
}

// store writes a batch, retrying with 2s, 4s... between attempts.
func (w *Worker) store(ctx context.Context, logs []*model.MealLog) error {
	var err error
	for attempt := 1; attempt <= w.cfg.attempts; attempt++ {
		start := time.Now()
		if err = w.writeBatch(ctx, logs); err == nil {
			w.metrics.ObserveMealLogBatchSize(len(logs))
			w.countProcessed("success", len(logs))
			w.logger.Debug("meal log batch stored",
				"count", len(logs),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
		if attempt == w.cfg.attempts {
			break
		}

		wait := time.Duration(1<<attempt) * time.Second
		w.logger.Warn("meal log batch write failed", "attempt", attempt, "retry_in", wait, "error", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	w.countProcessed("failed", len(logs))
	return err
}

func (w *Worker) writeBatch(ctx context.Context, logs []*model.MealLog) error {
	if err := w.repo.BulkUpsert(ctx, logs); err != nil {
		return fmt.Errorf("store meal logs: %w", err)
	}
	if err := w.repo.UpdateDailyProgress(ctx, logs); err != nil {
		return fmt.Errorf("aggregate daily progress: %w", err)
	}
	return nil
}

func (w *Worker) countProcessed(status string, n int) {
	for i := 0; i < n; i++ {
		w.metrics.IncMealLogProcessed(status)
	}
}

// rejection explains why a message went to the dead-letter stream.
type rejection struct {
	reason string
	detail string
}

// decodeMessage turns a stream message into a meal log, or says why it
// cannot be stored.
func decodeMessage(msg redis.XMessage) (*model.MealLog, *rejection) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, &rejection{"invalid_format", "payload field missing or not a string"}
	}
	var p MealLogPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, &rejection{"unmarshal_error", err.Error()}
	}
	if err := ValidatePayload(p); err != nil {
		return nil, &rejection{"validation_error", err.Error()}
	}
	log, err := p.ToLog(msg.ID)
	if err != nil {
		return nil, &rejection{"validation_error", err.Error()}
	}
	return log, nil
}

func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, r *rejection) {
	w.logger.Warn("meal log dead-lettered", "message_id", msg.ID, "reason", r.reason, "detail", r.detail)
	w.metrics.IncMealLogProcessed("dead_lettered")

	err := w.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]any{
			"original_id":      msg.ID,
			"reason":           r.reason,
			"detail":           r.detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("write meal log dead letter", "message_id", msg.ID, "error", err)
	}
}

func (w *Worker) reportDepth(ctx context.Context) {
	now := time.Now()
	if now.Before(w.nextDepth) {
		return
	}
	w.nextDepth = now.Add(5 * time.Second)

	groups, err := w.rdb.XInfoGroups(ctx, StreamKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			w.logger.Warn("read meal log group info", "error", err)
		}
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.metrics.SetMealLogQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

func isConsumerGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
