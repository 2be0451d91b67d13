package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/smartdiet/smartdiet/internal/model"
)

// Repository stores endpoints and their delivery queue. It runs on
// database/sql with lib/pq, on a pool separate from the request path, so a
// backlog of deliveries cannot starve API queries.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Ping implements handler.HealthChecker.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

// collect drains rows through scan.
func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func affectedOne(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// Endpoints

const selectEndpoint = `
	SELECT id, user_id, name, description, target_url, event_types, enabled,
	       secret_hash, secret_encrypted, created_at, updated_at, deleted_at
	FROM webhook_endpoints`

func scanEndpoint(s scanner) (*model.WebhookEndpoint, error) {
	var (
		e     model.WebhookEndpoint
		types pq.StringArray
	)
	err := s.Scan(&e.ID, &e.UserID, &e.Name, &e.Description, &e.TargetURL, &types, &e.Enabled,
		&e.SecretHash, &e.SecretEncrypted, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt)
	if err != nil {
		return nil, err
	}
	e.EventTypes = make([]model.EventType, 0, len(types))
	for _, t := range types {
		e.EventTypes = append(e.EventTypes, model.EventType(t))
	}
	return &e, nil
}

func typeArray(types []model.EventType) pq.StringArray {
	arr := make(pq.StringArray, len(types))
	for i, t := range types {
		arr[i] = string(t)
	}
	return arr
}

// CreateEndpoint inserts e.
func (r *Repository) CreateEndpoint(ctx context.Context, e *model.WebhookEndpoint) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_endpoints (
			id, user_id, name, description, target_url, event_types, enabled,
			secret_hash, secret_encrypted, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.UserID, e.Name, e.Description, e.TargetURL, typeArray(e.EventTypes), e.Enabled,
		e.SecretHash, e.SecretEncrypted, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook endpoint: %w", err)
	}
	return nil
}

// GetEndpoint returns a non-deleted endpoint or ErrEndpointNotFound.
func (r *Repository) GetEndpoint(ctx context.Context, id string) (*model.WebhookEndpoint, error) {
	e, err := scanEndpoint(r.db.QueryRowContext(ctx,
		selectEndpoint+` WHERE id = $1 AND deleted_at IS NULL`, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrEndpointNotFound
	case err != nil:
		return nil, fmt.Errorf("get webhook endpoint: %w", err)
	}
	return e, nil
}

// ListEndpointsByUser returns a doctor's endpoints, newest first.
func (r *Repository) ListEndpointsByUser(ctx context.Context, userID string) ([]*model.WebhookEndpoint, error) {
	rows, err := r.db.QueryContext(ctx,
		selectEndpoint+` WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	return collect(rows, scanEndpoint)
}

// ListActiveEndpointsByUserAndEvent returns the endpoints that want et.
func (r *Repository) ListActiveEndpointsByUserAndEvent(ctx context.Context, userID string, et model.EventType) ([]*model.WebhookEndpoint, error) {
	rows, err := r.db.QueryContext(ctx, selectEndpoint+`
		WHERE user_id = $1 AND $2 = ANY(event_types) AND enabled AND deleted_at IS NULL
		ORDER BY created_at`, userID, string(et))
	if err != nil {
		return nil, fmt.Errorf("list subscribed endpoints: %w", err)
	}
	return collect(rows, scanEndpoint)
}

// UpdateEndpoint saves the editable fields of e.
func (r *Repository) UpdateEndpoint(ctx context.Context, e *model.WebhookEndpoint) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_endpoints
		SET name = $2, description = $3, target_url = $4, event_types = $5, enabled = $6, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		e.ID, e.Name, e.Description, e.TargetURL, typeArray(e.EventTypes), e.Enabled,
	)
	if err := affectedOne(res, err, ErrEndpointNotFound); err != nil {
		return fmt.Errorf("update webhook endpoint: %w", err)
	}
	return nil
}

// UpdateEndpointSecret swaps in a rotated secret.
func (r *Repository) UpdateEndpointSecret(ctx context.Context, id, hash, sealed string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_endpoints
		SET secret_hash = $2, secret_encrypted = $3, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id, hash, sealed)
	if err := affectedOne(res, err, ErrEndpointNotFound); err != nil {
		return fmt.Errorf("rotate webhook secret: %w", err)
	}
	return nil
}

// DeleteEndpoint soft-deletes an endpoint. Queued deliveries stay for the
// history view but are no longer claimed.
func (r *Repository) DeleteEndpoint(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_endpoints SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err := affectedOne(res, err, ErrEndpointNotFound); err != nil {
		return fmt.Errorf("delete webhook endpoint: %w", err)
	}
	return nil
}

// Deliveries

const deliveryFields = `id, endpoint_id, event_id, event_type, payload_json, status,
	attempt_count, max_attempts, next_retry_at, last_attempt_at, last_http_status,
	COALESCE(last_error, ''), created_at, updated_at`

func scanDelivery(s scanner, extra ...any) (*model.WebhookDelivery, error) {
	var d model.WebhookDelivery
	dest := []any{&d.ID, &d.EndpointID, &d.EventID, &d.EventType, &d.PayloadJSON, &d.Status,
		&d.AttemptCount, &d.MaxAttempts, &d.NextRetryAt, &d.LastAttemptAt, &d.LastHTTPStatus,
		&d.LastError, &d.CreatedAt, &d.UpdatedAt}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, fmt.Errorf("scan delivery: %w", err)
	}
	return &d, nil
}

func scanDeliveryRow(s scanner) (*model.WebhookDelivery, error) { return scanDelivery(s) }

// CreateDelivery queues d. The (event_id, endpoint_id) pair is unique, so
// republishing an event is a no-op.
func (r *Repository) CreateDelivery(ctx context.Context, d *model.WebhookDelivery) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (
			id, endpoint_id, event_id, event_type, payload_json, status,
			attempt_count, max_attempts, next_retry_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id, endpoint_id) DO NOTHING`,
		d.ID, d.EndpointID, d.EventID, string(d.EventType), d.PayloadJSON, string(d.Status),
		d.AttemptCount, d.MaxAttempts, d.NextRetryAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("queue webhook delivery: %w", err)
	}
	return nil
}

// ClaimDue leases up to limit deliveries whose retry time has passed. The
// lease pushes next_retry_at forward, so other workers skip them until it
// lapses; a worker that dies mid-send only delays the retry.
func (r *Repository) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*model.WebhookDelivery, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH due AS (
			SELECT d.id AS due_id
			FROM webhook_deliveries d
			JOIN webhook_endpoints e ON e.id = d.endpoint_id
			WHERE d.status IN ('pending', 'failed')
			  AND d.next_retry_at <= now()
			  AND e.enabled AND e.deleted_at IS NULL
			ORDER BY d.next_retry_at
			LIMIT $1
			FOR UPDATE OF d SKIP LOCKED
		)
		UPDATE webhook_deliveries
		SET next_retry_at = now() + $2::bigint * interval '1 millisecond'
		FROM due
		WHERE id = due.due_id
		RETURNING `+deliveryFields,
		limit, lease.Milliseconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("claim due deliveries: %w", err)
	}
	return collect(rows, scanDeliveryRow)
}

// DeliveryOutcome is the result of one send attempt.
type DeliveryOutcome struct {
	Status      model.DeliveryStatus
	HTTPStatus  int // 0 when the receiver never answered
	Error       string
	NextRetryAt time.Time
}

// RecordAttempt counts an attempt against delivery id and stores its
// outcome.
func (r *Repository) RecordAttempt(ctx context.Context, id string, o DeliveryOutcome) error {
	var httpStatus, lastError any
	if o.HTTPStatus != 0 {
		httpStatus = o.HTTPStatus
	}
	if o.Error != "" {
		lastError = truncateError(o.Error)
	}
	var next any
	if !o.NextRetryAt.IsZero() {
		next = o.NextRetryAt
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = $2,
		    attempt_count = attempt_count + 1,
		    last_attempt_at = now(),
		    last_http_status = $3,
		    last_error = $4,
		    next_retry_at = COALESCE($5, next_retry_at),
		    updated_at = now()
		WHERE id = $1`,
		id, string(o.Status), httpStatus, lastError, next,
	)
	if err != nil {
		return fmt.Errorf("record delivery attempt: %w", err)
	}
	return nil
}

func truncateError(msg string) string {
	const limit = 500
	if len(msg) <= limit {
		return msg
	}
	cut := limit
	for cut > 0 && msg[cut]&0xC0 == 0x80 {
		cut--
	}
	return msg[:cut]
}

// GetDelivery returns one delivery or ErrDeliveryNotFound.
func (r *Repository) GetDelivery(ctx context.Context, id string) (*model.WebhookDelivery, error) {
	d, err := scanDelivery(r.db.QueryRowContext(ctx,
		`SELECT `+deliveryFields+` FROM webhook_deliveries WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeliveryNotFound
	}
	return d, err
}

// DeliveryFilter pages through an endpoint's deliveries.
type DeliveryFilter struct {
	Statuses []string // empty means all
	Limit    int
	Offset   int
}

// ListDeliveries returns a page of an endpoint's deliveries, newest first,
// with the total matching count.
func (r *Repository) ListDeliveries(ctx context.Context, endpointID string, f DeliveryFilter) ([]*model.WebhookDelivery, int, error) {
	var statuses any
	if len(f.Statuses) > 0 {
		statuses = pq.StringArray(f.Statuses)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deliveryFields+`, COUNT(*) OVER ()
		FROM webhook_deliveries
		WHERE endpoint_id = $1 AND ($2::text[] IS NULL OR status = ANY($2))
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		endpointID, statuses, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list deliveries: %w", err)
	}

	var total int
	page, err := collect(rows, func(s scanner) (*model.WebhookDelivery, error) {
		return scanDelivery(s, &total)
	})
	if err != nil {
		return nil, 0, err
	}
	if len(page) == 0 && f.Offset > 0 {
		// Past the last page the window count is not returned.
		err = r.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM webhook_deliveries
			WHERE endpoint_id = $1 AND ($2::text[] IS NULL OR status = ANY($2))`,
			endpointID, statuses).Scan(&total)
		if err != nil {
			return nil, 0, fmt.Errorf("count deliveries: %w", err)
		}
	}
	return page, total, nil
}

// Requeue puts an exhausted delivery back in the queue for one more round.
func (r *Repository) Requeue(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = 'pending', next_retry_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'exhausted'`, id)
	if err := affectedOne(res, err, ErrDeliveryNotFound); err != nil {
		return fmt.Errorf("requeue delivery: %w", err)
	}
	return nil
}

// QueueDepth counts deliveries still awaiting a successful send.
func (r *Repository) QueueDepth(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM webhook_deliveries WHERE status IN ('pending', 'failed')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}
