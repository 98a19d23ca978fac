package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vendwell/webhookd/internal/webhook"
)

const deliveryColumns = `id, endpoint_id, event_id, attempt_number, request_url,
	request_method, request_headers, request_body, status, response_status,
	response_body, response_time_ms, error_message, scheduled_at, delivered_at,
	next_retry_at, created_at, updated_at`

func (s *Store) CreateDelivery(ctx context.Context, d *webhook.Delivery) error {
	headers, err := marshalJSON(d.RequestHeaders)
	if err != nil {
		return fmt.Errorf("marshal request headers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO webhookd.deliveries(
			id, endpoint_id, event_id, attempt_number, request_url, request_method,
			request_headers, request_body, status, scheduled_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9,$10,$11,$12)`,
		d.ID, d.EndpointID, d.EventID, d.AttemptNumber, d.RequestURL, d.RequestMethod,
		headers, d.RequestBody, string(d.Status), d.ScheduledAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, id string) (*webhook.Delivery, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM webhookd.deliveries WHERE id = $1`, id)
	d, err := scanDelivery(row)
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d *webhook.Delivery) error {
	headers, err := marshalJSON(d.RequestHeaders)
	if err != nil {
		return fmt.Errorf("marshal request headers: %w", err)
	}
	var respStatus *int
	if d.ResponseStatus != 0 {
		respStatus = &d.ResponseStatus
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE webhookd.deliveries
		SET attempt_number=$2, request_url=$3, request_method=$4,
		    request_headers=$5::jsonb, request_body=$6, status=$7,
		    response_status=$8, response_body=$9, response_time_ms=$10,
		    error_message=$11, delivered_at=$12, next_retry_at=$13, updated_at=$14
		WHERE id=$1`,
		d.ID, d.AttemptNumber, d.RequestURL, d.RequestMethod,
		headers, d.RequestBody, string(d.Status),
		respStatus, d.ResponseBody, d.ResponseTimeMs,
		d.ErrorMessage, d.DeliveredAt, d.NextRetryAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

func (s *Store) ListDeliveries(ctx context.Context, f webhook.DeliveryFilter, limit, offset int) ([]*webhook.Delivery, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.EndpointID != "" {
		add("endpoint_id = $%d", f.EndpointID)
	}
	if f.EventID != "" {
		add("event_id = $%d", f.EventID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	q := `SELECT ` + deliveryColumns + ` FROM webhookd.deliveries`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limitOrDefault(limit))
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	if offset > 0 {
		args = append(args, offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []*webhook.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) DueDeliveries(ctx context.Context, now time.Time, limit int) ([]*webhook.Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM webhookd.deliveries
		WHERE status = 'failed' AND next_retry_at IS NOT NULL AND next_retry_at <= $1
		ORDER BY next_retry_at ASC
		LIMIT $2`,
		now, limitOrDefault(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("due deliveries: %w", err)
	}
	defer rows.Close()

	var out []*webhook.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ClaimRetry transitions an awaiting-retry delivery back to pending in one
// atomic statement. The WHERE clause is the guard: a second claimer finds
// zero rows and falls through to reading the current state.
func (s *Store) ClaimRetry(ctx context.Context, id string) (*webhook.Delivery, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE webhookd.deliveries
		SET status='pending', attempt_number = attempt_number + 1,
		    next_retry_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'failed' AND next_retry_at IS NOT NULL
		RETURNING `+deliveryColumns,
		id,
	)
	d, err := scanDelivery(row)
	if err == nil {
		return d, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// Not claimable; report the existing state if the row exists at all.
	d, err = s.GetDelivery(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return d, false, nil
}

func scanDelivery(row rowScanner) (*webhook.Delivery, error) {
	var (
		d          webhook.Delivery
		status     string
		headers    []byte
		respStatus *int
	)
	if err := row.Scan(
		&d.ID, &d.EndpointID, &d.EventID, &d.AttemptNumber, &d.RequestURL,
		&d.RequestMethod, &headers, &d.RequestBody, &status, &respStatus,
		&d.ResponseBody, &d.ResponseTimeMs, &d.ErrorMessage, &d.ScheduledAt,
		&d.DeliveredAt, &d.NextRetryAt, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Status = webhook.DeliveryStatus(status)
	if respStatus != nil {
		d.ResponseStatus = *respStatus
	}
	if err := unmarshalJSON(headers, &d.RequestHeaders); err != nil {
		return nil, fmt.Errorf("unmarshal request headers: %w", err)
	}
	return &d, nil
}
