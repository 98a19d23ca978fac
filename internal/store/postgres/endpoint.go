package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vendwell/webhookd/internal/webhook"
)

const endpointColumns = `id, name, description, url, http_method, secret, content_type,
	max_retries, timeout_seconds, event_types, filters, headers, auth_type,
	auth_credentials, user_id, vendor_id, status, is_active, success_count,
	failure_count, last_success_at, last_failure_at, created_at, updated_at`

func (s *Store) CreateEndpoint(ctx context.Context, ep *webhook.Endpoint) error {
	filters, err := marshalJSON(ep.Filters)
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}
	headers, err := marshalJSON(ep.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	creds, err := marshalJSON(ep.AuthCredentials)
	if err != nil {
		return fmt.Errorf("marshal auth credentials: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO webhookd.endpoints(
			id, name, description, url, http_method, secret, content_type,
			max_retries, timeout_seconds, event_types, filters, headers,
			auth_type, auth_credentials, user_id, vendor_id, status, is_active,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::jsonb,$12::jsonb,$13,$14::jsonb,$15,$16,$17,$18,$19,$20)`,
		ep.ID, ep.Name, ep.Description, ep.URL, ep.HTTPMethod, ep.Secret, ep.ContentType,
		ep.MaxRetries, ep.TimeoutSeconds, ep.EventTypes, filters, headers,
		string(ep.AuthType), creds, ep.UserID, ep.VendorID, string(ep.Status), ep.IsActive,
		ep.CreatedAt, ep.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert endpoint: %w", err)
	}
	return nil
}

func (s *Store) GetEndpoint(ctx context.Context, id string) (*webhook.Endpoint, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+endpointColumns+` FROM webhookd.endpoints WHERE id = $1`, id)
	ep, err := scanEndpoint(row)
	if err != nil {
		return nil, notFound(err)
	}
	return ep, nil
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *webhook.Endpoint) error {
	filters, err := marshalJSON(ep.Filters)
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}
	headers, err := marshalJSON(ep.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	creds, err := marshalJSON(ep.AuthCredentials)
	if err != nil {
		return fmt.Errorf("marshal auth credentials: %w", err)
	}

	ct, err := s.pool.Exec(ctx, `
		UPDATE webhookd.endpoints
		SET name=$2, description=$3, url=$4, http_method=$5, secret=$6,
		    content_type=$7, max_retries=$8, timeout_seconds=$9, event_types=$10,
		    filters=$11::jsonb, headers=$12::jsonb, auth_type=$13,
		    auth_credentials=$14::jsonb, status=$15, is_active=$16, updated_at=$17
		WHERE id=$1`,
		ep.ID, ep.Name, ep.Description, ep.URL, ep.HTTPMethod, ep.Secret,
		ep.ContentType, ep.MaxRetries, ep.TimeoutSeconds, ep.EventTypes,
		filters, headers, string(ep.AuthType), creds, string(ep.Status), ep.IsActive,
		ep.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update endpoint: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteEndpoint(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM webhookd.endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context, f webhook.EndpointFilter, limit, offset int) ([]*webhook.Endpoint, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.EventType != "" {
		add("$%d = ANY(event_types)", f.EventType)
	}
	if f.IsActive != nil {
		add("is_active = $%d", *f.IsActive)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.VendorID != "" {
		add("vendor_id = $%d", f.VendorID)
	}

	q := `SELECT ` + endpointColumns + ` FROM webhookd.endpoints`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()

	var out []*webhook.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// RecordEndpointOutcome bumps the counters with an atomic in-place update,
// never read-modify-write: concurrently completing deliveries must not
// lose increments.
func (s *Store) RecordEndpointOutcome(ctx context.Context, id string, success bool, at time.Time) error {
	var q string
	if success {
		q = `UPDATE webhookd.endpoints
			SET success_count = success_count + 1, last_success_at = $2, updated_at = now()
			WHERE id = $1`
	} else {
		q = `UPDATE webhookd.endpoints
			SET failure_count = failure_count + 1, last_failure_at = $2, updated_at = now()
			WHERE id = $1`
	}
	ct, err := s.pool.Exec(ctx, q, id, at)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row rowScanner) (*webhook.Endpoint, error) {
	var (
		ep                      webhook.Endpoint
		authType, status        string
		filters, headers, creds []byte
	)
	if err := row.Scan(
		&ep.ID, &ep.Name, &ep.Description, &ep.URL, &ep.HTTPMethod, &ep.Secret,
		&ep.ContentType, &ep.MaxRetries, &ep.TimeoutSeconds, &ep.EventTypes,
		&filters, &headers, &authType, &creds, &ep.UserID, &ep.VendorID,
		&status, &ep.IsActive, &ep.SuccessCount, &ep.FailureCount,
		&ep.LastSuccessAt, &ep.LastFailureAt, &ep.CreatedAt, &ep.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ep.AuthType = webhook.AuthType(authType)
	ep.Status = webhook.EndpointStatus(status)
	if err := unmarshalJSON(filters, &ep.Filters); err != nil {
		return nil, fmt.Errorf("unmarshal filters: %w", err)
	}
	if err := unmarshalJSON(headers, &ep.Headers); err != nil {
		return nil, fmt.Errorf("unmarshal headers: %w", err)
	}
	if err := unmarshalJSON(creds, &ep.AuthCredentials); err != nil {
		return nil, fmt.Errorf("unmarshal auth credentials: %w", err)
	}
	return &ep, nil
}
