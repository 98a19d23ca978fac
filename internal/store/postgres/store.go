// Package postgres implements the webhook Store on a pgx connection pool.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendwell/webhookd/internal/webhook"
)

//go:embed schema.sql
var schemaSQL string

// Store persists webhook state in Postgres under the webhookd schema.
type Store struct {
	pool *pgxpool.Pool
}

var _ webhook.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the webhookd schema and tables if absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Stats aggregates the rollup in a single round trip per table.
func (s *Store) Stats(ctx context.Context) (*webhook.Stats, error) {
	st := &webhook.Stats{ByStatus: make(map[string]int64)}

	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM webhookd.endpoints`).Scan(&st.TotalEndpoints); err != nil {
		return nil, fmt.Errorf("count endpoints: %w", err)
	}
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM webhookd.events`).Scan(&st.TotalEvents); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM webhookd.deliveries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		st.ByStatus[status] = n
		st.TotalDeliveries += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if st.TotalDeliveries > 0 {
		st.SuccessRate = float64(st.ByStatus[string(webhook.DeliverySuccess)]) / float64(st.TotalDeliveries)
	}
	return st, nil
}

// Cleanup deletes events, deliveries and logs older than the cutoff.
// Deliveries go first so the event FK never blocks the sweep.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Time) (*webhook.CleanupResult, error) {
	res := &webhook.CleanupResult{}

	ct, err := s.pool.Exec(ctx,
		`DELETE FROM webhookd.deliveries WHERE created_at < $1`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("cleanup deliveries: %w", err)
	}
	res.DeletedDeliveries = ct.RowsAffected()

	ct, err = s.pool.Exec(ctx, `
		DELETE FROM webhookd.events
		WHERE created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM webhookd.deliveries d WHERE d.event_id = events.id)`,
		olderThan)
	if err != nil {
		return nil, fmt.Errorf("cleanup events: %w", err)
	}
	res.DeletedEvents = ct.RowsAffected()

	ct, err = s.pool.Exec(ctx,
		`DELETE FROM webhookd.delivery_logs WHERE created_at < $1`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("cleanup logs: %w", err)
	}
	res.DeletedLogs = ct.RowsAffected()
	return res, nil
}

// --- helpers ---

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return webhook.ErrNotFound
	}
	return err
}

// marshalJSON renders a value as JSONB text, passing NULL for empty maps.
// Marshal once and cast ::jsonb in SQL to avoid driver type ambiguity.
func marshalJSON(v any) (*string, error) {
	switch m := v.(type) {
	case map[string]any:
		if len(m) == 0 {
			return nil, nil
		}
	case map[string]string:
		if len(m) == 0 {
			return nil, nil
		}
	case nil:
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	str := string(b)
	return &str, nil
}

func unmarshalJSON[T any](raw []byte, dst *T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}
