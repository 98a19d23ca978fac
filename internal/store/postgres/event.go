package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/vendwell/webhookd/internal/webhook"
)

const eventColumns = `id, event_type, event_id, payload, metadata, source_id,
	source_type, user_id, vendor_id, is_processed, created_at`

func (s *Store) CreateEvent(ctx context.Context, evt *webhook.Event) error {
	payload, err := marshalJSON(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if payload == nil {
		empty := "{}"
		payload = &empty
	}
	metadata, err := marshalJSON(evt.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO webhookd.events(
			id, event_type, event_id, payload, metadata, source_id,
			source_type, user_id, vendor_id, is_processed, created_at)
		VALUES ($1,$2,$3,$4::jsonb,$5::jsonb,$6,$7,$8,$9,$10,$11)`,
		evt.ID, evt.EventType, evt.EventID, payload, metadata, evt.SourceID,
		evt.SourceType, evt.UserID, evt.VendorID, evt.IsProcessed, evt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*webhook.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM webhookd.events WHERE id = $1`, id)
	evt, err := scanEvent(row)
	if err != nil {
		return nil, notFound(err)
	}
	return evt, nil
}

func (s *Store) MarkEventProcessed(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE webhookd.events SET is_processed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, f webhook.EventFilter, limit, offset int) ([]*webhook.Event, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if f.SourceType != "" {
		add("source_type = $%d", f.SourceType)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.VendorID != "" {
		add("vendor_id = $%d", f.VendorID)
	}
	if f.IsProcessed != nil {
		add("is_processed = $%d", *f.IsProcessed)
	}

	q := `SELECT ` + eventColumns + ` FROM webhookd.events`
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
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*webhook.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func scanEvent(row rowScanner) (*webhook.Event, error) {
	var (
		evt               webhook.Event
		payload, metadata []byte
	)
	if err := row.Scan(
		&evt.ID, &evt.EventType, &evt.EventID, &payload, &metadata, &evt.SourceID,
		&evt.SourceType, &evt.UserID, &evt.VendorID, &evt.IsProcessed, &evt.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(payload, &evt.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := unmarshalJSON(metadata, &evt.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &evt, nil
}
