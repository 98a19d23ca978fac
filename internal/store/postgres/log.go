package postgres

import (
	"context"
	"fmt"

	"github.com/vendwell/webhookd/internal/webhook"
)

func (s *Store) AppendLog(ctx context.Context, entry *webhook.LogEntry) error {
	detail, err := marshalJSON(entry.Detail)
	if err != nil {
		return fmt.Errorf("marshal log detail: %w", err)
	}
	var deliveryID *string
	if entry.DeliveryID != "" {
		deliveryID = &entry.DeliveryID
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO webhookd.delivery_logs(id, endpoint_id, delivery_id, level, message, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7)`,
		entry.ID, entry.EndpointID, deliveryID, entry.Level, entry.Message, detail, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

func (s *Store) ListLogs(ctx context.Context, endpointID string, limit, offset int) ([]*webhook.LogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, endpoint_id, COALESCE(delivery_id::text, ''), level, message, detail, created_at
		FROM webhookd.delivery_logs
		WHERE endpoint_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		endpointID, limitOrDefault(limit), offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []*webhook.LogEntry
	for rows.Next() {
		var (
			entry  webhook.LogEntry
			detail []byte
		)
		if err := rows.Scan(&entry.ID, &entry.EndpointID, &entry.DeliveryID,
			&entry.Level, &entry.Message, &detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(detail, &entry.Detail); err != nil {
			return nil, fmt.Errorf("unmarshal log detail: %w", err)
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}
