package store

import (
	"context"
	"encoding/json"
	"time"
)

type OutboxRecord struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at"`
}

type OutboxRepo struct{ DB DBTX }

// Insert stores an already encoded event. Re-inserting an event id is a no-op.
func (r *OutboxRepo) Insert(ctx context.Context, eventID, topic, key string, payload []byte) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO outbox (event_id, topic, key, payload) VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING`, eventID, topic, key, payload)
	return err
}

func (r *OutboxRepo) FetchPending(ctx context.Context, limit int) ([]OutboxRecord, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, event_id, topic, key, payload, created_at, sent_at FROM outbox
		WHERE sent_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *OutboxRepo) MarkSent(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.DB.Exec(ctx, `UPDATE outbox SET sent_at=now() WHERE id = ANY($1)`, ids)
	return err
}
