package repository

import (
	"context"

	"github.com/google/uuid"
)

const outboxColumns = `id, event_id, event_type, topic, key, payload, created_at, sent_at`

const insertOutboxEvent = `-- name: InsertOutboxEvent :one
INSERT INTO outbox (event_id, event_type, topic, key, payload)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + outboxColumns

type InsertOutboxEventParams struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType string    `json:"event_type"`
	Topic     string    `json:"topic"`
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
}

func (q *Queries) InsertOutboxEvent(ctx context.Context, arg InsertOutboxEventParams) (OutboxEvent, error) {
	row := q.db.QueryRow(ctx, insertOutboxEvent,
		arg.EventID,
		arg.EventType,
		arg.Topic,
		arg.Key,
		arg.Payload,
	)
	var i OutboxEvent
	err := row.Scan(
		&i.ID,
		&i.EventID,
		&i.EventType,
		&i.Topic,
		&i.Key,
		&i.Payload,
		&i.CreatedAt,
		&i.SentAt,
	)
	return i, err
}

const fetchPendingOutboxEvents = `-- name: FetchPendingOutboxEvents :many
SELECT ` + outboxColumns + `
FROM outbox
WHERE sent_at IS NULL
ORDER BY id
LIMIT $1
FOR UPDATE SKIP LOCKED
`

// FetchPendingOutboxEvents locks the oldest unsent events. It must run in a
// transaction for the lock to hold until they are marked sent.
func (q *Queries) FetchPendingOutboxEvents(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := q.db.Query(ctx, fetchPendingOutboxEvents, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OutboxEvent{}
	for rows.Next() {
		var i OutboxEvent
		if err := rows.Scan(
			&i.ID,
			&i.EventID,
			&i.EventType,
			&i.Topic,
			&i.Key,
			&i.Payload,
			&i.CreatedAt,
			&i.SentAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markOutboxEventsSent = `-- name: MarkOutboxEventsSent :execrows
UPDATE outbox
SET sent_at = now()
WHERE id = ANY($1::bigint[])
`

func (q *Queries) MarkOutboxEventsSent(ctx context.Context, ids []int64) (int64, error) {
	result, err := q.db.Exec(ctx, markOutboxEventsSent, ids)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
