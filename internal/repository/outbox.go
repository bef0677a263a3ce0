package repository

import (
	"context"
	"time"

	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/google/uuid"
)

const outboxColumns = `id, event_type, aggregate_id, payload, status, attempts, last_error, next_attempt_at, published_at, created_at, updated_at`

func scanOutboxEvent(row rowScanner) (*models.OutboxEvent, error) {
	var e models.OutboxEvent
	if err := row.Scan(&e.ID, &e.EventType, &e.AggregateID, &e.Payload, &e.Status, &e.Attempts,
		&e.LastError, &e.NextAttemptAt, &e.PublishedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, classifyError(err)
	}
	return &e, nil
}

func collectOutboxEvents(ctx context.Context, q *Queries, sql string, args ...interface{}) ([]models.OutboxEvent, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	items := []models.OutboxEvent{}
	for rows.Next() {
		e, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}
	return items, nil
}

type InsertOutboxEventParams struct {
	ID          uuid.UUID
	EventType   string
	AggregateID uuid.UUID
	Payload     []byte
}

const insertOutboxEvent = `-- name: InsertOutboxEvent :exec
INSERT INTO outbox_events (id, event_type, aggregate_id, payload, status)
VALUES ($1, $2, $3, $4, 'PENDING')
`

func (q *Queries) InsertOutboxEvent(ctx context.Context, arg InsertOutboxEventParams) error {
	_, err := q.db.Exec(ctx, insertOutboxEvent, arg.ID, arg.EventType, arg.AggregateID, arg.Payload)
	return classifyError(err)
}

const getDueOutboxEvents = `-- name: GetDueOutboxEvents :many
SELECT ` + outboxColumns + `
FROM outbox_events
WHERE status = 'PENDING' AND next_attempt_at <= NOW()
ORDER BY created_at
LIMIT $1
FOR UPDATE SKIP LOCKED
`

// GetDueOutboxEvents locks up to limit pending events whose retry time has passed.
// Rows held by another dispatcher are skipped.
func (q *Queries) GetDueOutboxEvents(ctx context.Context, limit int32) ([]models.OutboxEvent, error) {
	return collectOutboxEvents(ctx, q, getDueOutboxEvents, limit)
}

type GetStaleProcessingOutboxEventsParams struct {
	UpdatedBefore time.Time
	Limit         int32
}

const getStaleProcessingOutboxEvents = `-- name: GetStaleProcessingOutboxEvents :many
SELECT ` + outboxColumns + `
FROM outbox_events
WHERE status = 'PROCESSING' AND updated_at < $1
ORDER BY updated_at
LIMIT $2
FOR UPDATE SKIP LOCKED
`

func (q *Queries) GetStaleProcessingOutboxEvents(ctx context.Context, arg GetStaleProcessingOutboxEventsParams) ([]models.OutboxEvent, error) {
	return collectOutboxEvents(ctx, q, getStaleProcessingOutboxEvents, arg.UpdatedBefore, arg.Limit)
}

const getOutboxEventForUpdate = `-- name: GetOutboxEventForUpdate :one
SELECT ` + outboxColumns + `
FROM outbox_events
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetOutboxEventForUpdate(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	return scanOutboxEvent(q.db.QueryRow(ctx, getOutboxEventForUpdate, id))
}

const listOutboxEventsByAggregate = `-- name: ListOutboxEventsByAggregate :many
SELECT ` + outboxColumns + `
FROM outbox_events
WHERE aggregate_id = $1
ORDER BY created_at, event_type
`

func (q *Queries) ListOutboxEventsByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.OutboxEvent, error) {
	return collectOutboxEvents(ctx, q, listOutboxEventsByAggregate, aggregateID)
}

type UpdateOutboxEventStatusParams struct {
	ID            uuid.UUID
	Status        string
	Attempts      int32
	LastError     *string
	NextAttemptAt time.Time
}

const updateOutboxEventStatus = `-- name: UpdateOutboxEventStatus :execrows
UPDATE outbox_events
SET status = $2::varchar,
    attempts = $3,
    last_error = $4,
    next_attempt_at = $5,
    published_at = CASE WHEN $2::varchar = 'PUBLISHED' THEN NOW() ELSE published_at END,
    updated_at = NOW()
WHERE id = $1
`

func (q *Queries) UpdateOutboxEventStatus(ctx context.Context, arg UpdateOutboxEventStatusParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateOutboxEventStatus, arg.ID, arg.Status, arg.Attempts, arg.LastError, arg.NextAttemptAt)
	if err != nil {
		return 0, classifyError(err)
	}
	return result.RowsAffected(), nil
}

const countOutboxEventsByStatus = `-- name: CountOutboxEventsByStatus :one
SELECT COUNT(*) FROM outbox_events WHERE status = $1
`

func (q *Queries) CountOutboxEventsByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countOutboxEventsByStatus, status).Scan(&count)
	return count, classifyError(err)
}
