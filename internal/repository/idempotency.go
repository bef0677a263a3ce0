package repository

import (
	"context"
	"time"
)

type IdempotencyKey struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const idempotencyColumns = `idempotency_key, request_hash, method, path, response_status, response_body, content_type, in_progress, created_at, updated_at`

func scanIdempotencyKey(row rowScanner) (IdempotencyKey, error) {
	var k IdempotencyKey
	err := row.Scan(&k.IdempotencyKey, &k.RequestHash, &k.Method, &k.Path, &k.ResponseStatus,
		&k.ResponseBody, &k.ContentType, &k.InProgress, &k.CreatedAt, &k.UpdatedAt)
	return k, err
}

const getIdempotencyKey = `-- name: GetIdempotencyKey :one
SELECT ` + idempotencyColumns + `
FROM idempotency_keys
WHERE idempotency_key = $1
`

// GetIdempotencyKey returns pgx.ErrNoRows unwrapped so callers can tell a miss apart.
func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, getIdempotencyKey, key))
}

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

const reserveIdempotencyKey = `-- name: ReserveIdempotencyKey :one
INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress)
VALUES ($1, $2, $3, $4, TRUE)
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING idempotency_key
`

// ReserveIdempotencyKey returns pgx.ErrNoRows when the key is already taken.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (string, error) {
	var key string
	err := q.db.QueryRow(ctx, reserveIdempotencyKey, arg.IdempotencyKey, arg.RequestHash, arg.Method, arg.Path).Scan(&key)
	return key, err
}

type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	RequestHash    string
}

const finalizeIdempotencyKey = `-- name: FinalizeIdempotencyKey :one
UPDATE idempotency_keys
SET response_status = $1, response_body = $2, content_type = $3, in_progress = FALSE, updated_at = NOW()
WHERE idempotency_key = $4 AND request_hash = $5
RETURNING ` + idempotencyColumns

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error) {
	row := q.db.QueryRow(ctx, finalizeIdempotencyKey, arg.ResponseStatus, arg.ResponseBody, arg.ContentType, arg.IdempotencyKey, arg.RequestHash)
	return scanIdempotencyKey(row)
}

const releaseIdempotencyKey = `-- name: ReleaseIdempotencyKey :execrows
DELETE FROM idempotency_keys
WHERE idempotency_key = $1 AND request_hash = $2 AND in_progress
`

// ReleaseIdempotencyKey drops an unfinished reservation so the client may retry.
func (q *Queries) ReleaseIdempotencyKey(ctx context.Context, key, requestHash string) (int64, error) {
	result, err := q.db.Exec(ctx, releaseIdempotencyKey, key, requestHash)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteExpiredIdempotencyKeys = `-- name: DeleteExpiredIdempotencyKeys :execrows
DELETE FROM idempotency_keys
WHERE created_at < $1 AND NOT in_progress
`

func (q *Queries) DeleteExpiredIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.Exec(ctx, deleteExpiredIdempotencyKeys, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
