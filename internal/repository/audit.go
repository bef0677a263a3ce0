package repository

import (
	"context"

	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/google/uuid"
)

type InsertAuditLogParams struct {
	EntityType string
	EntityID   uuid.UUID
	Action     string
	Metadata   []byte
}

const insertAuditLog = `-- name: InsertAuditLog :one
INSERT INTO audit_log (entity_type, entity_id, action, metadata)
VALUES ($1, $2, $3, $4)
RETURNING id
`

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertAuditLog, arg.EntityType, arg.EntityID, arg.Action, arg.Metadata).Scan(&id)
	return id, classifyError(err)
}

const listAuditLogByEntity = `-- name: ListAuditLogByEntity :many
SELECT id, entity_type, entity_id, action, metadata, created_at
FROM audit_log
WHERE entity_type = $1 AND entity_id = $2
ORDER BY id
`

func (q *Queries) ListAuditLogByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditEntry, error) {
	rows, err := q.db.Query(ctx, listAuditLogByEntity, entityType, entityID)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	items := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, classifyError(err)
		}
		items = append(items, e)
	}
	return items, classifyError(rows.Err())
}
