package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tamra-invest/ledger-engine/internal/domain"
)

const auditColumns = `id, actor_id, actor_role, action, entity_type, entity_id,
	reason, before, after, created_at`

// AuditRepository appends audit records. No update or delete methods.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, tx *sql.Tx, rec *domain.AuditRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_records (
			id, actor_id, actor_role, action, entity_type, entity_id,
			reason, before, after, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.ActorID, rec.ActorRole, rec.Action, rec.EntityType,
		rec.EntityID, rec.Reason, rec.Before, rec.After, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AuditRepository) GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]domain.AuditRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_records
		WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByEntity: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		err := rows.Scan(
			&rec.ID, &rec.ActorID, &rec.ActorRole, &rec.Action, &rec.EntityType,
			&rec.EntityID, &rec.Reason, &rec.Before, &rec.After, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("GetByEntity: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByEntity: rows: %w", err)
	}
	return records, nil
}
