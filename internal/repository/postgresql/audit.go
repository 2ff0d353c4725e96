package postgresql

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/busfleet/payroll-backend-go/internal/domain/audit"
	"github.com/busfleet/payroll-backend-go/internal/pkg/database"
)

type auditRepository struct {
	db *database.DB
}

func NewAuditRepository(db *database.DB) audit.AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Record(ctx context.Context, entry audit.Entry) error {
	q := GetQuerier(ctx, r.db)

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO audit_log (id, actor, action, entity_type, entity_id, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := q.Exec(ctx, query, entry.ID, entry.Actor, entry.Action, entry.EntityType, entry.EntityID, detailsJSON); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	return nil
}

func (r *auditRepository) ListByEntity(ctx context.Context, entityType string, entityID int64) ([]audit.Entry, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, actor, action, entity_type, entity_id, details, created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id
	`

	rows, err := q.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e            audit.Entry
			detailsBytes []byte
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.EntityType, &e.EntityID, &detailsBytes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		_ = json.Unmarshal(detailsBytes, &e.Details)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
