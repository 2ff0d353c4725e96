package audit

import (
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionCreate  Action = "create"
	ActionReplace Action = "replace"
	ActionApprove Action = "approve"
	ActionPay     Action = "pay"
)

const EntityPayrollPeriod = "payroll_period"

// Entry - one audit trail row
type Entry struct {
	ID         uuid.UUID
	Actor      string
	Action     Action
	EntityType string
	EntityID   int64
	Details    map[string]any
	CreatedAt  time.Time
}

// NewEntry stamps a fresh time-ordered id.
func NewEntry(actor string, action Action, entityType string, entityID int64, details map[string]any) Entry {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Entry{
		ID:         id,
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	}
}
