package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names the governance operation being audited
type Action string

const (
	ActionSufficiencyBypass Action = "credit_sufficiency_bypass"
	ActionManualAdjustment  Action = "manual_balance_adjustment"
	ActionCompensationDead  Action = "compensation_dead_letter"
)

// Event is an immutable audit record for privileged wallet operations
type Event struct {
	ID            string    `json:"id,omitempty" bson:"_id,omitempty"`
	Action        Action    `json:"action" bson:"action"`
	ActorID       uuid.UUID `json:"actor_id" bson:"actor_id"`
	ActorRole     string    `json:"actor_role" bson:"actor_role"`
	TenantID      uuid.UUID `json:"tenant_id" bson:"tenant_id"`
	Amount        int64     `json:"amount" bson:"amount"` // Stored in cents/minor units
	Balance       int64     `json:"balance" bson:"balance"`
	Impersonated  bool      `json:"impersonated" bson:"impersonated"`
	Reason        string    `json:"reason,omitempty" bson:"reason,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}

// Repository persists audit events
type Repository interface {
	Create(ctx context.Context, event *Event) error
	GetByTenantID(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Event, error)
	GetByActorID(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*Event, error)
}
