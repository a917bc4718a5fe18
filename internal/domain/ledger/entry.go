package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidEntryKind = errors.New("invalid ledger entry kind")
	ErrZeroDelta        = errors.New("adjustment delta cannot be zero")
)

// EntryKind classifies a ledger entry by the business operation behind it
type EntryKind string

const (
	KindCharge     EntryKind = "CHARGE"
	KindRefund     EntryKind = "REFUND"
	KindCredit     EntryKind = "CREDIT"
	KindAdjustment EntryKind = "ADJUSTMENT"
)

// Valid reports whether the kind is one of the known values
func (k EntryKind) Valid() bool {
	switch k {
	case KindCharge, KindRefund, KindCredit, KindAdjustment:
		return true
	}
	return false
}

// Entry represents an immutable row in the wallet ledger
type Entry struct {
	ID             uuid.UUID `json:"id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	Kind           EntryKind `json:"kind"`
	Amount         int64     `json:"amount"` // Signed delta in cents; negative debits the wallet
	BalanceAfter   int64     `json:"balance_after"`
	Description    string    `json:"description,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Adjustment describes a single atomic balance change to apply
type Adjustment struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	Kind           EntryKind `json:"kind"`
	Amount         int64     `json:"amount"` // Signed delta in cents; negative debits the wallet
	Description    string    `json:"description,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	CorrelationID  string    `json:"correlation_id,omitempty"`

	// SkipSufficiencyCheck lets governance-approved operators push a prepaid
	// wallet negative. Every use must be audited by the caller.
	SkipSufficiencyCheck bool `json:"-"`
}

// Validate checks the adjustment before it reaches the database
func (a Adjustment) Validate() error {
	if !a.Kind.Valid() {
		return ErrInvalidEntryKind
	}
	if a.Amount == 0 {
		return ErrZeroDelta
	}
	if a.IdempotencyKey == "" {
		return errors.New("idempotency key is required")
	}
	return nil
}

// AdjustResult reports the outcome of an applied (or replayed) adjustment
type AdjustResult struct {
	EntryID    uuid.UUID `json:"entry_id"`
	NewBalance int64     `json:"new_balance"`

	// Replayed is true when the idempotency key had already been used and
	// the stored outcome was returned instead of applying a second change.
	Replayed bool `json:"replayed"`
}
