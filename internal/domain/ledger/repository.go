package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository manages ledger entry reads with pagination support.
// Writes happen only through wallet.Repository.Adjust, inside the same
// transaction that moves the balance.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*Entry, error)
	GetByTenantID(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Entry, error)
	CountByTenantID(ctx context.Context, tenantID uuid.UUID) (int64, error)
	GetByTimeRange(ctx context.Context, startTime, endTime time.Time, limit, offset int) ([]*Entry, error)
}

// ErrEntryNotFound indicates missing ledger entry
type ErrEntryNotFound struct {
	EntryID uuid.UUID
}

func (e ErrEntryNotFound) Error() string {
	return "ledger entry not found: " + e.EntryID.String()
}

// Is implements the errors.Is interface for ErrEntryNotFound
func (e ErrEntryNotFound) Is(target error) bool {
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	// If the target EntryID is empty, consider it a match for any ErrEntryNotFound
	if t.EntryID == uuid.Nil {
		return true
	}
	return e.EntryID == t.EntryID
}

// ErrDuplicateEntry indicates idempotency key uniqueness violation
type ErrDuplicateEntry struct {
	IdempotencyKey string
}

func (e ErrDuplicateEntry) Error() string {
	return "duplicate ledger entry for idempotency key: " + e.IdempotencyKey
}

// Is implements the errors.Is interface for ErrDuplicateEntry
func (e ErrDuplicateEntry) Is(target error) bool {
	t, ok := target.(ErrDuplicateEntry)
	if !ok {
		return false
	}
	if t.IdempotencyKey == "" {
		return true
	}
	return e.IdempotencyKey == t.IdempotencyKey
}
