package compensation

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages compensation queue persistence
type Repository interface {
	Create(ctx context.Context, entry *QueueEntry) error

	// GetDue returns pending entries whose next attempt time has passed,
	// oldest first, locked with SKIP LOCKED so concurrent workers never
	// process the same entry twice.
	GetDue(ctx context.Context, now time.Time, limit int) ([]*QueueEntry, error)

	MarkResolved(ctx context.Context, id int64, resolvedAt time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	RecordFailure(ctx context.Context, entry *QueueEntry) error

	// ExpirePending flips pending entries created before the cutoff to
	// expired and returns how many were affected.
	ExpirePending(ctx context.Context, cutoff time.Time) (int64, error)

	GetByID(ctx context.Context, id int64) (*QueueEntry, error)
	GetByTenantID(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*QueueEntry, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrEntryNotFound indicates missing compensation queue entry
type ErrEntryNotFound struct {
	ID int64
}

func (e ErrEntryNotFound) Error() string {
	return "compensation entry not found: " + strconv.FormatInt(e.ID, 10)
}

// Is implements the errors.Is interface for ErrEntryNotFound
func (e ErrEntryNotFound) Is(target error) bool {
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	if t.ID == 0 {
		return true
	}
	return e.ID == t.ID
}
