package wallet

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shiplane/wallet-ledger/internal/domain/ledger"
)

// Repository defines wallet persistence operations
type Repository interface {
	Create(ctx context.Context, balance *Balance) error
	GetBalance(ctx context.Context, tenantID uuid.UUID) (*Balance, error)

	// Adjust applies a signed balance delta and records the matching ledger
	// entry in a single transaction. The row lock is taken with NOWAIT, so a
	// concurrent holder surfaces as ErrLockContention instead of blocking.
	// A repeated idempotency key returns the original result with Replayed set.
	Adjust(ctx context.Context, adj ledger.Adjustment) (*ledger.AdjustResult, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrTenantNotFound indicates a tenant without a provisioned wallet
type ErrTenantNotFound struct {
	TenantID uuid.UUID
}

func (e ErrTenantNotFound) Error() string {
	return "wallet not found for tenant: " + e.TenantID.String()
}

// Is implements the errors.Is interface for ErrTenantNotFound
func (e ErrTenantNotFound) Is(target error) bool {
	t, ok := target.(ErrTenantNotFound)
	if !ok {
		return false
	}
	if t.TenantID == uuid.Nil {
		return true
	}
	return e.TenantID == t.TenantID
}

// ErrInsufficientBalance indicates a prepaid wallet cannot cover a debit
type ErrInsufficientBalance struct {
	TenantID uuid.UUID
	Balance  int64
	Required int64
}

func (e ErrInsufficientBalance) Error() string {
	return "insufficient balance for tenant " + e.TenantID.String() +
		": have " + strconv.FormatInt(e.Balance, 10) +
		", need " + strconv.FormatInt(e.Required, 10)
}

// Deficit returns how much is missing to cover the debit
func (e ErrInsufficientBalance) Deficit() int64 {
	return e.Required - e.Balance
}

// Is implements the errors.Is interface for ErrInsufficientBalance
func (e ErrInsufficientBalance) Is(target error) bool {
	t, ok := target.(ErrInsufficientBalance)
	if !ok {
		return false
	}
	if t.TenantID == uuid.Nil {
		return true
	}
	return e.TenantID == t.TenantID
}

// ErrLockContention indicates the wallet row was locked by another transaction.
// Maps to SQLSTATE 55P03 from SELECT ... FOR UPDATE NOWAIT.
type ErrLockContention struct {
	TenantID uuid.UUID
}

func (e ErrLockContention) Error() string {
	return "wallet row locked by concurrent transaction: " + e.TenantID.String()
}

// Is implements the errors.Is interface for ErrLockContention
func (e ErrLockContention) Is(target error) bool {
	t, ok := target.(ErrLockContention)
	if !ok {
		return false
	}
	if t.TenantID == uuid.Nil {
		return true
	}
	return e.TenantID == t.TenantID
}

// ErrDuplicateTenant indicates a wallet already exists for the tenant
type ErrDuplicateTenant struct {
	TenantID uuid.UUID
}

func (e ErrDuplicateTenant) Error() string {
	return "wallet already exists for tenant: " + e.TenantID.String()
}
