package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/shiplane/wallet-ledger/internal/domain/ledger"
	"github.com/shiplane/wallet-ledger/internal/domain/wallet"
)

// AdjustCommand describes a balance-changing wallet operation.
// Amount is always positive; the operation decides the sign.
type AdjustCommand struct {
	TenantID       uuid.UUID
	Amount         int64
	Description    string
	IdempotencyKey string
	CorrelationID  string

	// SkipBalanceCheck lets a charge proceed past a prepaid tenant's
	// balance. Only privileged callers may set it; ignored for credits.
	SkipBalanceCheck bool
}

// RefundCommand refunds a previous charge, identified by its idempotency key
type RefundCommand struct {
	TenantID      uuid.UUID
	Amount        int64
	Description   string
	ChargeKey     string // Idempotency key of the charge being refunded
	CorrelationID string
}

// SettlementCommand settles the difference between an estimated charge and
// the final cost. A positive Delta debits the wallet further; a negative
// Delta returns the overcharge.
type SettlementCommand struct {
	TenantID      uuid.UUID
	Delta         int64
	Description   string
	BaseKey       string // Idempotency key of the original estimated charge
	CorrelationID string
}

// RefundOutcome reports how a refund-or-compensate request ended
type RefundOutcome struct {
	Result *ledger.AdjustResult

	// Compensated is true when the immediate refund failed and the amount
	// was queued for asynchronous compensation instead.
	Compensated bool
}

// WalletService defines the wallet ledger operations
type WalletService interface {
	// CreateWallet provisions a wallet for a tenant
	// Returns ErrDuplicateTenant if the tenant already has one
	CreateWallet(ctx context.Context, tenantID uuid.UUID, mode wallet.BillingMode, initialBalance int64) (*wallet.Balance, error)

	// Charge debits the wallet. Retries lock contention; insufficient
	// balance and other business errors fail immediately.
	Charge(ctx context.Context, cmd AdjustCommand) (*ledger.AdjustResult, error)

	// Refund returns a previously charged amount, keyed off the charge so a
	// charge is refunded at most once
	Refund(ctx context.Context, cmd RefundCommand) (*ledger.AdjustResult, error)

	// Credit tops up the wallet
	Credit(ctx context.Context, cmd AdjustCommand) (*ledger.AdjustResult, error)

	// Settle applies the difference between estimate and final cost
	Settle(ctx context.Context, cmd SettlementCommand) (*ledger.AdjustResult, error)

	// RefundOrCompensate attempts an immediate refund and falls back to the
	// compensation queue when the refund cannot be applied right now
	RefundOrCompensate(ctx context.Context, cmd RefundCommand) (*RefundOutcome, error)

	// GetBalance retrieves a tenant's wallet balance
	GetBalance(ctx context.Context, tenantID uuid.UUID) (*wallet.Balance, error)

	// GetEntries retrieves a paginated list of a tenant's ledger entries
	// Returns entries, total count, and any error
	GetEntries(ctx context.Context, tenantID uuid.UUID, page, perPage int) ([]*ledger.Entry, int64, error)
}
