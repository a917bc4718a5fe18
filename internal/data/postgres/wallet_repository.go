// Package postgres provides PostgreSQL implementations of the domain repositories.
// It handles all database operations while maintaining transaction safety and
// proper error handling for the wallet ledger system.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shiplane/wallet-ledger/internal/domain/ledger"
	"github.com/shiplane/wallet-ledger/internal/domain/wallet"
	"github.com/shiplane/wallet-ledger/internal/platform/persistence"
)

// SQLSTATE codes the repository translates into domain errors
const (
	codeLockNotAvailable = "55P03" // FOR UPDATE NOWAIT lost the race
	codeUniqueViolation  = "23505"
)

// WalletRepository implements the wallet.Repository interface for PostgreSQL
type WalletRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	db      *persistence.PostgresDB
	logger  *slog.Logger
}

// NewWalletRepository creates a new PostgreSQL wallet repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewWalletRepository(logger *slog.Logger, db *persistence.PostgresDB) wallet.Repository {
	return &WalletRepository{
		querier: db.Pool(), // Initialize with the pool
		db:      db,
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction, allowing for atomic operations
// across multiple repository calls. The returned repository will use the provided
// transaction for all database operations.
func (r *WalletRepository) WithTx(tx pgx.Tx) wallet.Repository {
	return &WalletRepository{
		querier: tx, // Use the transaction
		logger:  r.logger,
	}
}

// Create stores a new wallet balance. A second wallet for the same tenant
// violates the primary key and surfaces as ErrDuplicateTenant.
func (r *WalletRepository) Create(ctx context.Context, b *wallet.Balance) error {
	query := `
		INSERT INTO wallet_balances (tenant_id, billing_mode, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.querier.Exec(ctx, query,
		b.TenantID,
		b.BillingMode,
		b.Balance,
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return wallet.ErrDuplicateTenant{TenantID: b.TenantID}
		}
		r.logger.Error("Failed to create wallet", "tenantID", b.TenantID.String(), "error", err)
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	return nil
}

// GetBalance retrieves a tenant's wallet balance without locking it
func (r *WalletRepository) GetBalance(ctx context.Context, tenantID uuid.UUID) (*wallet.Balance, error) {
	query := `
		SELECT tenant_id, billing_mode, balance, created_at, updated_at
		FROM wallet_balances
		WHERE tenant_id = $1
	`

	var b wallet.Balance
	err := r.querier.QueryRow(ctx, query, tenantID).Scan(
		&b.TenantID,
		&b.BillingMode,
		&b.Balance,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrTenantNotFound{TenantID: tenantID}
		}
		r.logger.Error("Failed to get wallet balance", "tenantID", tenantID.String(), "error", err)
		return nil, fmt.Errorf("failed to get wallet balance: %w", err)
	}

	return &b, nil
}

// Adjust applies a signed balance delta and records the matching ledger entry
// atomically. When called on the pool it opens its own transaction; when the
// repository is already bound to a transaction via WithTx it joins it.
func (r *WalletRepository) Adjust(ctx context.Context, adj ledger.Adjustment) (*ledger.AdjustResult, error) {
	if err := adj.Validate(); err != nil {
		return nil, err
	}

	if r.db == nil {
		return r.adjust(ctx, adj)
	}

	var result *ledger.AdjustResult
	err := r.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		txRepo := &WalletRepository{querier: tx, logger: r.logger}
		res, txErr := txRepo.adjust(ctx, adj)
		result = res
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// adjust is the transactional body of Adjust. Order matters: the idempotency
// lookup happens before the row lock so replays never contend, and the lock
// happens before the sufficiency check so the balance read cannot go stale.
func (r *WalletRepository) adjust(ctx context.Context, adj ledger.Adjustment) (*ledger.AdjustResult, error) {
	replay, err := r.findReplay(ctx, adj.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		r.logger.Info("Replayed adjustment for idempotency key",
			"tenantID", adj.TenantID.String(),
			"idempotencyKey", adj.IdempotencyKey,
		)
		return replay, nil
	}

	lockQuery := `
		SELECT tenant_id, billing_mode, balance, created_at, updated_at
		FROM wallet_balances
		WHERE tenant_id = $1
		FOR UPDATE NOWAIT
	`

	var b wallet.Balance
	err = r.querier.QueryRow(ctx, lockQuery, adj.TenantID).Scan(
		&b.TenantID,
		&b.BillingMode,
		&b.Balance,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrTenantNotFound{TenantID: adj.TenantID}
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeLockNotAvailable {
			return nil, wallet.ErrLockContention{TenantID: adj.TenantID}
		}
		r.logger.Error("Failed to lock wallet for adjustment", "tenantID", adj.TenantID.String(), "error", err)
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	if adj.Amount < 0 && !adj.SkipSufficiencyCheck && !b.CanCover(-adj.Amount) {
		return nil, wallet.ErrInsufficientBalance{
			TenantID: adj.TenantID,
			Balance:  b.Balance,
			Required: -adj.Amount,
		}
	}

	newBalance := b.Balance + adj.Amount

	updateQuery := `
		UPDATE wallet_balances
		SET balance = $1, updated_at = NOW()
		WHERE tenant_id = $2
	`
	if _, err := r.querier.Exec(ctx, updateQuery, newBalance, adj.TenantID); err != nil {
		r.logger.Error("Failed to update wallet balance", "tenantID", adj.TenantID.String(), "error", err)
		return nil, fmt.Errorf("failed to update wallet balance: %w", err)
	}

	entryID := uuid.New()
	insertQuery := `
		INSERT INTO ledger_entries (id, tenant_id, kind, amount, balance_after, description, idempotency_key, correlation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	_, err = r.querier.Exec(ctx, insertQuery,
		entryID,
		adj.TenantID,
		adj.Kind,
		adj.Amount,
		newBalance,
		adj.Description,
		adj.IdempotencyKey,
		adj.CorrelationID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return nil, ledger.ErrDuplicateEntry{IdempotencyKey: adj.IdempotencyKey}
		}
		r.logger.Error("Failed to insert ledger entry", "tenantID", adj.TenantID.String(), "error", err)
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return &ledger.AdjustResult{
		EntryID:    entryID,
		NewBalance: newBalance,
		Replayed:   false,
	}, nil
}

// findReplay returns the stored result for an already-used idempotency key,
// or nil when the key is fresh.
func (r *WalletRepository) findReplay(ctx context.Context, idempotencyKey string) (*ledger.AdjustResult, error) {
	query := `
		SELECT id, balance_after
		FROM ledger_entries
		WHERE idempotency_key = $1
	`

	var entryID uuid.UUID
	var balanceAfter int64
	err := r.querier.QueryRow(ctx, query, idempotencyKey).Scan(&entryID, &balanceAfter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to check idempotency key", "idempotencyKey", idempotencyKey, "error", err)
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}

	return &ledger.AdjustResult{
		EntryID:    entryID,
		NewBalance: balanceAfter,
		Replayed:   true,
	}, nil
}
