package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shiplane/wallet-ledger/internal/domain/ledger"
	"github.com/shiplane/wallet-ledger/internal/platform/persistence"
)

// LedgerRepository implements the ledger.Repository interface for PostgreSQL
type LedgerRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &LedgerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

const entryColumns = `id, tenant_id, kind, amount, balance_after, description, idempotency_key, correlation_id, created_at`

// GetByID retrieves a ledger entry by its ID
func (r *LedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE id = $1
	`

	entry, err := r.scanEntry(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{EntryID: id}
		}
		r.logger.Error("Failed to get ledger entry", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	return entry, nil
}

// GetByIdempotencyKey retrieves a ledger entry by its idempotency key
func (r *LedgerRepository) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE idempotency_key = $1
	`

	entry, err := r.scanEntry(r.querier.QueryRow(ctx, query, idempotencyKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{}
		}
		r.logger.Error("Failed to get ledger entry by idempotency key", "idempotencyKey", idempotencyKey, "error", err)
		return nil, fmt.Errorf("failed to get ledger entry by idempotency key: %w", err)
	}

	return entry, nil
}

// GetByTenantID retrieves a page of a tenant's ledger entries, newest first
func (r *LedgerRepository) GetByTenantID(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to query ledger entries", "tenantID", tenantID.String(), "error", err)
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	return r.collectEntries(rows)
}

// CountByTenantID counts a tenant's ledger entries for pagination metadata
func (r *LedgerRepository) CountByTenantID(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM ledger_entries WHERE tenant_id = $1`

	var count int64
	if err := r.querier.QueryRow(ctx, query, tenantID).Scan(&count); err != nil {
		r.logger.Error("Failed to count ledger entries", "tenantID", tenantID.String(), "error", err)
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	return count, nil
}

// GetByTimeRange retrieves entries across all tenants within a time window
func (r *LedgerRepository) GetByTimeRange(ctx context.Context, startTime, endTime time.Time, limit, offset int) ([]*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.querier.Query(ctx, query, startTime, endTime, limit, offset)
	if err != nil {
		r.logger.Error("Failed to query ledger entries by time range", "error", err)
		return nil, fmt.Errorf("failed to query ledger entries by time range: %w", err)
	}
	defer rows.Close()

	return r.collectEntries(rows)
}

func (r *LedgerRepository) scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var e ledger.Entry
	err := row.Scan(
		&e.ID,
		&e.TenantID,
		&e.Kind,
		&e.Amount,
		&e.BalanceAfter,
		&e.Description,
		&e.IdempotencyKey,
		&e.CorrelationID,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *LedgerRepository) collectEntries(rows pgx.Rows) ([]*ledger.Entry, error) {
	entries := make([]*ledger.Entry, 0)
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return entries, nil
}
