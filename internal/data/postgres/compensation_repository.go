package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shiplane/wallet-ledger/internal/domain/compensation"
	"github.com/shiplane/wallet-ledger/internal/platform/persistence"
)

// CompensationRepository implements the compensation.Repository interface for PostgreSQL
type CompensationRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewCompensationRepository creates a new PostgreSQL compensation repository
func NewCompensationRepository(logger *slog.Logger, db *persistence.PostgresDB) compensation.Repository {
	return &CompensationRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations
func (r *CompensationRepository) WithTx(tx pgx.Tx) compensation.Repository {
	return &CompensationRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const compensationColumns = `id, tenant_id, direction, amount, reason, source_entry_id, correlation_id, status, attempts, last_error, next_attempt_at, created_at, resolved_at`

// Create stores a new compensation entry in pending status.
// The entry will be picked up by the drain worker once its next attempt time passes.
func (r *CompensationRepository) Create(ctx context.Context, entry *compensation.QueueEntry) error {
	query := `
		INSERT INTO compensation_queue (tenant_id, direction, amount, reason, source_entry_id, correlation_id, status, attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := r.querier.QueryRow(ctx, query,
		entry.TenantID,
		entry.Direction,
		entry.Amount,
		entry.Reason,
		entry.SourceEntryID,
		entry.CorrelationID,
		entry.Status,
		entry.Attempts,
		entry.NextAttemptAt,
		entry.CreatedAt,
	).Scan(&entry.ID)

	if err != nil {
		r.logger.Error("Failed to create compensation entry",
			"tenant_id", entry.TenantID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create compensation entry: %w", err)
	}

	return nil
}

// GetDue retrieves a batch of pending entries whose next attempt time has
// passed, oldest first. SKIP LOCKED keeps concurrent workers from draining
// the same entry twice.
func (r *CompensationRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]*compensation.QueueEntry, error) {
	query := `
		SELECT ` + compensationColumns + `
		FROM compensation_queue
		WHERE status = $1 AND next_attempt_at <= $2
		ORDER BY created_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`

	rows, err := r.querier.Query(ctx, query, compensation.StatusPending, now, limit)
	if err != nil {
		r.logger.Error("Failed to get due compensation entries", "error", err)
		return nil, fmt.Errorf("failed to get due compensation entries: %w", err)
	}
	defer rows.Close()

	return r.collectEntries(rows)
}

// MarkResolved finalizes a successfully replayed entry.
// Returns ErrEntryNotFound if the entry doesn't exist.
func (r *CompensationRepository) MarkResolved(ctx context.Context, id int64, resolvedAt time.Time) error {
	query := `
		UPDATE compensation_queue
		SET status = $1, resolved_at = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, compensation.StatusResolved, resolvedAt, id)
	if err != nil {
		r.logger.Error("Failed to mark compensation entry resolved",
			"id", id,
			"error", err,
		)
		return fmt.Errorf("failed to mark compensation entry resolved: %w", err)
	}

	if result.RowsAffected() == 0 {
		return compensation.ErrEntryNotFound{ID: id}
	}

	return nil
}

// MarkFailed dead-letters an entry whose retry attempts are exhausted
func (r *CompensationRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE compensation_queue
		SET status = $1, last_error = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, compensation.StatusFailed, reason, id)
	if err != nil {
		r.logger.Error("Failed to mark compensation entry failed",
			"id", id,
			"error", err,
		)
		return fmt.Errorf("failed to mark compensation entry failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return compensation.ErrEntryNotFound{ID: id}
	}

	return nil
}

// RecordFailure persists the bumped attempt counter and next attempt time
// after an unsuccessful replay.
func (r *CompensationRepository) RecordFailure(ctx context.Context, entry *compensation.QueueEntry) error {
	query := `
		UPDATE compensation_queue
		SET attempts = $1, last_error = $2, next_attempt_at = $3
		WHERE id = $4
	`

	result, err := r.querier.Exec(ctx, query, entry.Attempts, entry.LastError, entry.NextAttemptAt, entry.ID)
	if err != nil {
		r.logger.Error("Failed to record compensation attempt",
			"id", entry.ID,
			"error", err,
		)
		return fmt.Errorf("failed to record compensation attempt: %w", err)
	}

	if result.RowsAffected() == 0 {
		return compensation.ErrEntryNotFound{ID: entry.ID}
	}

	return nil
}

// ExpirePending flips pending entries created before the cutoff to expired
// and returns how many were affected.
func (r *CompensationRepository) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE compensation_queue
		SET status = $1
		WHERE status = $2 AND created_at < $3
	`

	result, err := r.querier.Exec(ctx, query, compensation.StatusExpired, compensation.StatusPending, cutoff)
	if err != nil {
		r.logger.Error("Failed to expire pending compensation entries", "error", err)
		return 0, fmt.Errorf("failed to expire pending compensation entries: %w", err)
	}

	return result.RowsAffected(), nil
}

// GetByID retrieves a compensation entry by its ID
func (r *CompensationRepository) GetByID(ctx context.Context, id int64) (*compensation.QueueEntry, error) {
	query := `
		SELECT ` + compensationColumns + `
		FROM compensation_queue
		WHERE id = $1
	`

	entry, err := r.scanEntry(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, compensation.ErrEntryNotFound{ID: id}
		}
		r.logger.Error("Failed to get compensation entry", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get compensation entry: %w", err)
	}

	return entry, nil
}

// GetByTenantID retrieves a page of a tenant's compensation entries, newest first
func (r *CompensationRepository) GetByTenantID(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*compensation.QueueEntry, error) {
	query := `
		SELECT ` + compensationColumns + `
		FROM compensation_queue
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to query compensation entries", "tenant_id", tenantID.String(), "error", err)
		return nil, fmt.Errorf("failed to query compensation entries: %w", err)
	}
	defer rows.Close()

	return r.collectEntries(rows)
}

func (r *CompensationRepository) scanEntry(row pgx.Row) (*compensation.QueueEntry, error) {
	var e compensation.QueueEntry
	err := row.Scan(
		&e.ID,
		&e.TenantID,
		&e.Direction,
		&e.Amount,
		&e.Reason,
		&e.SourceEntryID,
		&e.CorrelationID,
		&e.Status,
		&e.Attempts,
		&e.LastError,
		&e.NextAttemptAt,
		&e.CreatedAt,
		&e.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *CompensationRepository) collectEntries(rows pgx.Rows) ([]*compensation.QueueEntry, error) {
	var entries []*compensation.QueueEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			r.logger.Error("Failed to scan compensation entry", "error", err)
			return nil, fmt.Errorf("failed to scan compensation entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over compensation entries", "error", err)
		return nil, fmt.Errorf("error iterating over compensation entries: %w", err)
	}

	return entries, nil
}
