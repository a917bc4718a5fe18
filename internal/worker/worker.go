// Package worker drains the compensation queue: due entries are replayed
// through the wallet service under their derived idempotency keys, failures
// are rescheduled on the backoff ladder, and exhausted entries are
// dead-lettered with an audit trail.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	auditsink "github.com/shiplane/wallet-ledger/internal/audit"
	"github.com/shiplane/wallet-ledger/internal/config"
	"github.com/shiplane/wallet-ledger/internal/domain/audit"
	"github.com/shiplane/wallet-ledger/internal/domain/compensation"
	"github.com/shiplane/wallet-ledger/internal/service"
)

// DeadLetterSink receives entries that exhausted their retry budget
type DeadLetterSink interface {
	Publish(ctx context.Context, key string, entryValue []byte, reason string) error
}

// Worker periodically drains due compensation entries
type Worker struct {
	repo     compensation.Repository
	wallets  service.WalletService
	recorder auditsink.Recorder
	dlq      DeadLetterSink
	cfg      config.CompensationConfig
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a compensation worker
func New(
	logger *slog.Logger,
	cfg config.CompensationConfig,
	repo compensation.Repository,
	wallets service.WalletService,
	recorder auditsink.Recorder,
) *Worker {
	return &Worker{
		repo:     repo,
		wallets:  wallets,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// WithNow overrides the worker's clock
func (w *Worker) WithNow(now func() time.Time) *Worker {
	w.now = now
	return w
}

// WithDeadLetterSink streams dead-lettered entries to the given sink in
// addition to the audit trail
func (w *Worker) WithDeadLetterSink(sink DeadLetterSink) *Worker {
	w.dlq = sink
	return w
}

// Run drains the queue on the configured interval until the context is
// cancelled
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Compensation worker started",
		"polling_interval", w.cfg.PollingInterval,
		"batch_size", w.cfg.BatchSize)

	ticker := time.NewTicker(w.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Compensation worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.DrainOnce(ctx); err != nil {
				w.logger.Error("Failed to drain compensation queue", "error", err)
			}
		}
	}
}

// DrainOnce expires stale entries and processes one batch of due entries.
// Returns the number of entries processed.
func (w *Worker) DrainOnce(ctx context.Context) (int, error) {
	now := w.now()

	expired, err := w.repo.ExpirePending(ctx, now.Add(-w.cfg.ExpireAfter))
	if err != nil {
		w.logger.Error("Failed to expire stale compensation entries", "error", err)
	} else if expired > 0 {
		w.logger.Warn("Expired stale compensation entries", "count", expired)
	}

	entries, err := w.repo.GetDue(ctx, now, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		w.process(ctx, entry)
	}
	return len(entries), nil
}

// process replays one entry and updates its queue state
func (w *Worker) process(ctx context.Context, entry *compensation.QueueEntry) {
	now := w.now()

	err := w.replay(ctx, entry)
	if err == nil {
		if mErr := w.repo.MarkResolved(ctx, entry.ID, now); mErr != nil {
			w.logger.Error("Failed to mark compensation entry resolved", "entry_id", entry.ID, "error", mErr)
			return
		}
		w.logger.Info("Compensation entry resolved",
			"entry_id", entry.ID,
			"tenant_id", entry.TenantID,
			"amount", entry.Amount,
			"attempts", entry.Attempts+1)
		return
	}

	entry.RecordFailure(now, err.Error())
	if entry.Attempts >= w.cfg.MaxAttempts {
		w.deadLetter(ctx, entry)
		return
	}

	w.logger.Warn("Compensation attempt failed, rescheduled",
		"entry_id", entry.ID,
		"tenant_id", entry.TenantID,
		"attempts", entry.Attempts,
		"next_attempt_at", entry.NextAttemptAt,
		"error", err)
	if uErr := w.repo.RecordFailure(ctx, entry); uErr != nil {
		w.logger.Error("Failed to reschedule compensation entry", "entry_id", entry.ID, "error", uErr)
	}
}

// replay applies the entry's money movement through the wallet service. The
// derived idempotency key makes a retried replay a no-op.
func (w *Worker) replay(ctx context.Context, entry *compensation.QueueEntry) error {
	switch entry.Direction {
	case compensation.DirectionDebit:
		_, err := w.wallets.Charge(ctx, service.AdjustCommand{
			TenantID:       entry.TenantID,
			Amount:         entry.Amount,
			Description:    entry.Reason,
			IdempotencyKey: entry.IdempotencyKey(),
			CorrelationID:  entry.CorrelationID,
			// Collecting owed money must not be blocked by the balance
			SkipBalanceCheck: true,
		})
		return err
	default:
		_, err := w.wallets.Credit(ctx, service.AdjustCommand{
			TenantID:       entry.TenantID,
			Amount:         entry.Amount,
			Description:    entry.Reason,
			IdempotencyKey: entry.IdempotencyKey(),
			CorrelationID:  entry.CorrelationID,
		})
		return err
	}
}

// deadLetter marks an exhausted entry failed and records an audit event so
// operations can follow up manually
func (w *Worker) deadLetter(ctx context.Context, entry *compensation.QueueEntry) {
	w.logger.Error("Compensation entry dead-lettered",
		"entry_id", entry.ID,
		"tenant_id", entry.TenantID,
		"amount", entry.Amount,
		"attempts", entry.Attempts,
		"last_error", entry.LastError)

	entry.MarkFailed(entry.LastError)
	if err := w.repo.MarkFailed(ctx, entry.ID, entry.LastError); err != nil {
		w.logger.Error("Failed to mark compensation entry failed", "entry_id", entry.ID, "error", err)
		return
	}
	if w.recorder != nil {
		w.recorder.Record(&audit.Event{
			Action:        audit.ActionCompensationDead,
			ActorRole:     "system",
			TenantID:      entry.TenantID,
			Amount:        entry.Amount,
			Reason:        entry.LastError,
			CorrelationID: entry.CorrelationID,
		})
	}
	if w.dlq != nil {
		payload, err := json.Marshal(entry)
		if err != nil {
			w.logger.Error("Failed to marshal dead-lettered entry", "entry_id", entry.ID, "error", err)
			return
		}
		if err := w.dlq.Publish(ctx, entry.TenantID.String(), payload, entry.LastError); err != nil {
			w.logger.Error("Failed to stream dead-lettered entry", "entry_id", entry.ID, "error", err)
		}
	}
}
