// Package audit records governance events without blocking the wallet path.
// Events are handed to a worker pool and written to the audit store in the
// background; a full pool or a failed write is logged, never surfaced to the
// caller.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/shiplane/wallet-ledger/internal/domain/audit"
)

// Recorder accepts audit events for asynchronous persistence
type Recorder interface {
	Record(event *audit.Event)
}

// Dispatcher writes audit events through a bounded worker pool
type Dispatcher struct {
	repo    audit.Repository
	pool    *ants.Pool
	logger  *slog.Logger
	timeout time.Duration
}

// NewDispatcher creates a dispatcher with the given pool size
func NewDispatcher(logger *slog.Logger, repo audit.Repository, poolSize int) (*Dispatcher, error) {
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		repo:    repo,
		pool:    pool,
		logger:  logger,
		timeout: 10 * time.Second,
	}, nil
}

// Record submits an event for background persistence. It never blocks and
// never fails the caller: audit writes are best-effort by contract, the
// wallet operation they describe has already committed.
func (d *Dispatcher) Record(event *audit.Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	err := d.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.repo.Create(ctx, event); err != nil {
			d.logger.Error("Failed to persist audit event",
				"action", string(event.Action),
				"tenant_id", event.TenantID.String(),
				"actor_id", event.ActorID.String(),
				"error", err,
			)
		}
	})
	if err != nil {
		d.logger.Error("Failed to submit audit event to worker pool",
			"action", string(event.Action),
			"tenant_id", event.TenantID.String(),
			"error", err,
		)
	}
}

// Shutdown releases the worker pool
func (d *Dispatcher) Shutdown() {
	d.logger.Info("Shutting down audit dispatcher", "running_workers", d.pool.Running())
	d.pool.Release()
}

// Running returns the number of running workers in the pool
func (d *Dispatcher) Running() int {
	return d.pool.Running()
}
