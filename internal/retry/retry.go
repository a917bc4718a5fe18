// Package retry wraps wallet operations that can lose a row-lock race.
// Lock contention is transient and safe to retry; business failures such as
// insufficient balance are terminal and returned immediately.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shiplane/wallet-ledger/internal/config"
	"github.com/shiplane/wallet-ledger/internal/domain/wallet"
)

// codeLockNotAvailable is the SQLSTATE raised by FOR UPDATE NOWAIT
const codeLockNotAvailable = "55P03"

// Classifier decides whether an error is transient and worth another attempt
type Classifier func(error) bool

// IsLockContention reports whether the error is a lost row-lock race, either
// already translated to the domain error or still a raw SQLSTATE 55P03.
func IsLockContention(err error) bool {
	if errors.Is(err, wallet.ErrLockContention{}) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeLockNotAvailable
}

// Retrier re-runs an operation on transient failures with fixed backoff
type Retrier struct {
	maxRetries int
	backoff    []time.Duration
	retryable  Classifier
	logger     *slog.Logger
}

// New creates a retrier that retries lock contention only
func New(logger *slog.Logger, cfg config.RetryConfig) *Retrier {
	return NewWithClassifier(logger, cfg, IsLockContention)
}

// NewWithClassifier creates a retrier with a custom transient-error classifier
func NewWithClassifier(logger *slog.Logger, cfg config.RetryConfig, retryable Classifier) *Retrier {
	return &Retrier{
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		retryable:  retryable,
		logger:     logger,
	}
}

// delayFor returns the backoff before retry number n (1-based), reusing the
// last configured delay when the schedule is shorter than the retry budget.
func (r *Retrier) delayFor(n int) time.Duration {
	if len(r.backoff) == 0 {
		return 0
	}
	if n > len(r.backoff) {
		return r.backoff[len(r.backoff)-1]
	}
	return r.backoff[n-1]
}

// Do runs fn, retrying transient failures up to the configured budget.
// The first attempt does not count against the budget. Context cancellation
// during a backoff sleep aborts with the context error.
func Do[T any](ctx context.Context, r *Retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.delayFor(attempt)
			r.logger.Warn("Retrying operation after lock contention",
				"operation", op,
				"attempt", attempt,
				"max_retries", r.maxRetries,
				"backoff", delay.String(),
			)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("Operation succeeded after retry",
					"operation", op,
					"attempt", attempt,
				)
			}
			return result, nil
		}

		if !r.retryable(err) {
			return zero, err
		}
		lastErr = err
	}

	r.logger.Error("Operation exhausted retry budget",
		"operation", op,
		"max_retries", r.maxRetries,
		"error", lastErr,
	)
	return zero, lastErr
}
