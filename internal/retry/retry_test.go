package retry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiplane/wallet-ledger/internal/config"
	"github.com/shiplane/wallet-ledger/internal/domain/wallet"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func fastConfig() config.RetryConfig {
	return config.RetryConfig{
		MaxRetries: 3,
		Backoff:    []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond},
	}
}

func TestIsLockContention(t *testing.T) {
	t.Run("DomainError", func(t *testing.T) {
		assert.True(t, IsLockContention(wallet.ErrLockContention{TenantID: uuid.New()}))
	})

	t.Run("RawSQLState", func(t *testing.T) {
		assert.True(t, IsLockContention(&pgconn.PgError{Code: "55P03"}))
	})

	t.Run("WrappedSQLState", func(t *testing.T) {
		wrapped := errors.Join(errors.New("adjust failed"), &pgconn.PgError{Code: "55P03"})
		assert.True(t, IsLockContention(wrapped))
	})

	t.Run("BusinessError", func(t *testing.T) {
		assert.False(t, IsLockContention(wallet.ErrInsufficientBalance{}))
		assert.False(t, IsLockContention(errors.New("boom")))
		assert.False(t, IsLockContention(&pgconn.PgError{Code: "23505"}))
	})
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	r := New(newTestLogger(), fastConfig())

	calls := 0
	result, err := Do(context.Background(), r, "charge", func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesContentionThenSucceeds(t *testing.T) {
	r := New(newTestLogger(), fastConfig())
	tenantID := uuid.New()

	calls := 0
	result, err := Do(context.Background(), r, "charge", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", wallet.ErrLockContention{TenantID: tenantID}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	r := New(newTestLogger(), fastConfig())
	tenantID := uuid.New()

	calls := 0
	_, err := Do(context.Background(), r, "charge", func(ctx context.Context) (int, error) {
		calls++
		return 0, wallet.ErrLockContention{TenantID: tenantID}
	})

	require.Error(t, err)
	var lockErr wallet.ErrLockContention
	assert.ErrorAs(t, err, &lockErr)
	assert.Equal(t, tenantID, lockErr.TenantID)
	assert.Equal(t, 4, calls, "initial attempt plus three retries")
}

func TestDo_BusinessErrorNotRetried(t *testing.T) {
	r := New(newTestLogger(), fastConfig())

	calls := 0
	_, err := Do(context.Background(), r, "charge", func(ctx context.Context) (int, error) {
		calls++
		return 0, wallet.ErrInsufficientBalance{TenantID: uuid.New(), Balance: 100, Required: 500}
	})

	require.Error(t, err)
	var insufficientErr wallet.ErrInsufficientBalance
	assert.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, 1, calls, "business errors must fail fast")
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	cfg := config.RetryConfig{
		MaxRetries: 3,
		Backoff:    []time.Duration{time.Hour}, // Never completes within the test
	}
	r := New(newTestLogger(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, r, "charge", func(ctx context.Context) (int, error) {
			calls++
			return 0, wallet.ErrLockContention{}
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestDo_BackoffReusesLastDelay(t *testing.T) {
	cfg := config.RetryConfig{
		MaxRetries: 5,
		Backoff:    []time.Duration{time.Millisecond, 2 * time.Millisecond},
	}
	r := New(newTestLogger(), cfg)

	assert.Equal(t, time.Millisecond, r.delayFor(1))
	assert.Equal(t, 2*time.Millisecond, r.delayFor(2))
	assert.Equal(t, 2*time.Millisecond, r.delayFor(3))
	assert.Equal(t, 2*time.Millisecond, r.delayFor(5))
}

func TestDo_CustomClassifier(t *testing.T) {
	transient := errors.New("transient")
	r := NewWithClassifier(newTestLogger(), fastConfig(), func(err error) bool {
		return errors.Is(err, transient)
	})

	calls := 0
	result, err := Do(context.Background(), r, "external call", func(ctx context.Context) (bool, error) {
		calls++
		if calls == 1 {
			return false, transient
		}
		return true, nil
	})

	require.NoError(t, err)
	assert.True(t, result)
	assert.Equal(t, 2, calls)
}
