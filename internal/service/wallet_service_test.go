package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiplane/wallet-ledger/internal/config"
	"github.com/shiplane/wallet-ledger/internal/data/inmemory"
	"github.com/shiplane/wallet-ledger/internal/domain/compensation"
	"github.com/shiplane/wallet-ledger/internal/domain/ledger"
	"github.com/shiplane/wallet-ledger/internal/domain/wallet"
	"github.com/shiplane/wallet-ledger/internal/retry"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetrier(t *testing.T) *retry.Retrier {
	t.Helper()
	return retry.New(newTestLogger(), config.RetryConfig{
		MaxRetries: 3,
		Backoff:    []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond},
	})
}

// stubLedgerRepo serves reads from the entries recorded by the in-memory
// wallet repository
type stubLedgerRepo struct {
	wallets *inmemory.WalletRepository
}

func (s *stubLedgerRepo) GetByID(_ context.Context, entryID uuid.UUID) (*ledger.Entry, error) {
	for _, w := range s.allEntries() {
		if w.ID == entryID {
			return w, nil
		}
	}
	return nil, ledger.ErrEntryNotFound{EntryID: entryID}
}

func (s *stubLedgerRepo) GetByIdempotencyKey(_ context.Context, key string) (*ledger.Entry, error) {
	for _, w := range s.allEntries() {
		if w.IdempotencyKey == key {
			return w, nil
		}
	}
	return nil, ledger.ErrEntryNotFound{}
}

func (s *stubLedgerRepo) GetByTenantID(_ context.Context, tenantID uuid.UUID, limit, offset int) ([]*ledger.Entry, error) {
	all := s.wallets.Entries(tenantID)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *stubLedgerRepo) CountByTenantID(_ context.Context, tenantID uuid.UUID) (int64, error) {
	return int64(len(s.wallets.Entries(tenantID))), nil
}

func (s *stubLedgerRepo) GetByTimeRange(_ context.Context, _, _ time.Time, _, _ int) ([]*ledger.Entry, error) {
	return s.allEntries(), nil
}

func (s *stubLedgerRepo) allEntries() []*ledger.Entry {
	var out []*ledger.Entry
	for _, tenant := range s.wallets.Tenants() {
		out = append(out, s.wallets.Entries(tenant)...)
	}
	return out
}

// capturingCompensationRepo records enqueued compensation entries
type capturingCompensationRepo struct {
	mu        sync.Mutex
	created   []*compensation.QueueEntry
	createErr error
}

func (c *capturingCompensationRepo) Create(_ context.Context, e *compensation.QueueEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return c.createErr
	}
	e.ID = int64(len(c.created) + 1)
	c.created = append(c.created, e)
	return nil
}

func (c *capturingCompensationRepo) GetDue(context.Context, time.Time, int) ([]*compensation.QueueEntry, error) {
	return nil, nil
}
func (c *capturingCompensationRepo) MarkResolved(context.Context, int64, time.Time) error { return nil }
func (c *capturingCompensationRepo) MarkFailed(context.Context, int64, string) error      { return nil }
func (c *capturingCompensationRepo) RecordFailure(context.Context, *compensation.QueueEntry) error {
	return nil
}
func (c *capturingCompensationRepo) ExpirePending(context.Context, time.Time) (int64, error) {
	return 0, nil
}
func (c *capturingCompensationRepo) GetByID(context.Context, int64) (*compensation.QueueEntry, error) {
	return nil, compensation.ErrEntryNotFound{}
}
func (c *capturingCompensationRepo) GetByTenantID(context.Context, uuid.UUID, int, int) ([]*compensation.QueueEntry, error) {
	return nil, nil
}
func (c *capturingCompensationRepo) WithTx(pgx.Tx) compensation.Repository { return c }

// capturingPublisher records published ledger events
type capturingPublisher struct {
	mu         sync.Mutex
	keys       []string
	values     []interface{}
	publishErr error
}

func (p *capturingPublisher) Publish(_ context.Context, key string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishErr != nil {
		return p.publishErr
	}
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

type fixture struct {
	svc       WalletService
	wallets   *inmemory.WalletRepository
	comp      *capturingCompensationRepo
	publisher *capturingPublisher
}

func setupService(t *testing.T) *fixture {
	t.Helper()
	wallets := inmemory.NewWalletRepository()
	comp := &capturingCompensationRepo{}
	publisher := &capturingPublisher{}
	svc := NewWalletService(
		newTestLogger(),
		wallets,
		&stubLedgerRepo{wallets: wallets},
		comp,
		fastRetrier(t),
		publisher,
	)
	return &fixture{svc: svc, wallets: wallets, comp: comp, publisher: publisher}
}

func provision(t *testing.T, f *fixture, mode wallet.BillingMode, balance int64) uuid.UUID {
	t.Helper()
	tenantID := uuid.New()
	_, err := f.svc.CreateWallet(context.Background(), tenantID, mode, balance)
	require.NoError(t, err)
	return tenantID
}

func TestWalletService_CreateWallet(t *testing.T) {
	f := setupService(t)
	tenantID := uuid.New()

	b, err := f.svc.CreateWallet(context.Background(), tenantID, wallet.BillingModePrepaid, 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), b.Balance)

	_, err = f.svc.CreateWallet(context.Background(), tenantID, wallet.BillingModePrepaid, 0)
	assert.ErrorIs(t, err, wallet.ErrDuplicateTenant{TenantID: tenantID})
}

func TestWalletService_Charge(t *testing.T) {
	f := setupService(t)
	tenantID := provision(t, f, wallet.BillingModePrepaid, 10000)

	result, err := f.svc.Charge(context.Background(), AdjustCommand{
		TenantID:       tenantID,
		Amount:         2500,
		Description:    "Shipment SHP-1001",
		IdempotencyKey: "booking-1001",
		CorrelationID:  "corr-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7500), result.NewBalance)
	assert.False(t, result.Replayed)

	entries := f.wallets.Entries(tenantID)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.KindCharge, entries[0].Kind)
	assert.Equal(t, int64(-2500), entries[0].Amount)

	// Committed entry was streamed, keyed by tenant
	require.Len(t, f.publisher.keys, 1)
	assert.Equal(t, tenantID.String(), f.publisher.keys[0])
}

func TestWalletService_Charge_InvalidAmount(t *testing.T) {
	f := setupService(t)
	tenantID := provision(t, f, wallet.BillingModePrepaid, 10000)

	_, err := f.svc.Charge(context.Background(), AdjustCommand{
		TenantID:       tenantID,
		Amount:         0,
		IdempotencyKey: "booking-1002",
	})
	assert.ErrorIs(t, err, wallet.ErrInvalidAmount)
}

func TestWalletService_Charge_InsufficientBalance(t *testing.T) {
	f := setupService(t)
	tenantID := provision(t, f, wallet.BillingModePrepaid, 1000)

	_, err := f.svc.Charge(context.Background(), AdjustCommand{
		TenantID:       tenantID,
		Amount:         2500,
		IdempotencyKey: "booking-1003",
	})
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance{})
	assert.Empty(t, f.publisher.keys)
}

func TestWalletService_Charge_SkipBalanceCheck(t *testing.T) {
	f := setupService(t)
	tenantID := provision(t, f, wallet.BillingModePrepaid, 1000)

	result, err := f.svc.Charge(context.Background(), AdjustCommand{
		TenantID:         tenantID,
		Amount:           2500,
		IdempotencyKey:   "booking-1004",
		SkipBalanceCheck: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-1500), result.NewBalance)
}

func TestWalletService_Charge_ReplaySameKey(t *testing.T) {
	f := setupService(t)
	tenantID := provision(t, f, wallet.BillingModePrepaid, 10000)

	cmd := AdjustCommand{
		TenantID:       tenantID,
		Amount:         2500,
		IdempotencyKey: "booking-1005",
	}
	first, err := f.svc.Charge(context.Background(), cmd)
	require.NoError(t, err)

	second, err := f.svc.Charge(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.EntryID, second.EntryID)
	assert.Equal(t, first.NewBalance, second.NewBalance)

	// The replay neither mutated the wallet nor published a second event
	assert.Len(t, f.wallets.Entries(tenantID), 1)
	assert.Len(t, f.publisher.keys, 1)
}

func TestWalletService_Refund_DerivedKey(t *testing.T) {
	f := setupService(t)
	tenantID := provision(t, f, wallet.BillingModePrepaid, 10000)

	_, err := f.svc.Charge(context.Background(), AdjustCommand{
		TenantID:       tenantID,
		Amount:         2500,
		IdempotencyKey: "booking-1006",
	})
	require.NoError(t, err)

	result, err := f.svc.Refund(context.Background(), RefundCommand{
		TenantID:  tenantID,
		Amount:    2500,
		ChargeKey: "booking-1006",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), result.NewBalance)

	entries := f.wallets.Entries(tenantID)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.KindRefund, entries[1].Kind)
	assert.Equal(t, "booking-1006-refund", entries[1].IdempotencyKey)

	// A second refund of the same charge replays
	again, err := f.svc.Refund(context.Background(), RefundCommand{
		TenantID:  tenantID,
		Amount:    2500,
		ChargeKey: "booking-1006",
	})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Len(t, f.wallets.Entries(tenantID), 2)
}

func TestWalletService_Credit(t *testing.T) {
	f := setupService(t)
	tenantID := provision(t, f, wallet.BillingModePrepaid, 0)

	result, err := f.svc.Credit(context.Background(), AdjustCommand{
		TenantID:       tenantID,
		Amount:         50000,
		Description:    "Monthly top-up",
		IdempotencyKey: "topup-2026-08",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), result.NewBalance)
}

func TestWalletService_Settle(t *testing.T) {
	f := setupService(t)

	t.Run("extra debit when final cost exceeds estimate", func(t *testing.T) {
		tenantID := provision(t, f, wallet.BillingModePrepaid, 10000)
		result, err := f.svc.Settle(context.Background(), SettlementCommand{
			TenantID: tenantID,
			Delta:    300,
			BaseKey:  "booking-2001",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(9700), result.NewBalance)

		entries := f.wallets.Entries(tenantID)
		require.Len(t, entries, 1)
		assert.Equal(t, ledger.KindAdjustment, entries[0].Kind)
		assert.Equal(t, "booking-2001-adjust-debit", entries[0].IdempotencyKey)
	})

	t.Run("credit back when estimate exceeded final cost", func(t *testing.T) {
		tenantID := provision(t, f, wallet.BillingModePrepaid, 10000)
		result, err := f.svc.Settle(context.Background(), SettlementCommand{
			TenantID: tenantID,
			Delta:    -450,
			BaseKey:  "booking-2002",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(10450), result.NewBalance)
		assert.Equal(t, "booking-2002-adjust-credit", f.wallets.Entries(tenantID)[0].IdempotencyKey)
	})

	t.Run("settlement debit may push a prepaid balance negative", func(t *testing.T) {
		tenantID := provision(t, f, wallet.BillingModePrepaid, 100)
		result, err := f.svc.Settle(context.Background(), SettlementCommand{
			TenantID: tenantID,
			Delta:    500,
			BaseKey:  "booking-2003",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(-400), result.NewBalance)
	})

	t.Run("zero delta is a no-op", func(t *testing.T) {
		tenantID := provision(t, f, wallet.BillingModePrepaid, 100)
		result, err := f.svc.Settle(context.Background(), SettlementCommand{
			TenantID: tenantID,
			Delta:    0,
			BaseKey:  "booking-2004",
		})
		require.NoError(t, err)
		assert.Nil(t, result)
		assert.Empty(t, f.wallets.Entries(tenantID))
	})
}

func TestWalletService_RefundOrCompensate_ImmediateSuccess(t *testing.T) {
	f := setupService(t)
	tenantID := provision(t, f, wallet.BillingModePrepaid, 10000)

	_, err := f.svc.Charge(context.Background(), AdjustCommand{
		TenantID:       tenantID,
		Amount:         2500,
		IdempotencyKey: "booking-3001",
	})
	require.NoError(t, err)

	outcome, err := f.svc.RefundOrCompensate(context.Background(), RefundCommand{
		TenantID:  tenantID,
		Amount:    2500,
		ChargeKey: "booking-3001",
	})
	require.NoError(t, err)
	assert.False(t, outcome.Compensated)
	assert.Equal(t, int64(10000), outcome.Result.NewBalance)
	assert.Empty(t, f.comp.created)
}

func TestWalletService_RefundOrCompensate_QueuesOnContention(t *testing.T) {
	wallets := inmemory.NewWalletRepository()
	comp := &capturingCompensationRepo{}
	svc := NewWalletService(
		newTestLogger(),
		wallets,
		&stubLedgerRepo{wallets: wallets},
		comp,
		fastRetrier(t),
		&capturingPublisher{},
	)

	tenantID := uuid.New()
	b, err := wallet.NewBalance(tenantID, wallet.BillingModePrepaid, 10000)
	require.NoError(t, err)
	require.NoError(t, wallets.Create(context.Background(), b))

	_, err = svc.Charge(context.Background(), AdjustCommand{
		TenantID:       tenantID,
		Amount:         2500,
		IdempotencyKey: "booking-3002",
		CorrelationID:  "corr-3002",
	})
	require.NoError(t, err)
	chargeEntryID := wallets.Entries(tenantID)[0].ID

	// Hold the tenant's row lock for longer than the whole retry budget so
	// every refund attempt fails with lock contention.
	wallets.HoldDuration = 50 * time.Millisecond
	release := make(chan struct{})
	go func() {
		defer close(release)
		_, _ = wallets.Adjust(context.Background(), ledger.Adjustment{
			TenantID:       tenantID,
			Kind:           ledger.KindCredit,
			Amount:         1,
			IdempotencyKey: "contender",
		})
	}()
	time.Sleep(5 * time.Millisecond)

	outcome, err := svc.RefundOrCompensate(context.Background(), RefundCommand{
		TenantID:      tenantID,
		Amount:        2500,
		ChargeKey:     "booking-3002",
		CorrelationID: "corr-3002",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Compensated)

	require.Len(t, comp.created, 1)
	queued := comp.created[0]
	assert.Equal(t, tenantID, queued.TenantID)
	assert.Equal(t, compensation.DirectionCredit, queued.Direction)
	assert.Equal(t, int64(2500), queued.Amount)
	assert.Equal(t, chargeEntryID, queued.SourceEntryID)
	assert.Equal(t, "corr-3002", queued.CorrelationID)
	assert.Equal(t, compensation.StatusPending, queued.Status)

	<-release
}

func TestWalletService_RefundOrCompensate_TerminalErrorPropagates(t *testing.T) {
	f := setupService(t)

	// Unknown tenant is a business failure that compensation cannot fix
	_, err := f.svc.RefundOrCompensate(context.Background(), RefundCommand{
		TenantID:  uuid.New(),
		Amount:    2500,
		ChargeKey: "booking-3003",
	})
	assert.ErrorIs(t, err, wallet.ErrTenantNotFound{})
	assert.Empty(t, f.comp.created)
}

func TestWalletService_RefundOrCompensate_QueueFailureIsSwallowed(t *testing.T) {
	wallets := inmemory.NewWalletRepository()
	comp := &capturingCompensationRepo{createErr: errors.New("connection refused")}
	svc := NewWalletService(
		newTestLogger(),
		wallets,
		&stubLedgerRepo{wallets: wallets},
		comp,
		fastRetrier(t),
		&capturingPublisher{},
	)

	tenantID := uuid.New()
	b, err := wallet.NewBalance(tenantID, wallet.BillingModePrepaid, 10000)
	require.NoError(t, err)
	require.NoError(t, wallets.Create(context.Background(), b))

	wallets.HoldDuration = 50 * time.Millisecond
	release := make(chan struct{})
	go func() {
		defer close(release)
		_, _ = wallets.Adjust(context.Background(), ledger.Adjustment{
			TenantID:       tenantID,
			Kind:           ledger.KindCredit,
			Amount:         1,
			IdempotencyKey: "contender",
		})
	}()
	time.Sleep(5 * time.Millisecond)

	outcome, err := svc.RefundOrCompensate(context.Background(), RefundCommand{
		TenantID:  tenantID,
		Amount:    2500,
		ChargeKey: "booking-3004",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Compensated)

	<-release
}

func TestWalletService_PublishFailureDoesNotFailOperation(t *testing.T) {
	wallets := inmemory.NewWalletRepository()
	publisher := &capturingPublisher{publishErr: errors.New("kafka: broker not available")}
	svc := NewWalletService(
		newTestLogger(),
		wallets,
		&stubLedgerRepo{wallets: wallets},
		&capturingCompensationRepo{},
		fastRetrier(t),
		publisher,
	)

	tenantID := uuid.New()
	b, err := wallet.NewBalance(tenantID, wallet.BillingModePrepaid, 10000)
	require.NoError(t, err)
	require.NoError(t, wallets.Create(context.Background(), b))

	result, err := svc.Charge(context.Background(), AdjustCommand{
		TenantID:       tenantID,
		Amount:         2500,
		IdempotencyKey: "booking-4001",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7500), result.NewBalance)
}

func TestWalletService_GetEntries_Pagination(t *testing.T) {
	f := setupService(t)
	tenantID := provision(t, f, wallet.BillingModePrepaid, 100000)

	for i := 0; i < 5; i++ {
		_, err := f.svc.Charge(context.Background(), AdjustCommand{
			TenantID:       tenantID,
			Amount:         100,
			IdempotencyKey: uuid.NewString(),
		})
		require.NoError(t, err)
	}

	entries, total, err := f.svc.GetEntries(context.Background(), tenantID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, entries, 2)

	entries, total, err = f.svc.GetEntries(context.Background(), tenantID, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, entries, 1)

	// Out-of-range and nonsense paging values fall back to defaults
	entries, _, err = f.svc.GetEntries(context.Background(), tenantID, 0, -1)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestWalletService_ConcurrentChargesReconcile(t *testing.T) {
	f := setupService(t)
	tenantID := provision(t, f, wallet.BillingModePrepaid, 100000)
	f.wallets.HoldDuration = 200 * time.Microsecond

	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = f.svc.Charge(context.Background(), AdjustCommand{
				TenantID:       tenantID,
				Amount:         100,
				IdempotencyKey: uuid.NewString(),
			})
		}(i)
	}
	wg.Wait()

	// Under heavy contention some charges may exhaust their retry budget,
	// but the balance must always equal the sum of committed entries.
	var succeeded int64
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, wallet.ErrLockContention{})
		}
	}

	balance, err := f.svc.GetBalance(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000)-100*succeeded, balance.Balance)

	var sum int64
	for _, e := range f.wallets.Entries(tenantID) {
		sum += e.Amount
	}
	assert.Equal(t, int64(100000)+sum, balance.Balance)
	assert.Equal(t, succeeded, int64(len(f.wallets.Entries(tenantID))))
}
