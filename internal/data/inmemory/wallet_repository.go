// Package inmemory provides map-backed repository implementations for tests.
// The wallet repository mirrors the row-locking behavior of the PostgreSQL
// implementation: a concurrent adjustment on the same tenant fails with lock
// contention instead of blocking, so retry behavior can be exercised without
// a database.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shiplane/wallet-ledger/internal/domain/ledger"
	"github.com/shiplane/wallet-ledger/internal/domain/wallet"
)

// Ensure interface is satisfied (compile-time check)
var _ wallet.Repository = (*WalletRepository)(nil)

// WalletRepository is an in-memory wallet.Repository with NOWAIT semantics
type WalletRepository struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*wallet.Balance
	byKey   map[string]*ledger.Entry
	entries map[uuid.UUID][]*ledger.Entry
	locks   map[uuid.UUID]*sync.Mutex

	// HoldDuration keeps the per-tenant lock held during an adjustment so
	// tests can force contention windows.
	HoldDuration time.Duration
}

// NewWalletRepository creates an empty in-memory wallet repository
func NewWalletRepository() *WalletRepository {
	return &WalletRepository{
		wallets: make(map[uuid.UUID]*wallet.Balance),
		byKey:   make(map[string]*ledger.Entry),
		entries: make(map[uuid.UUID][]*ledger.Entry),
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

// WithTx returns the repository itself; the in-memory store has no transactions
func (r *WalletRepository) WithTx(_ pgx.Tx) wallet.Repository {
	return r
}

func (r *WalletRepository) Create(_ context.Context, b *wallet.Balance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.wallets[b.TenantID]; exists {
		return wallet.ErrDuplicateTenant{TenantID: b.TenantID}
	}
	copied := *b
	r.wallets[b.TenantID] = &copied
	r.locks[b.TenantID] = &sync.Mutex{}
	return nil
}

func (r *WalletRepository) GetBalance(_ context.Context, tenantID uuid.UUID) (*wallet.Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.wallets[tenantID]
	if !ok {
		return nil, wallet.ErrTenantNotFound{TenantID: tenantID}
	}
	copied := *b
	return &copied, nil
}

func (r *WalletRepository) Adjust(_ context.Context, adj ledger.Adjustment) (*ledger.AdjustResult, error) {
	if err := adj.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if entry, ok := r.byKey[adj.IdempotencyKey]; ok {
		r.mu.Unlock()
		return &ledger.AdjustResult{EntryID: entry.ID, NewBalance: entry.BalanceAfter, Replayed: true}, nil
	}
	lock, ok := r.locks[adj.TenantID]
	r.mu.Unlock()
	if !ok {
		return nil, wallet.ErrTenantNotFound{TenantID: adj.TenantID}
	}

	// TryLock stands in for SELECT ... FOR UPDATE NOWAIT
	if !lock.TryLock() {
		return nil, wallet.ErrLockContention{TenantID: adj.TenantID}
	}
	defer lock.Unlock()

	if r.HoldDuration > 0 {
		time.Sleep(r.HoldDuration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A racing adjustment may have stored the key while we waited for TryLock
	if entry, ok := r.byKey[adj.IdempotencyKey]; ok {
		return &ledger.AdjustResult{EntryID: entry.ID, NewBalance: entry.BalanceAfter, Replayed: true}, nil
	}

	b := r.wallets[adj.TenantID]
	if adj.Amount < 0 && !adj.SkipSufficiencyCheck && !b.CanCover(-adj.Amount) {
		return nil, wallet.ErrInsufficientBalance{
			TenantID: adj.TenantID,
			Balance:  b.Balance,
			Required: -adj.Amount,
		}
	}

	b.Balance += adj.Amount
	b.UpdatedAt = time.Now()

	entry := &ledger.Entry{
		ID:             uuid.New(),
		TenantID:       adj.TenantID,
		Kind:           adj.Kind,
		Amount:         adj.Amount,
		BalanceAfter:   b.Balance,
		Description:    adj.Description,
		IdempotencyKey: adj.IdempotencyKey,
		CorrelationID:  adj.CorrelationID,
		CreatedAt:      time.Now(),
	}
	r.byKey[adj.IdempotencyKey] = entry
	r.entries[adj.TenantID] = append(r.entries[adj.TenantID], entry)

	return &ledger.AdjustResult{EntryID: entry.ID, NewBalance: b.Balance}, nil
}

// Tenants returns the IDs of all provisioned wallets
func (r *WalletRepository) Tenants() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]uuid.UUID, 0, len(r.wallets))
	for id := range r.wallets {
		out = append(out, id)
	}
	return out
}

// Entries returns copies of a tenant's ledger entries in insertion order
func (r *WalletRepository) Entries(tenantID uuid.UUID) []*ledger.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*ledger.Entry, 0, len(r.entries[tenantID]))
	for _, e := range r.entries[tenantID] {
		copied := *e
		out = append(out, &copied)
	}
	return out
}
