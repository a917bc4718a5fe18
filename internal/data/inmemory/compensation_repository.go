package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shiplane/wallet-ledger/internal/domain/compensation"
)

// Ensure interface is satisfied (compile-time check)
var _ compensation.Repository = (*CompensationRepository)(nil)

// CompensationRepository is an in-memory compensation.Repository
type CompensationRepository struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*compensation.QueueEntry
}

// NewCompensationRepository creates an empty in-memory compensation queue
func NewCompensationRepository() *CompensationRepository {
	return &CompensationRepository{entries: make(map[int64]*compensation.QueueEntry)}
}

// WithTx returns the repository itself; the in-memory store has no transactions
func (r *CompensationRepository) WithTx(_ pgx.Tx) compensation.Repository {
	return r
}

func (r *CompensationRepository) Create(_ context.Context, entry *compensation.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	entry.ID = r.nextID
	copied := *entry
	r.entries[entry.ID] = &copied
	return nil
}

func (r *CompensationRepository) GetDue(_ context.Context, now time.Time, limit int) ([]*compensation.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*compensation.QueueEntry
	for _, e := range r.entries {
		if e.Status == compensation.StatusPending && !e.NextAttemptAt.After(now) {
			copied := *e
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *CompensationRepository) MarkResolved(_ context.Context, id int64, resolvedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return compensation.ErrEntryNotFound{ID: id}
	}
	e.Status = compensation.StatusResolved
	e.ResolvedAt = &resolvedAt
	return nil
}

func (r *CompensationRepository) MarkFailed(_ context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return compensation.ErrEntryNotFound{ID: id}
	}
	e.Status = compensation.StatusFailed
	e.LastError = reason
	return nil
}

func (r *CompensationRepository) RecordFailure(_ context.Context, entry *compensation.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[entry.ID]
	if !ok {
		return compensation.ErrEntryNotFound{ID: entry.ID}
	}
	e.Attempts = entry.Attempts
	e.LastError = entry.LastError
	e.NextAttemptAt = entry.NextAttemptAt
	return nil
}

func (r *CompensationRepository) ExpirePending(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired int64
	for _, e := range r.entries {
		if e.Status == compensation.StatusPending && e.CreatedAt.Before(cutoff) {
			e.Status = compensation.StatusExpired
			expired++
		}
	}
	return expired, nil
}

func (r *CompensationRepository) GetByID(_ context.Context, id int64) (*compensation.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, compensation.ErrEntryNotFound{ID: id}
	}
	copied := *e
	return &copied, nil
}

func (r *CompensationRepository) GetByTenantID(_ context.Context, tenantID uuid.UUID, limit, offset int) ([]*compensation.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*compensation.QueueEntry
	for _, e := range r.entries {
		if e.TenantID == tenantID {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns copies of every entry ordered by ID
func (r *CompensationRepository) All() []*compensation.QueueEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*compensation.QueueEntry, 0, len(r.entries))
	for _, e := range r.entries {
		copied := *e
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
