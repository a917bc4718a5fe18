package compensation

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of a queued compensation
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusFailed   Status = "failed"  // Dead-lettered after exhausting attempts
	StatusExpired  Status = "expired" // Pending for longer than the retention window
)

// Direction says which way the compensating movement goes
type Direction string

const (
	DirectionCredit Direction = "credit" // Money back to the tenant
	DirectionDebit  Direction = "debit"  // Money recovered from the tenant
)

// RetryBackoff is the delay before each retry attempt. Attempts beyond the
// schedule reuse the last value.
var RetryBackoff = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	12 * time.Hour,
}

// BackoffFor returns the delay to wait after the given number of completed
// attempts (1-based).
func BackoffFor(attempts int) time.Duration {
	if attempts < 1 {
		return RetryBackoff[0]
	}
	if attempts > len(RetryBackoff) {
		return RetryBackoff[len(RetryBackoff)-1]
	}
	return RetryBackoff[attempts-1]
}

// QueueEntry records a wallet movement that failed and must be replayed later
type QueueEntry struct {
	ID            int64      `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	Direction     Direction  `json:"direction"`
	Amount        int64      `json:"amount"` // Stored in cents/minor units, always positive
	Reason        string     `json:"reason"`
	SourceEntryID uuid.UUID  `json:"source_entry_id,omitempty"` // Ledger entry that triggered the compensation
	CorrelationID string     `json:"correlation_id,omitempty"`
	Status        Status     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// NewQueueEntry creates a pending compensation due immediately
func NewQueueEntry(tenantID uuid.UUID, direction Direction, amount int64, reason string, sourceEntryID uuid.UUID, correlationID string) *QueueEntry {
	now := time.Now()
	return &QueueEntry{
		TenantID:      tenantID,
		Direction:     direction,
		Amount:        amount,
		Reason:        reason,
		SourceEntryID: sourceEntryID,
		CorrelationID: correlationID,
		Status:        StatusPending,
		Attempts:      0,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
}

// IdempotencyKey derives the at-most-once key for replaying this entry
func (e *QueueEntry) IdempotencyKey() string {
	return "compensation-refund-" + e.SourceEntryID.String()
}

// RecordFailure bumps the attempt counter and schedules the next try
func (e *QueueEntry) RecordFailure(now time.Time, reason string) {
	e.Attempts++
	e.LastError = reason
	e.NextAttemptAt = now.Add(BackoffFor(e.Attempts))
}

// MarkResolved finalizes a successfully replayed entry
func (e *QueueEntry) MarkResolved(now time.Time) {
	e.Status = StatusResolved
	e.ResolvedAt = &now
}

// MarkFailed dead-letters an entry whose attempts are exhausted
func (e *QueueEntry) MarkFailed(reason string) {
	e.Status = StatusFailed
	e.LastError = reason
}

// Expired reports whether a pending entry has outlived the retention window
func (e *QueueEntry) Expired(now time.Time, retention time.Duration) bool {
	return e.Status == StatusPending && now.Sub(e.CreatedAt) > retention
}
