// Package service implements the wallet ledger use cases on top of the
// domain repositories, wrapping balance adjustments in the lock-contention
// retry policy and streaming committed entries to Kafka.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shiplane/wallet-ledger/internal/domain/compensation"
	"github.com/shiplane/wallet-ledger/internal/domain/ledger"
	"github.com/shiplane/wallet-ledger/internal/domain/wallet"
	"github.com/shiplane/wallet-ledger/internal/platform/messaging/producers"
	"github.com/shiplane/wallet-ledger/internal/retry"
)

// WalletServiceImpl implements the WalletService interface
type WalletServiceImpl struct {
	walletRepo       wallet.Repository
	ledgerRepo       ledger.Repository
	compensationRepo compensation.Repository
	retrier          *retry.Retrier
	producer         producers.MessagePublisher
	logger           *slog.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(
	logger *slog.Logger,
	walletRepo wallet.Repository,
	ledgerRepo ledger.Repository,
	compensationRepo compensation.Repository,
	retrier *retry.Retrier,
	producer producers.MessagePublisher,
) WalletService {
	return &WalletServiceImpl{
		walletRepo:       walletRepo,
		ledgerRepo:       ledgerRepo,
		compensationRepo: compensationRepo,
		retrier:          retrier,
		producer:         producer,
		logger:           logger,
	}
}

// CreateWallet provisions a wallet for a tenant
func (s *WalletServiceImpl) CreateWallet(ctx context.Context, tenantID uuid.UUID, mode wallet.BillingMode, initialBalance int64) (*wallet.Balance, error) {
	balance, err := wallet.NewBalance(tenantID, mode, initialBalance)
	if err != nil {
		return nil, err
	}
	if err := s.walletRepo.Create(ctx, balance); err != nil {
		s.logger.Error("Failed to create wallet", "tenant_id", tenantID, "error", err)
		return nil, err
	}
	s.logger.Info("Wallet created", "tenant_id", tenantID, "billing_mode", mode, "balance", initialBalance)
	return balance, nil
}

// Charge debits the wallet by cmd.Amount
func (s *WalletServiceImpl) Charge(ctx context.Context, cmd AdjustCommand) (*ledger.AdjustResult, error) {
	if cmd.Amount <= 0 {
		return nil, wallet.ErrInvalidAmount
	}
	return s.adjust(ctx, "wallet.charge", ledger.Adjustment{
		TenantID:             cmd.TenantID,
		Kind:                 ledger.KindCharge,
		Amount:               -cmd.Amount,
		Description:          cmd.Description,
		IdempotencyKey:       cmd.IdempotencyKey,
		CorrelationID:        cmd.CorrelationID,
		SkipSufficiencyCheck: cmd.SkipBalanceCheck,
	})
}

// Refund credits back a previous charge. The entry key is derived from the
// charge's key so retried refund requests replay instead of double-paying.
func (s *WalletServiceImpl) Refund(ctx context.Context, cmd RefundCommand) (*ledger.AdjustResult, error) {
	if cmd.Amount <= 0 {
		return nil, wallet.ErrInvalidAmount
	}
	return s.adjust(ctx, "wallet.refund", ledger.Adjustment{
		TenantID:       cmd.TenantID,
		Kind:           ledger.KindRefund,
		Amount:         cmd.Amount,
		Description:    cmd.Description,
		IdempotencyKey: cmd.ChargeKey + "-refund",
		CorrelationID:  cmd.CorrelationID,
	})
}

// Credit tops up the wallet by cmd.Amount
func (s *WalletServiceImpl) Credit(ctx context.Context, cmd AdjustCommand) (*ledger.AdjustResult, error) {
	if cmd.Amount <= 0 {
		return nil, wallet.ErrInvalidAmount
	}
	return s.adjust(ctx, "wallet.credit", ledger.Adjustment{
		TenantID:       cmd.TenantID,
		Kind:           ledger.KindCredit,
		Amount:         cmd.Amount,
		Description:    cmd.Description,
		IdempotencyKey: cmd.IdempotencyKey,
		CorrelationID:  cmd.CorrelationID,
	})
}

// Settle applies the difference between an estimated charge and the final
// cost. A positive delta is an additional debit, a negative delta returns
// the overcharged amount. A zero delta is a no-op.
func (s *WalletServiceImpl) Settle(ctx context.Context, cmd SettlementCommand) (*ledger.AdjustResult, error) {
	if cmd.Delta == 0 {
		return nil, nil
	}
	key := cmd.BaseKey + "-adjust-debit"
	if cmd.Delta < 0 {
		key = cmd.BaseKey + "-adjust-credit"
	}
	return s.adjust(ctx, "wallet.settle", ledger.Adjustment{
		TenantID:       cmd.TenantID,
		Kind:           ledger.KindAdjustment,
		Amount:         -cmd.Delta,
		Description:    cmd.Description,
		IdempotencyKey: key,
		CorrelationID:  cmd.CorrelationID,
		// The cost was already incurred with the provider, so the debit
		// goes through even if it pushes a prepaid balance negative.
		SkipSufficiencyCheck: true,
	})
}

// RefundOrCompensate tries an immediate refund. If the refund fails for
// anything other than a business rule, the amount is queued for asynchronous
// compensation so the tenant is made whole later.
func (s *WalletServiceImpl) RefundOrCompensate(ctx context.Context, cmd RefundCommand) (*RefundOutcome, error) {
	result, err := s.Refund(ctx, cmd)
	if err == nil {
		return &RefundOutcome{Result: result}, nil
	}
	if isTerminal(err) {
		return nil, err
	}

	s.logger.Warn("Refund failed, queueing compensation",
		"tenant_id", cmd.TenantID,
		"amount", cmd.Amount,
		"charge_key", cmd.ChargeKey,
		"error", err)

	sourceEntryID := s.lookupChargeEntry(ctx, cmd.ChargeKey)
	entry := compensation.NewQueueEntry(
		cmd.TenantID,
		compensation.DirectionCredit,
		cmd.Amount,
		fmt.Sprintf("refund failed: %v", err),
		sourceEntryID,
		cmd.CorrelationID,
	)
	if qErr := s.compensationRepo.Create(ctx, entry); qErr != nil {
		// Queueing is best effort. The reconciliation sweep picks up
		// wallets whose ledger and balance disagree.
		s.logger.Error("Failed to enqueue compensation entry",
			"tenant_id", cmd.TenantID,
			"charge_key", cmd.ChargeKey,
			"error", qErr)
	}
	return &RefundOutcome{Compensated: true}, nil
}

// GetBalance retrieves a tenant's wallet balance
func (s *WalletServiceImpl) GetBalance(ctx context.Context, tenantID uuid.UUID) (*wallet.Balance, error) {
	return s.walletRepo.GetBalance(ctx, tenantID)
}

// GetEntries retrieves a paginated list of a tenant's ledger entries
func (s *WalletServiceImpl) GetEntries(ctx context.Context, tenantID uuid.UUID, page, perPage int) ([]*ledger.Entry, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	entries, err := s.ledgerRepo.GetByTenantID(ctx, tenantID, perPage, offset)
	if err != nil {
		s.logger.Error("Failed to get ledger entries", "tenant_id", tenantID, "error", err)
		return nil, 0, err
	}
	total, err := s.ledgerRepo.CountByTenantID(ctx, tenantID)
	if err != nil {
		s.logger.Error("Failed to count ledger entries", "tenant_id", tenantID, "error", err)
		return nil, 0, err
	}
	return entries, total, nil
}

// adjust runs a balance adjustment under the lock-contention retry policy
// and streams the committed entry on success.
func (s *WalletServiceImpl) adjust(ctx context.Context, op string, adj ledger.Adjustment) (*ledger.AdjustResult, error) {
	result, err := retry.Do(ctx, s.retrier, op, func(ctx context.Context) (*ledger.AdjustResult, error) {
		return s.walletRepo.Adjust(ctx, adj)
	})
	if err != nil {
		return nil, err
	}
	if result.Replayed {
		s.logger.Info("Replayed adjustment with existing idempotency key",
			"tenant_id", adj.TenantID,
			"idempotency_key", adj.IdempotencyKey)
		return result, nil
	}
	s.publishEntry(ctx, adj, result)
	return result, nil
}

// publishEntry streams a committed ledger entry to Kafka. Publishing is best
// effort: the ledger row is already committed, so failures are only logged.
func (s *WalletServiceImpl) publishEntry(ctx context.Context, adj ledger.Adjustment, result *ledger.AdjustResult) {
	if s.producer == nil {
		return
	}
	entry := &ledger.Entry{
		ID:             result.EntryID,
		TenantID:       adj.TenantID,
		Kind:           adj.Kind,
		Amount:         adj.Amount,
		BalanceAfter:   result.NewBalance,
		Description:    adj.Description,
		IdempotencyKey: adj.IdempotencyKey,
		CorrelationID:  adj.CorrelationID,
		CreatedAt:      time.Now(),
	}
	if err := s.producer.Publish(ctx, adj.TenantID.String(), entry); err != nil {
		s.logger.Error("Failed to publish ledger event",
			"entry_id", result.EntryID,
			"tenant_id", adj.TenantID,
			"error", err)
	}
}

// lookupChargeEntry resolves the ledger entry of the original charge so the
// compensation entry can reference it. Missing entries are tolerated.
func (s *WalletServiceImpl) lookupChargeEntry(ctx context.Context, chargeKey string) uuid.UUID {
	entry, err := s.ledgerRepo.GetByIdempotencyKey(ctx, chargeKey)
	if err != nil {
		s.logger.Warn("Failed to resolve source entry for compensation", "charge_key", chargeKey, "error", err)
		return uuid.Nil
	}
	return entry.ID
}

// isTerminal reports whether an adjustment error is a business rule failure
// that compensation cannot fix
func isTerminal(err error) bool {
	switch {
	case errors.Is(err, wallet.ErrTenantNotFound{}),
		errors.Is(err, wallet.ErrInsufficientBalance{}),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidEntryKind),
		errors.Is(err, ledger.ErrZeroDelta):
		return true
	}
	return false
}
