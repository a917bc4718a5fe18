// Package booking orchestrates the charge-book-settle flow: wallet charge at
// an estimated cost, provider call behind the circuit breaker, then
// settlement of the difference once the provider reports the final price.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shiplane/wallet-ledger/internal/breaker"
	"github.com/shiplane/wallet-ledger/internal/config"
	"github.com/shiplane/wallet-ledger/internal/domain/wallet"
	"github.com/shiplane/wallet-ledger/internal/policy"
	"github.com/shiplane/wallet-ledger/internal/service"
)

// BookingRequest describes a shipment booking
type BookingRequest struct {
	TenantID       uuid.UUID
	Actor          policy.Actor
	Provider       string
	QuotedCost     int64 // Provider quote in cents, from rate shopping
	IdempotencyKey string
	CorrelationID  string
	Shipment       ShipmentRequest
}

// Booking is the result of a successful booking
type Booking struct {
	ShipmentID     string `json:"shipment_id"`
	Provider       string `json:"provider"`
	TrackingNumber string `json:"tracking_number"`
	EstimatedCost  int64  `json:"estimated_cost"`
	FinalCost      int64  `json:"final_cost"`
}

// CancelRequest asks a provider to cancel a shipment and refunds the charge
type CancelRequest struct {
	TenantID       uuid.UUID
	Provider       string
	ShipmentID     string
	Amount         int64  // Amount to refund, in cents
	IdempotencyKey string // Idempotency key of the booking's charge
	CorrelationID  string
}

// CancelResult reports how the refund part of a cancel ended
type CancelResult struct {
	Refunded           bool `json:"refunded"`
	CompensationQueued bool `json:"compensation_queued"`
}

// Orchestrator coordinates wallet, policy, breaker and provider calls
type Orchestrator struct {
	wallets       service.WalletService
	policy        *policy.Policy
	breaker       *breaker.Breaker
	providers     map[string]ProviderClient
	bufferPercent int64
	platformFee   int64
	logger        *slog.Logger
}

// NewOrchestrator creates a booking orchestrator over the given providers
func NewOrchestrator(
	logger *slog.Logger,
	cfg config.BookingConfig,
	wallets service.WalletService,
	creditPolicy *policy.Policy,
	brk *breaker.Breaker,
	providers map[string]ProviderClient,
) *Orchestrator {
	return &Orchestrator{
		wallets:       wallets,
		policy:        creditPolicy,
		breaker:       brk,
		providers:     providers,
		bufferPercent: int64(cfg.EstimateBufferPercent),
		platformFee:   cfg.PlatformFee,
		logger:        logger,
	}
}

// Estimate computes the amount charged up front for a quote: the quote plus
// the buffer percentage, plus the flat platform fee.
func (o *Orchestrator) Estimate(quotedCost int64) int64 {
	return quotedCost*(100+o.bufferPercent)/100 + o.platformFee
}

// Book charges the wallet at the estimated cost, creates the shipment with
// the provider, and settles the difference against the final cost. If the
// provider call fails the charge is refunded (or queued for compensation).
func (o *Orchestrator) Book(ctx context.Context, req BookingRequest) (*Booking, error) {
	provider, ok := o.providers[req.Provider]
	if !ok {
		return nil, ErrUnknownProvider{Provider: req.Provider}
	}
	if req.QuotedCost <= 0 {
		return nil, wallet.ErrInvalidAmount
	}

	estimate := o.Estimate(req.QuotedCost)

	check, err := o.policy.CheckSufficientCredit(ctx, req.Actor, req.TenantID, estimate)
	if err != nil {
		return nil, err
	}
	if !check.Sufficient {
		return nil, wallet.ErrInsufficientBalance{
			TenantID: req.TenantID,
			Balance:  check.CurrentBalance,
			Required: estimate,
		}
	}

	_, err = o.wallets.Charge(ctx, service.AdjustCommand{
		TenantID:         req.TenantID,
		Amount:           estimate,
		Description:      fmt.Sprintf("Shipment booking via %s (ref %s)", req.Provider, req.Shipment.ReferenceID),
		IdempotencyKey:   req.IdempotencyKey,
		CorrelationID:    req.CorrelationID,
		SkipBalanceCheck: check.Bypassed,
	})
	if err != nil {
		return nil, err
	}

	var confirmation *ShipmentConfirmation
	err = o.breaker.Execute(ctx, req.Provider, func(ctx context.Context) error {
		c, cErr := provider.CreateShipment(ctx, req.Shipment)
		if cErr != nil {
			return cErr
		}
		confirmation = c
		return nil
	})
	if err != nil {
		o.refundFailedBooking(ctx, req, estimate)
		if errors.Is(err, breaker.ErrCircuitOpen{}) {
			return nil, err
		}
		return nil, ErrProviderUnavailable{Provider: req.Provider, Err: err}
	}

	finalCost := confirmation.FinalCost
	delta := finalCost - estimate
	if _, sErr := o.wallets.Settle(ctx, service.SettlementCommand{
		TenantID:      req.TenantID,
		Delta:         delta,
		Description:   fmt.Sprintf("Settlement for shipment %s", confirmation.ShipmentID),
		BaseKey:       req.IdempotencyKey,
		CorrelationID: req.CorrelationID,
	}); sErr != nil {
		// The booking stands; the ledger is off by the delta until the
		// compensation sweep or a manual adjustment reconciles it.
		o.logger.Error("Failed to settle booking",
			"tenant_id", req.TenantID,
			"shipment_id", confirmation.ShipmentID,
			"delta", delta,
			"error", sErr)
	}

	return &Booking{
		ShipmentID:     confirmation.ShipmentID,
		Provider:       req.Provider,
		TrackingNumber: confirmation.TrackingNumber,
		EstimatedCost:  estimate,
		FinalCost:      finalCost,
	}, nil
}

// Cancel cancels the shipment with the provider, then refunds the charge.
// Once the provider cancel has gone through the caller always sees success;
// a refund that cannot be applied is queued for compensation.
func (o *Orchestrator) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	provider, ok := o.providers[req.Provider]
	if !ok {
		return nil, ErrUnknownProvider{Provider: req.Provider}
	}

	err := o.breaker.Execute(ctx, req.Provider, func(ctx context.Context) error {
		return provider.CancelShipment(ctx, req.ShipmentID)
	})
	if err != nil {
		if errors.Is(err, breaker.ErrCircuitOpen{}) {
			return nil, err
		}
		return nil, ErrProviderUnavailable{Provider: req.Provider, Err: err}
	}

	outcome, err := o.wallets.RefundOrCompensate(ctx, service.RefundCommand{
		TenantID:      req.TenantID,
		Amount:        req.Amount,
		Description:   fmt.Sprintf("Refund for cancelled shipment %s", req.ShipmentID),
		ChargeKey:     req.IdempotencyKey,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return nil, err
	}
	return &CancelResult{
		Refunded:           !outcome.Compensated,
		CompensationQueued: outcome.Compensated,
	}, nil
}

// refundFailedBooking undoes the up-front charge after a provider failure.
// The shipment never existed, so the money always comes back, immediately or
// through the compensation queue.
func (o *Orchestrator) refundFailedBooking(ctx context.Context, req BookingRequest, estimate int64) {
	outcome, err := o.wallets.RefundOrCompensate(ctx, service.RefundCommand{
		TenantID:      req.TenantID,
		Amount:        estimate,
		Description:   fmt.Sprintf("Refund for failed booking via %s", req.Provider),
		ChargeKey:     req.IdempotencyKey,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		o.logger.Error("Failed to refund failed booking",
			"tenant_id", req.TenantID,
			"idempotency_key", req.IdempotencyKey,
			"error", err)
		return
	}
	if outcome.Compensated {
		o.logger.Warn("Booking refund queued for compensation",
			"tenant_id", req.TenantID,
			"idempotency_key", req.IdempotencyKey,
			"amount", estimate)
	}
}
