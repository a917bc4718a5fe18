package handler

import (
	"time"

	"github.com/shiplane/wallet-ledger/internal/booking"
	"github.com/shiplane/wallet-ledger/internal/domain/ledger"
	"github.com/shiplane/wallet-ledger/internal/domain/wallet"
)

// CreateWalletRequest represents a request to provision a tenant wallet
type CreateWalletRequest struct {
	TenantID       string `json:"tenant_id" binding:"required,uuid"`
	BillingMode    string `json:"billing_mode" binding:"required,oneof=prepaid postpaid"`
	InitialBalance int64  `json:"initial_balance" binding:"min=0"`
}

// AdjustmentRequest represents a charge, refund or credit request. Amounts
// are positive cents; the endpoint decides the direction.
type AdjustmentRequest struct {
	TenantID       string `json:"tenant_id" binding:"required,uuid"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`

	// ChargeKey identifies the charge being refunded; refunds only
	ChargeKey string `json:"charge_key,omitempty"`
}

// AdjustmentResponse represents the outcome of a balance adjustment
type AdjustmentResponse struct {
	EntryID    string `json:"entry_id"`
	NewBalance int64  `json:"new_balance"`
	Replayed   bool   `json:"replayed"`
}

// BalanceResponse represents a wallet balance in API responses
type BalanceResponse struct {
	TenantID    string `json:"tenant_id"`
	BillingMode string `json:"billing_mode"`
	Balance     int64  `json:"balance"`
	UpdatedAt   string `json:"updated_at"`
}

// EntryResponse represents a ledger entry in API responses
type EntryResponse struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	Kind           string `json:"kind"`
	Amount         int64  `json:"amount"`
	BalanceAfter   int64  `json:"balance_after"`
	Description    string `json:"description,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	CorrelationID  string `json:"correlation_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// CreateBookingRequest represents a shipment booking request
type CreateBookingRequest struct {
	TenantID       string `json:"tenant_id" binding:"required,uuid"`
	Provider       string `json:"provider" binding:"required"`
	QuotedCost     int64  `json:"quoted_cost" binding:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`

	PickupAddress   string `json:"pickup_address" binding:"required"`
	DeliveryAddress string `json:"delivery_address" binding:"required"`
	WeightGrams     int64  `json:"weight_grams" binding:"required,gt=0"`
}

// CancelBookingRequest represents a shipment cancel request
type CancelBookingRequest struct {
	TenantID       string `json:"tenant_id" binding:"required,uuid"`
	Provider       string `json:"provider" binding:"required"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}

// mapAdjustResultToResponse maps an adjustment result to its response DTO
func mapAdjustResultToResponse(result *ledger.AdjustResult) AdjustmentResponse {
	return AdjustmentResponse{
		EntryID:    result.EntryID.String(),
		NewBalance: result.NewBalance,
		Replayed:   result.Replayed,
	}
}

// mapBalanceToResponse maps a wallet balance to its response DTO
func mapBalanceToResponse(b *wallet.Balance) BalanceResponse {
	return BalanceResponse{
		TenantID:    b.TenantID.String(),
		BillingMode: string(b.BillingMode),
		Balance:     b.Balance,
		UpdatedAt:   b.UpdatedAt.Format(time.RFC3339),
	}
}

// mapEntryToResponse maps a ledger entry to its response DTO
func mapEntryToResponse(entry *ledger.Entry) EntryResponse {
	return EntryResponse{
		ID:             entry.ID.String(),
		TenantID:       entry.TenantID.String(),
		Kind:           string(entry.Kind),
		Amount:         entry.Amount,
		BalanceAfter:   entry.BalanceAfter,
		Description:    entry.Description,
		IdempotencyKey: entry.IdempotencyKey,
		CorrelationID:  entry.CorrelationID,
		CreatedAt:      entry.CreatedAt.Format(time.RFC3339),
	}
}

// mapCancelResultToResponse flattens the cancel outcome for API responses
func mapCancelResultToResponse(result *booking.CancelResult) map[string]interface{} {
	return map[string]interface{}{
		"cancelled":           true,
		"refunded":            result.Refunded,
		"compensation_queued": result.CompensationQueued,
	}
}
