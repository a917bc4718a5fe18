package wallet

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidBillingMode = errors.New("billing mode must be prepaid or postpaid")
)

// BillingMode distinguishes tenants that pay upfront from tenants billed in arrears
type BillingMode string

const (
	BillingModePrepaid  BillingMode = "prepaid"
	BillingModePostpaid BillingMode = "postpaid"
)

// Valid reports whether the billing mode is one of the known values
func (m BillingMode) Valid() bool {
	return m == BillingModePrepaid || m == BillingModePostpaid
}

// Balance represents a tenant's wallet balance
type Balance struct {
	TenantID    uuid.UUID   `json:"tenant_id"`
	BillingMode BillingMode `json:"billing_mode"`
	Balance     int64       `json:"balance"` // Stored in cents/minor units
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewBalance creates a wallet balance for a tenant
func NewBalance(tenantID uuid.UUID, mode BillingMode, initialBalance int64) (*Balance, error) {
	if tenantID == uuid.Nil {
		return nil, ErrTenantNotFound{TenantID: tenantID}
	}
	if !mode.Valid() {
		return nil, ErrInvalidBillingMode
	}
	if initialBalance < 0 {
		return nil, ErrInvalidAmount
	}

	return &Balance{
		TenantID:    tenantID,
		BillingMode: mode,
		Balance:     initialBalance,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}, nil
}

// CanCover checks whether the wallet can absorb a debit of the given amount.
// Postpaid tenants may go negative; prepaid tenants may not.
func (b *Balance) CanCover(amount int64) bool {
	if b.BillingMode == BillingModePostpaid {
		return true
	}
	return b.Balance >= amount
}
