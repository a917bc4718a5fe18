package handler

import (
	"errors"
	"math"

	"github.com/gin-gonic/gin"

	"github.com/shiplane/wallet-ledger/internal/booking"
	"github.com/shiplane/wallet-ledger/internal/breaker"
	"github.com/shiplane/wallet-ledger/internal/domain/wallet"
)

// respondWalletError maps domain errors to their HTTP representation.
// Anything unrecognized is an internal error; store internals never leak.
func respondWalletError(c *gin.Context, err error) {
	var insufficient wallet.ErrInsufficientBalance
	if errors.As(err, &insufficient) {
		RespondPaymentRequired(c, "Insufficient wallet balance", gin.H{
			"balance":  insufficient.Balance,
			"required": insufficient.Required,
			"deficit":  insufficient.Deficit(),
		})
		return
	}

	var open breaker.ErrCircuitOpen
	if errors.As(err, &open) {
		RespondServiceUnavailable(c, "PROVIDER_UNAVAILABLE",
			"Shipping provider is temporarily unavailable",
			int(math.Ceil(open.RetryAfter.Seconds())))
		return
	}

	switch {
	case errors.Is(err, wallet.ErrTenantNotFound{}):
		RespondNotFound(c, "Wallet not found for tenant")
	case errors.Is(err, wallet.ErrDuplicateTenant{}):
		RespondConflict(c, "Tenant already has a wallet")
	case errors.Is(err, wallet.ErrLockContention{}):
		// The retry budget is already spent by the time this surfaces
		RespondServiceUnavailable(c, "WALLET_BUSY",
			"Wallet is busy, please retry", 0)
	case errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrInvalidBillingMode):
		RespondBadRequest(c, err.Error())
	case errors.Is(err, booking.ErrUnknownProvider{}):
		RespondBadRequest(c, err.Error())
	case errors.Is(err, booking.ErrProviderUnavailable{}):
		RespondServiceUnavailable(c, "PROVIDER_UNAVAILABLE",
			"Shipping provider is temporarily unavailable", 0)
	default:
		RespondInternalError(c)
	}
}
