package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shiplane/wallet-ledger/internal/api/middleware"
	"github.com/shiplane/wallet-ledger/internal/domain/wallet"
	"github.com/shiplane/wallet-ledger/internal/policy"
	"github.com/shiplane/wallet-ledger/internal/service"
)

// WalletHandler handles HTTP requests for wallet operations
type WalletHandler struct {
	walletService service.WalletService
	creditPolicy  *policy.Policy
	logger        *slog.Logger
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(logger *slog.Logger, walletService service.WalletService, creditPolicy *policy.Policy) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		creditPolicy:  creditPolicy,
		logger:        logger,
	}
}

// Create provisions a wallet for a tenant
func (h *WalletHandler) Create(c *gin.Context) {
	var req CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		RespondBadRequest(c, "Invalid tenant ID")
		return
	}

	balance, err := h.walletService.CreateWallet(c.Request.Context(), tenantID, wallet.BillingMode(req.BillingMode), req.InitialBalance)
	if err != nil {
		h.logger.Error("Failed to create wallet", "tenant_id", req.TenantID, "error", err)
		respondWalletError(c, err)
		return
	}
	RespondCreated(c, mapBalanceToResponse(balance))
}

// Charge debits a tenant's wallet
func (h *WalletHandler) Charge(c *gin.Context) {
	h.adjust(c, func(cmd service.AdjustCommand) (interface{}, error) {
		result, err := h.walletService.Charge(c.Request.Context(), cmd)
		if err != nil {
			return nil, err
		}
		return mapAdjustResultToResponse(result), nil
	})
}

// Credit tops up a tenant's wallet
func (h *WalletHandler) Credit(c *gin.Context) {
	h.adjust(c, func(cmd service.AdjustCommand) (interface{}, error) {
		result, err := h.walletService.Credit(c.Request.Context(), cmd)
		if err != nil {
			return nil, err
		}
		return mapAdjustResultToResponse(result), nil
	})
}

// Refund returns a previously charged amount. The charge is identified by
// its idempotency key so the same charge is never refunded twice.
func (h *WalletHandler) Refund(c *gin.Context) {
	var req AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.ChargeKey == "" {
		RespondBadRequest(c, "charge_key is required for refunds")
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		RespondBadRequest(c, "Invalid tenant ID")
		return
	}

	outcome, err := h.walletService.RefundOrCompensate(c.Request.Context(), service.RefundCommand{
		TenantID:      tenantID,
		Amount:        req.Amount,
		Description:   req.Description,
		ChargeKey:     req.ChargeKey,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		h.logger.Error("Failed to refund", "tenant_id", req.TenantID, "error", err)
		respondWalletError(c, err)
		return
	}
	if outcome.Compensated {
		RespondAccepted(c, gin.H{"compensation_queued": true})
		return
	}
	RespondOK(c, mapAdjustResultToResponse(outcome.Result))
}

// GetBalance retrieves a tenant's wallet balance
func (h *WalletHandler) GetBalance(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("tenant_id"))
	if err != nil {
		RespondBadRequest(c, "Invalid tenant ID")
		return
	}

	balance, err := h.walletService.GetBalance(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("Failed to get balance", "tenant_id", tenantID, "error", err)
		respondWalletError(c, err)
		return
	}
	RespondOK(c, mapBalanceToResponse(balance))
}

// GetEntries retrieves a tenant's paginated ledger history
func (h *WalletHandler) GetEntries(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("tenant_id"))
	if err != nil {
		RespondBadRequest(c, "Invalid tenant ID")
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		h.logger.Error("Invalid pagination parameters", "error", err)
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	entries, total, err := h.walletService.GetEntries(c.Request.Context(), tenantID, pagination.Page, pagination.PerPage)
	if err != nil {
		h.logger.Error("Failed to get ledger entries", "tenant_id", tenantID, "error", err)
		respondWalletError(c, err)
		return
	}

	var responses []EntryResponse
	for _, entry := range entries {
		responses = append(responses, mapEntryToResponse(entry))
	}
	RespondWithPaginatedData(c, http.StatusOK, responses, pagination.Page, pagination.PerPage, int(total))
}

// CreditCheck runs the advisory sufficiency check for an estimated cost
func (h *WalletHandler) CreditCheck(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Query("tenant_id"))
	if err != nil {
		RespondBadRequest(c, "Invalid tenant ID")
		return
	}
	amount, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil || amount <= 0 {
		RespondBadRequest(c, "amount must be a positive integer")
		return
	}

	check, err := h.creditPolicy.CheckSufficientCredit(c.Request.Context(), middleware.GetActor(c), tenantID, amount)
	if err != nil {
		h.logger.Error("Credit check failed", "tenant_id", tenantID, "error", err)
		respondWalletError(c, err)
		return
	}
	RespondOK(c, check)
}

// adjust handles the shared request plumbing of charge and credit
func (h *WalletHandler) adjust(c *gin.Context, apply func(service.AdjustCommand) (interface{}, error)) {
	var req AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		RespondBadRequest(c, "Invalid tenant ID")
		return
	}

	data, err := apply(service.AdjustCommand{
		TenantID:       tenantID,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  middleware.GetCorrelationID(c),
	})
	if err != nil {
		h.logger.Error("Failed to adjust wallet", "tenant_id", req.TenantID, "error", err)
		respondWalletError(c, err)
		return
	}
	RespondOK(c, data)
}
