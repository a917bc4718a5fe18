package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shiplane/wallet-ledger/internal/api/middleware"
	"github.com/shiplane/wallet-ledger/internal/booking"
)

// BookingHandler handles HTTP requests for shipment bookings
type BookingHandler struct {
	orchestrator *booking.Orchestrator
	logger       *slog.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(logger *slog.Logger, orchestrator *booking.Orchestrator) *BookingHandler {
	return &BookingHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// Create books a shipment: charges the wallet at the estimated cost, creates
// the shipment with the provider, and settles against the final cost
func (h *BookingHandler) Create(c *gin.Context) {
	var req CreateBookingRequest
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

	result, err := h.orchestrator.Book(c.Request.Context(), booking.BookingRequest{
		TenantID:       tenantID,
		Actor:          middleware.GetActor(c),
		Provider:       req.Provider,
		QuotedCost:     req.QuotedCost,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  middleware.GetCorrelationID(c),
		Shipment: booking.ShipmentRequest{
			ReferenceID:     req.IdempotencyKey,
			PickupAddress:   req.PickupAddress,
			DeliveryAddress: req.DeliveryAddress,
			WeightGrams:     req.WeightGrams,
		},
	})
	if err != nil {
		h.logger.Error("Failed to book shipment", "tenant_id", req.TenantID, "provider", req.Provider, "error", err)
		respondWalletError(c, err)
		return
	}
	RespondCreated(c, result)
}

// Cancel cancels a shipment with its provider and refunds the charge
func (h *BookingHandler) Cancel(c *gin.Context) {
	shipmentID := c.Param("id")
	if shipmentID == "" {
		RespondBadRequest(c, "Shipment ID is required")
		return
	}

	var req CancelBookingRequest
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

	result, err := h.orchestrator.Cancel(c.Request.Context(), booking.CancelRequest{
		TenantID:       tenantID,
		Provider:       req.Provider,
		ShipmentID:     shipmentID,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  middleware.GetCorrelationID(c),
	})
	if err != nil {
		h.logger.Error("Failed to cancel shipment", "shipment_id", shipmentID, "error", err)
		respondWalletError(c, err)
		return
	}
	RespondOK(c, mapCancelResultToResponse(result))
}
