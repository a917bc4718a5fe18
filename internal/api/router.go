package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shiplane/wallet-ledger/internal/api/handler"
	"github.com/shiplane/wallet-ledger/internal/api/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	walletHandler *handler.WalletHandler,
	bookingHandler *handler.BookingHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Actor())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Wallet operations
		wallet := v1.Group("/wallet")
		{
			wallet.POST("", walletHandler.Create)
			wallet.POST("/charges", walletHandler.Charge)
			wallet.POST("/refunds", walletHandler.Refund)
			wallet.POST("/credits", walletHandler.Credit)
			wallet.GET("/:tenant_id/balance", walletHandler.GetBalance)
			wallet.GET("/:tenant_id/entries", walletHandler.GetEntries)
		}

		// Advisory sufficiency check used before quoting a booking
		v1.GET("/credit-check", walletHandler.CreditCheck)

		// Booking operations
		bookings := v1.Group("/bookings")
		{
			bookings.POST("", bookingHandler.Create)
			bookings.POST("/:id/cancel", bookingHandler.Cancel)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
