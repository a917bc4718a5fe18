package booking

import (
	"context"
	"fmt"
)

// ShipmentRequest is the subset of a booking forwarded to a courier provider
type ShipmentRequest struct {
	ReferenceID     string `json:"reference_id"`
	PickupAddress   string `json:"pickup_address"`
	DeliveryAddress string `json:"delivery_address"`
	WeightGrams     int64  `json:"weight_grams"`
}

// ShipmentConfirmation is what a provider returns for a created shipment.
// FinalCost is in cents and may differ from the quoted price.
type ShipmentConfirmation struct {
	ShipmentID     string `json:"shipment_id"`
	TrackingNumber string `json:"tracking_number"`
	FinalCost      int64  `json:"final_cost"`
}

// ProviderClient is a courier integration. Implementations are expected to
// return an error for any non-2xx provider response so the circuit breaker
// sees every failure.
type ProviderClient interface {
	Name() string
	CreateShipment(ctx context.Context, req ShipmentRequest) (*ShipmentConfirmation, error)
	CancelShipment(ctx context.Context, shipmentID string) error
}

// ErrUnknownProvider is returned when a booking names a provider that is not
// registered with the orchestrator
type ErrUnknownProvider struct {
	Provider string
}

func (e ErrUnknownProvider) Error() string {
	return fmt.Sprintf("unknown shipping provider %q", e.Provider)
}

// Is implements errors.Is support
func (e ErrUnknownProvider) Is(target error) bool {
	t, ok := target.(ErrUnknownProvider)
	if !ok {
		return false
	}
	return t.Provider == "" || t.Provider == e.Provider
}

// ErrProviderUnavailable wraps a provider failure that the caller should
// retry later
type ErrProviderUnavailable struct {
	Provider string
	Err      error
}

func (e ErrProviderUnavailable) Error() string {
	return fmt.Sprintf("shipping provider %q is temporarily unavailable: %v", e.Provider, e.Err)
}

func (e ErrProviderUnavailable) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e ErrProviderUnavailable) Is(target error) bool {
	t, ok := target.(ErrProviderUnavailable)
	if !ok {
		return false
	}
	return t.Provider == "" || t.Provider == e.Provider
}
