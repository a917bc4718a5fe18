package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultProviderTimeout = 10 * time.Second

var _ ProviderClient = (*HTTPProvider)(nil)

// HTTPProvider talks to a courier's REST API. All registered providers share
// the same wire contract; carrier-specific differences live behind their
// gateway adapters.
type HTTPProvider struct {
	name       string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPProvider creates a provider client for the given carrier endpoint
func NewHTTPProvider(logger *slog.Logger, name, baseURL string) *HTTPProvider {
	return &HTTPProvider{
		name:       name,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultProviderTimeout},
		logger:     logger,
	}
}

// Name returns the provider's registry name
func (p *HTTPProvider) Name() string {
	return p.name
}

// CreateShipment books a shipment with the carrier
func (p *HTTPProvider) CreateShipment(ctx context.Context, req ShipmentRequest) (*ShipmentConfirmation, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal shipment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/shipments", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build shipment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: create shipment: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s: create shipment returned %d: %s", p.name, resp.StatusCode, body)
	}

	var confirmation ShipmentConfirmation
	if err := json.NewDecoder(resp.Body).Decode(&confirmation); err != nil {
		return nil, fmt.Errorf("%s: decode shipment confirmation: %w", p.name, err)
	}
	return &confirmation, nil
}

// CancelShipment cancels a shipment with the carrier
func (p *HTTPProvider) CancelShipment(ctx context.Context, shipmentID string) error {
	url := fmt.Sprintf("%s/shipments/%s/cancel", p.baseURL, shipmentID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("build cancel request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: cancel shipment: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: cancel shipment returned %d: %s", p.name, resp.StatusCode, body)
	}
	return nil
}
