package booking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProvider_CreateShipment(t *testing.T) {
	var received ShipmentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/shipments", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(ShipmentConfirmation{
			ShipmentID:     "shp_8812",
			TrackingNumber: "TRK-4471",
			FinalCost:      1399,
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(newTestLogger(), "dhl", srv.URL)

	confirmation, err := p.CreateShipment(context.Background(), ShipmentRequest{
		ReferenceID:     "bk-91",
		PickupAddress:   "12 Dock Rd",
		DeliveryAddress: "4 Harbour Ln",
		WeightGrams:     2500,
	})
	require.NoError(t, err)
	assert.Equal(t, "shp_8812", confirmation.ShipmentID)
	assert.Equal(t, "TRK-4471", confirmation.TrackingNumber)
	assert.Equal(t, int64(1399), confirmation.FinalCost)
	assert.Equal(t, "bk-91", received.ReferenceID)
	assert.Equal(t, int64(2500), received.WeightGrams)
}

func TestHTTPProvider_CreateShipment_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "carrier outage", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPProvider(newTestLogger(), "dhl", srv.URL)

	confirmation, err := p.CreateShipment(context.Background(), ShipmentRequest{ReferenceID: "bk-92"})
	require.Error(t, err)
	assert.Nil(t, confirmation)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "carrier outage")
}

func TestHTTPProvider_CancelShipment(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPProvider(newTestLogger(), "ups", srv.URL)

	require.NoError(t, p.CancelShipment(context.Background(), "shp_8812"))
	assert.Equal(t, "/shipments/shp_8812/cancel", gotPath)
	assert.Equal(t, "ups", p.Name())
}

func TestHTTPProvider_CancelShipment_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such shipment", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewHTTPProvider(newTestLogger(), "ups", srv.URL)

	err := p.CancelShipment(context.Background(), "shp_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
