package paymentclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/veluna/marketplace-core/internal/domain"
)

func TestGetDefaultPaymentMethod_Found(t *testing.T) {
	userID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, userID.String()) {
			t.Fatalf("expected user id in path, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("expected bearer auth header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"pm_1","attributes":{"brand":"visa","last4":"4242"}}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	method, err := client.GetDefaultPaymentMethod(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetDefaultPaymentMethod returned error: %v", err)
	}
	if method == nil || method.ID != "pm_1" || method.Last4 != "4242" {
		t.Fatalf("unexpected payment method: %+v", method)
	}
}

func TestGetDefaultPaymentMethod_NoneOnFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	method, err := client.GetDefaultPaymentMethod(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("expected no error for a missing method, got %v", err)
	}
	if method != nil {
		t.Fatalf("expected nil method, got %+v", method)
	}
}

func TestCharge_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		var payload chargePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode charge payload: %v", err)
		}
		if payload.Data.Attributes.Amount != 450 || payload.Data.Relationships.PaymentMethod.Data.ID != "pm_1" {
			t.Fatalf("unexpected charge payload: %+v", payload)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"chg_1","type":"Charge","attributes":{"status":"succeeded"}}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	result, err := client.Charge(context.Background(), domain.ChargeRequest{
		Amount:          450,
		Currency:        "NGN",
		PaymentMethodID: "pm_1",
		Description:     "Auto-purchase of product 42",
	})
	if err != nil {
		t.Fatalf("Charge returned error: %v", err)
	}
	if result.ChargeID != "chg_1" || result.Status != "succeeded" {
		t.Fatalf("unexpected charge result: %+v", result)
	}
}

func TestCharge_GatewayErrorSurfacesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"errors":[{"title":"Card Declined","detail":"insufficient funds on card","status":"402"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.Charge(context.Background(), domain.ChargeRequest{
		Amount:          450,
		Currency:        "NGN",
		PaymentMethodID: "pm_1",
	})
	if err == nil {
		t.Fatal("expected an error from the gateway")
	}
	if !strings.Contains(err.Error(), "Card Declined") {
		t.Fatalf("expected gateway detail in error, got %q", err.Error())
	}
}
