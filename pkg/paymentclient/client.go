/**
 * @description
 * This package provides a client for the external payment gateway. It
 * encapsulates the logic for making authenticated HTTP requests to the
 * gateway's endpoints, handling request body construction, and parsing
 * responses.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - internal/domain: Charge request/result models.
 */
package paymentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/veluna/marketplace-core/internal/domain"
)

// Client is a client for the payment gateway API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new payment gateway client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// chargePayload is the wire shape of a charge submission.
type chargePayload struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Amount      int64             `json:"amount"`
			Currency    string            `json:"currency"`
			Description string            `json:"description"`
			Metadata    map[string]string `json:"metadata,omitempty"`
		} `json:"attributes"`
		Relationships struct {
			PaymentMethod struct {
				Data struct {
					Type string `json:"type"`
					ID   string `json:"id"`
				} `json:"data"`
			} `json:"paymentMethod"`
		} `json:"relationships"`
	} `json:"data"`
}

// chargeResponse is the expected response from the charge endpoint.
type chargeResponse struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Status string `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

// paymentMethodResponse is the expected response from the default
// payment-method endpoint.
type paymentMethodResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Brand string `json:"brand"`
			Last4 string `json:"last4"`
		} `json:"attributes"`
	} `json:"data"`
}

// ErrorResponse represents an error from the payment gateway API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("payment gateway error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown payment gateway error"
}

// GetDefaultPaymentMethod returns the user's default stored payment method,
// or (nil, nil) when the user has none on file.
func (c *Client) GetDefaultPaymentMethod(ctx context.Context, userID uuid.UUID) (*domain.PaymentMethodRef, error) {
	url := fmt.Sprintf("%s/api/v1/users/%s/payment-methods/default", c.BaseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment method request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, decodeError(resp)
	}

	var payload paymentMethodResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode payment method response: %w", err)
	}
	if payload.Data.ID == "" {
		return nil, nil
	}

	return &domain.PaymentMethodRef{
		ID:    payload.Data.ID,
		Brand: payload.Data.Attributes.Brand,
		Last4: payload.Data.Attributes.Last4,
	}, nil
}

// Charge submits a payment intent to the gateway.
func (c *Client) Charge(ctx context.Context, charge domain.ChargeRequest) (*domain.ChargeResult, error) {
	payload := chargePayload{}
	payload.Data.Type = "Charge"
	payload.Data.Attributes.Amount = charge.Amount
	payload.Data.Attributes.Currency = charge.Currency
	payload.Data.Attributes.Description = charge.Description
	payload.Data.Attributes.Metadata = charge.Metadata
	payload.Data.Relationships.PaymentMethod.Data.Type = "PaymentMethod"
	payload.Data.Relationships.PaymentMethod.Data.ID = charge.PaymentMethodID

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/charges", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeError(resp)
	}

	var result chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode charge response: %w", err)
	}

	return &domain.ChargeResult{
		ChargeID: result.Data.ID,
		Status:   result.Data.Attributes.Status,
	}, nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var apiErr ErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && len(apiErr.Errors) > 0 {
		return &apiErr
	}
	return fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
}
