/**
 * @description
 * This package provides a client for the product catalog service. It
 * encapsulates the logic for fetching product details by id; product data is
 * joined at read time and never duplicated into this module's own tables.
 */
package catalogclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/veluna/marketplace-core/internal/domain"
)

// ErrProductNotFound is returned when the catalog has no product with the
// requested id.
var ErrProductNotFound = errors.New("product not found")

// Client is a client for the product catalog service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new catalog client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetProductByID fetches one product's details from the catalog.
func (c *Client) GetProductByID(ctx context.Context, productID int64) (*domain.Product, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("catalog service base url is empty")
	}

	url := fmt.Sprintf("%s/internal/products/%d", c.baseURL, productID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to catalog service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrProductNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("catalog service returned error status %d", resp.StatusCode)
	}

	var product domain.Product
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, fmt.Errorf("failed to decode product response: %w", err)
	}

	return &product, nil
}
