// Package catalog is a thin client for the catalog service. It is consulted
// best-effort at order acceptance to enrich SKU titles; catalog outages never
// block order creation.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/config"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new catalog service client
func NewClient(cfg config.CatalogConfig, logger *zap.Logger) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Product is the subset of catalog metadata this core cares about
type Product struct {
	SKU    string `json:"sku"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// Enabled reports whether a catalog endpoint is configured
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// GetProduct fetches catalog metadata for one SKU
func (c *Client) GetProduct(ctx context.Context, sku string) (*Product, error) {
	url := fmt.Sprintf("%s/v1/products/%s", c.baseURL, sku)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("sku %s not found in catalog", sku)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var product Product
	if err := json.Unmarshal(body, &product); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &product, nil
}
