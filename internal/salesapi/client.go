package salesapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sales/internal/common"
	"github.com/noah-isme/backend-sales/internal/order"
	"github.com/noah-isme/backend-sales/internal/pricing"
	"github.com/noah-isme/backend-sales/internal/resilience"
)

// ErrNotFound indicates the requested backend resource does not exist.
var ErrNotFound = errors.New("salesapi: resource not found")

// Order is the slice of the backend order document this service consumes.
type Order struct {
	ID         string             `json:"id"`
	Status     string             `json:"status"`
	CustomerID string             `json:"customer_id"`
	Products   []pricing.LineItem `json:"products"`
}

// Client talks to the sales backend REST API. All persistence and business
// authorisation live behind that API; this client only shuttles payloads.
type Client struct {
	BaseURL string
	Token   string
	HTTP    resilience.HTTPClient
	Logger  zerolog.Logger
}

// Order loads the order an order-build session starts from.
func (c *Client) Order(ctx context.Context, orderID string) (Order, error) {
	var out struct {
		Data Order `json:"data"`
	}
	if err := c.get(ctx, "/orders/"+url.PathEscape(orderID), &out); err != nil {
		return Order{}, fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	return out.Data, nil
}

// Customer loads the buyer context (default margin and tax mode).
func (c *Client) Customer(ctx context.Context, customerID string) (pricing.Customer, error) {
	var out struct {
		Data pricing.Customer `json:"data"`
	}
	if err := c.get(ctx, "/customers/"+url.PathEscape(customerID), &out); err != nil {
		return pricing.Customer{}, fmt.Errorf("fetch customer %s: %w", customerID, err)
	}
	return out.Data, nil
}

// SpecialMargins fetches the per-customer margin overrides and converts
// them into a lookup table keyed by canonical product id.
func (c *Client) SpecialMargins(ctx context.Context, customerID string) (pricing.MarginTable, error) {
	var out struct {
		Products []struct {
			ProductID pricing.ProductID `json:"product_id"`
			Margin    string            `json:"margin"`
		} `json:"products"`
	}
	path := "/customers/" + url.PathEscape(customerID) + "/special-margins"
	if err := c.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("fetch special margins for %s: %w", customerID, err)
	}
	table := make(pricing.MarginTable, len(out.Products))
	for _, p := range out.Products {
		table[p.ProductID] = p.Margin
	}
	return table, nil
}

// PersistOrder implements order.Persister. The response body is discarded;
// only the status class matters.
func (c *Client) PersistOrder(ctx context.Context, orderID string, payload order.UpdatePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode order update: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPut, "/orders/"+url.PathEscape(orderID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("persist order %s: %w", orderID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("persist order %s: %s", orderID, resp.Status)
	}
	return nil
}

// Ping probes the backend for readiness checks. It bypasses the breaker so
// a probe never consumes the failure budget.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	httpClient := c.HTTP.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return errors.New(resp.Status)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= http.StatusBadRequest:
		return common.NewAppError("UPSTREAM", "sales api: "+resp.Status, http.StatusBadGateway, errors.New(resp.Status))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}
