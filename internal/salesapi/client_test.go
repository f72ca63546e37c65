package salesapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sales/internal/order"
	"github.com/noah-isme/backend-sales/internal/pricing"
	"github.com/noah-isme/backend-sales/internal/resilience"
	"github.com/noah-isme/backend-sales/internal/salesapi"
)

func newTestClient(baseURL string) *salesapi.Client {
	return &salesapi.Client{
		BaseURL: baseURL,
		Token:   "token-123",
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Timeout: time.Second},
			MaxAttempts: 1,
		},
		Logger: zerolog.Nop(),
	}
}

func TestSpecialMarginsBuildsLookupTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/customers/c1/special-margins", r.URL.Path)
		require.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"products": []map[string]any{
				{"product_id": "p1", "margin": "45%"},
				{"product_id": map[string]any{"_id": "p2"}, "margin": "50%"},
			},
		})
	}))
	defer srv.Close()

	table, err := newTestClient(srv.URL).SpecialMargins(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, pricing.MarginTable{"p1": "45%", "p2": "50%"}, table)
}

func TestOrderFetchNormalizesWrappedIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders/ord-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"id":          "ord-1",
				"status":      "draft",
				"customer_id": "c1",
				"products": []map[string]any{
					{"product_id": map[string]any{"$oid": "p1"}, "rate": 100, "quantity": 2, "stock": 5, "status": "active"},
				},
			},
		})
	}))
	defer srv.Close()

	ord, err := newTestClient(srv.URL).Order(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, "draft", ord.Status)
	require.Len(t, ord.Products, 1)
	require.Equal(t, pricing.ProductID("p1"), ord.Products[0].ID)
}

func TestOrderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Order(context.Background(), "missing")
	require.ErrorIs(t, err, salesapi.ErrNotFound)
}

func TestPersistOrderSendsPayload(t *testing.T) {
	var got order.UpdatePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/orders/ord-1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	payload := order.UpdatePayload{
		Products:    []pricing.LineItem{{ID: "p1", Rate: 100, Qty: 2, Stock: 5}},
		TotalGST:    21.6,
		TotalAmount: 142,
	}
	require.NoError(t, newTestClient(srv.URL).PersistOrder(context.Background(), "ord-1", payload))
	require.Equal(t, payload, got)
}

func TestPersistOrderRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	client.HTTP.MaxAttempts = 2
	client.HTTP.BaseBackoff = time.Millisecond

	payload := order.UpdatePayload{Products: []pricing.LineItem{}}
	require.NoError(t, client.PersistOrder(context.Background(), "ord-1", payload))
	require.Equal(t, int32(2), hits.Load())
}

func TestPersistOrderClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	client.HTTP.MaxAttempts = 3
	client.HTTP.BaseBackoff = time.Millisecond

	err := client.PersistOrder(context.Background(), "ord-1", order.UpdatePayload{})
	require.Error(t, err)
	require.Equal(t, int32(1), hits.Load())
}
