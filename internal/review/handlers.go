package review

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sales/internal/common"
	"github.com/noah-isme/backend-sales/internal/margins"
	"github.com/noah-isme/backend-sales/internal/obs"
	"github.com/noah-isme/backend-sales/internal/order"
	"github.com/noah-isme/backend-sales/internal/pricing"
	"github.com/noah-isme/backend-sales/internal/salesapi"
)

// Backend loads order and customer context from the sales API.
type Backend interface {
	Order(ctx context.Context, orderID string) (salesapi.Order, error)
	Customer(ctx context.Context, customerID string) (pricing.Customer, error)
}

// RetryEnqueuer schedules a background retry for a failed persist.
type RetryEnqueuer interface {
	EnqueuePersist(ctx context.Context, orderID string, update order.UpdatePayload) error
}

// Handler serves the order review surface: a priced read view plus the two
// line mutations (quantity change and removal).
type Handler struct {
	Backend  Backend
	Margins  *margins.Service
	Store    order.Persister
	Retry    RetryEnqueuer
	Logger   zerolog.Logger
	Validate *validator.Validate
}

// Routes mounts the review endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/orders/{orderID}/review", h.GetReview)
	r.Patch("/orders/{orderID}/items/{productID}", h.ChangeQuantity)
	r.Delete("/orders/{orderID}/items/{productID}", h.RemoveItem)
}

type reviewLine struct {
	ProductID    pricing.ProductID `json:"product_id"`
	Status       string            `json:"status"`
	Rate         float64           `json:"rate"`
	Quantity     int               `json:"quantity"`
	Stock        int               `json:"stock"`
	Margin       float64           `json:"margin"`
	SellingPrice float64           `json:"selling_price"`
	TaxPercent   float64           `json:"tax_percent"`
	LineTotal    float64           `json:"line_total"`
}

type reviewBody struct {
	OrderID     string            `json:"order_id"`
	Status      string            `json:"status"`
	Editable    bool              `json:"editable"`
	TaxMode     string            `json:"tax_mode"`
	Products    []reviewLine      `json:"products"`
	TotalGST    float64           `json:"total_gst"`
	TotalAmount float64           `json:"total_amount"`
}

// GetReview returns the priced view of an order: every line with its
// resolved margin and selling price, plus the aggregate totals.
func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ord, cust, specials, ok := h.loadContext(ctx, w, chi.URLParam(r, "orderID"))
	if !ok {
		return
	}
	totals := pricing.Compute(ord.Products, cust, specials)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": buildReview(ord, cust, specials, totals),
	})
}

type quantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// ChangeQuantity sets a line's quantity, clamped to [1, stock], then
// recomputes and persists the whole order snapshot.
func (h *Handler) ChangeQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := chi.URLParam(r, "orderID")
	productID := pricing.ProductID(chi.URLParam(r, "productID"))

	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "quantity is required", nil)
		return
	}

	h.mutate(ctx, w, orderID, productID, "change_quantity", func(s *order.Session) order.Result {
		return s.ChangeQuantity(ctx, productID, *req.Quantity)
	})
}

// RemoveItem deletes a line from the order, then recomputes and persists.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := chi.URLParam(r, "orderID")
	productID := pricing.ProductID(chi.URLParam(r, "productID"))

	h.mutate(ctx, w, orderID, productID, "remove_line", func(s *order.Session) order.Result {
		return s.RemoveLine(ctx, productID)
	})
}

// mutate runs the shared guard chain for line mutations and renders the
// mutation outcome.
func (h *Handler) mutate(ctx context.Context, w http.ResponseWriter, orderID string, productID pricing.ProductID, op string, apply func(*order.Session) order.Result) {
	ord, cust, specials, ok := h.loadContext(ctx, w, orderID)
	if !ok {
		obs.ObserveMutation(op, "load_error")
		return
	}
	if !order.Editable(ord.Status) {
		obs.ObserveMutation(op, "frozen")
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", "order is no longer editable", map[string]any{"status": ord.Status})
		return
	}
	line, found := findLine(ord.Products, productID)
	if !found {
		obs.ObserveMutation(op, "not_found")
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not in order", nil)
		return
	}
	if !line.Active() {
		obs.ObserveMutation(op, "inactive")
		common.JSONError(w, http.StatusConflict, "INACTIVE_ITEM", "product is inactive", nil)
		return
	}

	session := order.NewSession(ord.ID, cust, specials, ord.Products, h.Store, h.Logger)
	res := apply(session)

	persisted := res.PersistErr == nil
	if persisted {
		obs.ObservePersist("ok")
	} else {
		obs.ObservePersist("error")
		h.enqueueRetry(ctx, ord.ID, res.Payload)
	}
	obs.ObserveMutation(op, "ok")

	ord.Products = session.Items()
	common.JSON(w, http.StatusOK, map[string]any{
		"data":      buildReview(ord, cust, specials, res.Totals),
		"persisted": persisted,
	})
}

func (h *Handler) enqueueRetry(ctx context.Context, orderID string, payload order.UpdatePayload) {
	if h.Retry == nil {
		return
	}
	if err := h.Retry.EnqueuePersist(ctx, orderID, payload); err != nil {
		h.Logger.Error().Err(err).Str("order_id", orderID).Msg("enqueue persist retry")
	}
}

// loadContext fetches the order, its customer, and the customer's special
// margins, rendering the error response itself on failure.
func (h *Handler) loadContext(ctx context.Context, w http.ResponseWriter, orderID string) (salesapi.Order, pricing.Customer, pricing.MarginTable, bool) {
	if strings.TrimSpace(orderID) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "order id required", nil)
		return salesapi.Order{}, pricing.Customer{}, nil, false
	}
	ord, err := h.Backend.Order(ctx, orderID)
	if err != nil {
		if errors.Is(err, salesapi.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		} else {
			h.Logger.Error().Err(err).Str("order_id", orderID).Msg("load order")
			renderUpstream(w, err, "unable to load order")
		}
		return salesapi.Order{}, pricing.Customer{}, nil, false
	}
	cust, err := h.Backend.Customer(ctx, ord.CustomerID)
	if err != nil {
		h.Logger.Error().Err(err).Str("customer_id", ord.CustomerID).Msg("load customer")
		renderUpstream(w, err, "unable to load customer")
		return salesapi.Order{}, pricing.Customer{}, nil, false
	}
	specials, err := h.Margins.ForCustomer(ctx, ord.CustomerID)
	if err != nil {
		h.Logger.Error().Err(err).Str("customer_id", ord.CustomerID).Msg("load special margins")
		renderUpstream(w, err, "unable to load special margins")
		return salesapi.Order{}, pricing.Customer{}, nil, false
	}
	return ord, cust, specials, true
}

func renderUpstream(w http.ResponseWriter, err error, fallback string) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, nil)
		return
	}
	common.JSONError(w, http.StatusBadGateway, "UPSTREAM", fallback, nil)
}

func buildReview(ord salesapi.Order, cust pricing.Customer, specials pricing.MarginTable, totals pricing.Totals) reviewBody {
	lines := make([]reviewLine, 0, len(ord.Products))
	for _, it := range ord.Products {
		margin := pricing.ResolveMargin(it.ID, specials, cust.DefaultMargin)
		selling := pricing.SellingPrice(it.Rate, margin)
		lines = append(lines, reviewLine{
			ProductID:    it.ID,
			Status:       it.Status,
			Rate:         it.Rate,
			Quantity:     it.Qty,
			Stock:        it.Stock,
			Margin:       margin,
			SellingPrice: pricing.Round2(selling),
			TaxPercent:   it.TaxPercent(),
			LineTotal:    pricing.LineDisplayTotal(it.Qty, selling),
		})
	}
	return reviewBody{
		OrderID:     ord.ID,
		Status:      ord.Status,
		Editable:    order.Editable(ord.Status),
		TaxMode:     string(pricing.ParseTaxMode(string(cust.TaxMode))),
		Products:    lines,
		TotalGST:    pricing.Round2(totals.GST),
		TotalAmount: pricing.Round2(totals.Amount),
	}
}

func findLine(items []pricing.LineItem, id pricing.ProductID) (pricing.LineItem, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return pricing.LineItem{}, false
}
