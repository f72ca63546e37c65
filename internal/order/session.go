package order

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sales/internal/obs"
	"github.com/noah-isme/backend-sales/internal/pricing"
)

// UpdatePayload is the body sent to the backend order-update endpoint after
// every mutation. Totals are rounded to two decimals in the payload even
// though the aggregate amount is already a whole unit.
type UpdatePayload struct {
	Products    []pricing.LineItem `json:"products"`
	TotalGST    float64            `json:"total_gst"`
	TotalAmount float64            `json:"total_amount"`
}

// Persister pushes the recomputed order state to the remote order resource.
type Persister interface {
	PersistOrder(ctx context.Context, orderID string, payload UpdatePayload) error
}

// Result reports the outcome of a mutation. Local state stays optimistic
// even when PersistErr is set; the caller decides whether to retry the
// persist with the attempted payload.
type Result struct {
	Payload    UpdatePayload
	Totals     pricing.Totals
	PersistErr error
}

// Session owns the line-item list and totals for one order-build session.
// It is confined to the single request/UI session that loaded the order and
// is not safe for concurrent use.
type Session struct {
	OrderID  string
	Customer pricing.Customer
	Specials pricing.MarginTable
	Store    Persister
	Logger   zerolog.Logger

	items  []pricing.LineItem
	totals pricing.Totals
}

// NewSession seeds a session with the order's current product list and
// computes the initial totals. The item slice is copied; callers keep
// ownership of theirs.
func NewSession(orderID string, cust pricing.Customer, specials pricing.MarginTable, items []pricing.LineItem, store Persister, logger zerolog.Logger) *Session {
	s := &Session{
		OrderID:  orderID,
		Customer: cust,
		Specials: specials,
		Store:    store,
		Logger:   logger,
		items:    append([]pricing.LineItem(nil), items...),
	}
	s.totals = pricing.Compute(s.items, cust, specials)
	return s
}

// Items returns a copy of the current line items.
func (s *Session) Items() []pricing.LineItem {
	return append([]pricing.LineItem(nil), s.items...)
}

// Totals returns the aggregate for the current list.
func (s *Session) Totals() pricing.Totals { return s.totals }

// ChangeQuantity clamps qty to [1, stock] for the matching line and leaves
// every other line untouched. Out-of-range values are clamped silently,
// never rejected. The mutation is unconditionally followed by a
// recompute-and-persist cycle, even when no line matched.
func (s *Session) ChangeQuantity(ctx context.Context, id pricing.ProductID, qty int) Result {
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		s.items[i].Qty = clampQty(qty, s.items[i].Stock)
		break
	}
	return s.commit(ctx)
}

// RemoveLine filters the matching line out of the list, preserving the
// order of the remaining lines. A non-existent id leaves the list unchanged
// but still triggers the recompute-and-persist cycle.
func (s *Session) RemoveLine(ctx context.Context, id pricing.ProductID) Result {
	kept := make([]pricing.LineItem, 0, len(s.items))
	for _, it := range s.items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	s.items = kept
	return s.commit(ctx)
}

// commit recomputes totals over the current list and persists the new
// state. A persist failure is logged and surfaced on the Result; the local
// list and totals are not rolled back, so the session keeps serving the
// optimistic values until the next full reload.
func (s *Session) commit(ctx context.Context) Result {
	start := time.Now()
	s.totals = pricing.Compute(s.items, s.Customer, s.Specials)
	obs.ObservePricingDuration(time.Since(start))
	payload := UpdatePayload{
		Products:    s.Items(),
		TotalGST:    pricing.Round2(s.totals.GST),
		TotalAmount: pricing.Round2(s.totals.Amount),
	}
	res := Result{Payload: payload, Totals: s.totals}
	if s.Store == nil {
		return res
	}
	if err := s.Store.PersistOrder(ctx, s.OrderID, payload); err != nil {
		s.Logger.Error().Err(err).Str("order_id", s.OrderID).Msg("persist order update")
		res.PersistErr = err
	}
	return res
}

func clampQty(qty, stock int) int {
	if qty < 1 {
		return 1
	}
	if stock > 0 && qty > stock {
		return stock
	}
	return qty
}

// Editable reports whether the order status still allows edits. Accepted
// and declined orders are frozen; the match is a case-insensitive substring
// test because the backend embeds the verdict in longer status strings.
func Editable(status string) bool {
	s := strings.ToLower(status)
	return !strings.Contains(s, "accepted") && !strings.Contains(s, "declined")
}
