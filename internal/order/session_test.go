package order_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sales/internal/order"
	"github.com/noah-isme/backend-sales/internal/pricing"
)

type recordingStore struct {
	calls    []order.UpdatePayload
	orderIDs []string
	err      error
}

func (r *recordingStore) PersistOrder(_ context.Context, orderID string, payload order.UpdatePayload) error {
	r.orderIDs = append(r.orderIDs, orderID)
	r.calls = append(r.calls, payload)
	return r.err
}

func testItems() []pricing.LineItem {
	return []pricing.LineItem{
		{ID: "p1", Rate: 100, Qty: 2, Stock: 5, TaxPreferences: []pricing.TaxPreference{{TaxPercentage: 18}}, Status: pricing.StatusActive},
		{ID: "p2", Rate: 50, Qty: 1, Stock: 3, Status: pricing.StatusActive},
		{ID: "p3", Rate: 10, Qty: 4, Stock: 10, Status: "inactive"},
	}
}

func newTestSession(store order.Persister) *order.Session {
	cust := pricing.Customer{ID: "c1", DefaultMargin: "40%", TaxMode: pricing.TaxExclusive}
	return order.NewSession("ord-1", cust, nil, testItems(), store, zerolog.Nop())
}

func TestChangeQuantityClamp(t *testing.T) {
	store := &recordingStore{}
	cases := []struct {
		give int
		want int
	}{
		{3, 3},   // in range stays exact
		{5, 5},   // upper bound stays exact
		{9, 5},   // above stock clamps to stock
		{0, 1},   // zero clamps to 1
		{-4, 1},  // negative clamps to 1
	}
	for _, tc := range cases {
		sess := newTestSession(store)
		sess.ChangeQuantity(context.Background(), "p1", tc.give)
		items := sess.Items()
		require.Equal(t, tc.want, items[0].Qty, "qty %d", tc.give)
		// other lines untouched
		require.Equal(t, 1, items[1].Qty)
		require.Equal(t, 4, items[2].Qty)
	}
}

func TestRemoveLine(t *testing.T) {
	sess := newTestSession(&recordingStore{})
	sess.RemoveLine(context.Background(), "p2")
	items := sess.Items()
	require.Len(t, items, 2)
	require.Equal(t, pricing.ProductID("p1"), items[0].ID)
	require.Equal(t, pricing.ProductID("p3"), items[1].ID)
}

func TestRemoveLineUnknownIDLeavesListUnchanged(t *testing.T) {
	store := &recordingStore{}
	sess := newTestSession(store)
	sess.RemoveLine(context.Background(), "missing")
	require.Len(t, sess.Items(), 3)
	// the transition still persists the (unchanged) state
	require.Len(t, store.calls, 1)
}

func TestMutationPersistsRecomputedTotals(t *testing.T) {
	store := &recordingStore{}
	sess := newTestSession(store)
	res := sess.ChangeQuantity(context.Background(), "p1", 1)
	require.NoError(t, res.PersistErr)
	require.Len(t, store.calls, 1)
	require.Equal(t, []string{"ord-1"}, store.orderIDs)

	payload := store.calls[0]
	require.Len(t, payload.Products, 3)
	require.Equal(t, 1, payload.Products[0].Qty)

	// p1: 100*0.6 = 60, GST 10.8, amount 70.8
	// p2: 50*0.6 = 30, no tax, amount 30
	// p3: 10*0.6 = 6 * 4 = 24, no tax
	// amount 124.8 -> rounds to 125; GST 10.8
	require.InDelta(t, 10.8, payload.TotalGST, 1e-9)
	require.InDelta(t, 125, payload.TotalAmount, 1e-9)
	require.Equal(t, res.Totals, sess.Totals())
}

func TestPersistFailureKeepsOptimisticState(t *testing.T) {
	store := &recordingStore{err: errors.New("backend down")}
	sess := newTestSession(store)
	res := sess.RemoveLine(context.Background(), "p1")
	require.Error(t, res.PersistErr)
	// local state already reflects the removal
	require.Len(t, sess.Items(), 2)
	// the attempted payload is exposed so callers can retry it
	require.Len(t, res.Payload.Products, 2)
}

func TestEditable(t *testing.T) {
	require.True(t, order.Editable("draft"))
	require.True(t, order.Editable("Pending Review"))
	require.False(t, order.Editable("Accepted"))
	require.False(t, order.Editable("order accepted by sales"))
	require.False(t, order.Editable("DECLINED"))
}
