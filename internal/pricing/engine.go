package pricing

import (
	"math"
	"strings"
)

// TaxMode states whether a selling price already contains tax.
type TaxMode string

const (
	// TaxInclusive means the derived selling price already includes tax.
	TaxInclusive TaxMode = "Inclusive"
	// TaxExclusive means tax is added on top of the selling price.
	TaxExclusive TaxMode = "Exclusive"
)

// ParseTaxMode maps the backend's tax mode string onto a TaxMode. Only the
// exact value "Inclusive" selects inclusive pricing; anything else,
// including the empty string, is exclusive.
func ParseTaxMode(s string) TaxMode {
	if strings.TrimSpace(s) == string(TaxInclusive) {
		return TaxInclusive
	}
	return TaxExclusive
}

// Customer is the buyer context for an order-build session. It is fetched
// once per session and read-only thereafter.
type Customer struct {
	ID            string  `json:"id"`
	DefaultMargin string  `json:"default_margin,omitempty"`
	TaxMode       TaxMode `json:"tax_mode,omitempty"`
}

// TaxPreference is one entry of an item-level tax preference list. Only the
// first entry is consulted.
type TaxPreference struct {
	TaxPercentage float64 `json:"tax_percentage"`
}

// StatusActive marks a line item as editable in the review screen.
const StatusActive = "active"

// LineItem is one product entry within the order's product list.
type LineItem struct {
	ID             ProductID       `json:"product_id"`
	Rate           float64         `json:"rate"`
	Qty            int             `json:"quantity"`
	Stock          int             `json:"stock"`
	TaxPreferences []TaxPreference `json:"item_tax_preferences,omitempty"`
	Status         string          `json:"status,omitempty"`
}

// TaxPercent returns the first tax preference percentage, defaulting to 0.
func (li LineItem) TaxPercent() float64 {
	if len(li.TaxPreferences) == 0 {
		return 0
	}
	return li.TaxPreferences[0].TaxPercentage
}

// Active reports whether the item may still be edited. Inactive items stay
// in the list and keep contributing to totals.
func (li LineItem) Active() bool { return li.Status == StatusActive }

// Totals is the order-wide aggregate recomputed from scratch after every
// mutation; it is never updated incrementally.
type Totals struct {
	GST    float64 `json:"total_gst"`
	Amount float64 `json:"total_amount"`
}

// SellingPrice derives the customer-facing unit price from the catalog rate.
func SellingPrice(rate, margin float64) float64 {
	return rate - rate*margin
}

// Round2 rounds half-up at the cent level.
func Round2(x float64) float64 {
	return math.Floor(x*100+0.5) / 100
}

// roundAmount is the whole-unit policy for the aggregate amount: fractional
// part >= 0.5 rounds up, otherwise down. Deliberately not the 2-decimal
// policy used for GST; the asymmetry matches the billing system this feeds.
func roundAmount(x float64) float64 {
	return math.Floor(x + 0.5)
}

// LineDisplayTotal is the per-row total shown in the review table, rounded
// independently of the aggregate accumulation. The row values therefore may
// not sum to the aggregate exactly; that divergence is accepted.
func LineDisplayTotal(qty int, sellingPrice float64) float64 {
	return Round2(float64(qty) * sellingPrice)
}

// Compute aggregates GST and amount across all line items. Contributions
// accumulate unrounded; rounding is applied once, after summation. Negative
// contributions (zero or negative rate) propagate arithmetically.
func Compute(items []LineItem, cust Customer, specials MarginTable) Totals {
	var gst, amount float64
	for _, it := range items {
		margin := ResolveMargin(it.ID, specials, cust.DefaultMargin)
		selling := SellingPrice(it.Rate, margin)
		tax := it.TaxPercent()
		qty := float64(it.Qty)
		if cust.TaxMode == TaxInclusive {
			base := selling / (1 + tax/100)
			gst += (selling - base) * qty
			amount += selling * qty
		} else {
			gst += selling * (tax / 100) * qty
			amount += (selling + selling*tax/100) * qty
		}
	}
	return Totals{GST: Round2(gst), Amount: roundAmount(amount)}
}
