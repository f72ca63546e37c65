package pricing

import (
	"strconv"
	"strings"
)

// DefaultMarginPercent is applied when neither a special margin nor a
// customer default is available or parseable.
const DefaultMarginPercent = "40%"

// MarginTable maps canonical product ids to percentage strings like "45%".
// It is built once per customer context and treated as a read-only snapshot
// for the lifetime of an order-build session.
type MarginTable map[ProductID]string

// ParsePercent parses a margin string of the form "<integer>%" into a
// fraction: "45%" yields 0.45. The reported bool is false for strings that
// do not parse.
func ParsePercent(s string) (float64, bool) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(s), "%")
	if trimmed == "" {
		return 0, false
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, false
	}
	return float64(n) / 100, true
}

// ResolveMargin returns the margin fraction for a product. The special
// margin entry wins over the customer default, which wins over the
// hard-coded 40%. A candidate that is absent or does not parse falls
// through to the next one; resolution never fails.
func ResolveMargin(id ProductID, specials MarginTable, customerDefault string) float64 {
	if raw, ok := specials[id]; ok {
		if m, ok := ParsePercent(raw); ok {
			return m
		}
	}
	if m, ok := ParsePercent(customerDefault); ok {
		return m
	}
	m, _ := ParsePercent(DefaultMarginPercent)
	return m
}
