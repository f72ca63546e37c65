package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProductID is the canonical string form of a product identifier. The
// backend is inconsistent about the shape it emits: sometimes a plain
// string, sometimes an object wrapping the string under "_id" or "$oid".
// Every lookup in this package goes through this type so the two shapes
// can never diverge at a call site.
type ProductID string

// wrappedIDKeys are the object keys the backend uses to wrap an identifier.
var wrappedIDKeys = []string{"_id", "$oid", "id"}

// UnmarshalJSON accepts plain string ids as well as the wrapped object forms.
func (p *ProductID) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		*p = ProductID(plain)
		return nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("product id: %w", err)
	}
	for _, key := range wrappedIDKeys {
		raw, ok := wrapped[key]
		if !ok {
			continue
		}
		// The wrapped value may itself be wrapped ({"_id":{"$oid":...}}).
		var inner ProductID
		if err := json.Unmarshal(raw, &inner); err != nil {
			return fmt.Errorf("product id %q: %w", key, err)
		}
		*p = inner
		return nil
	}
	return errors.New("product id: unrecognised shape")
}

// MarshalJSON always emits the canonical plain-string form.
func (p ProductID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

func (p ProductID) String() string { return string(p) }

// NormalizeProductID converts any supported identifier shape into the
// canonical string form. It is total: unrecognised shapes normalize to the
// empty id rather than silently keeping an object that would miss every
// map lookup.
func NormalizeProductID(v any) ProductID {
	switch id := v.(type) {
	case ProductID:
		return id
	case string:
		return ProductID(id)
	case map[string]any:
		for _, key := range wrappedIDKeys {
			if nested, ok := id[key]; ok {
				return NormalizeProductID(nested)
			}
		}
	}
	return ""
}
