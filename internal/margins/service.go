package margins

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sales/internal/obs"
	"github.com/noah-isme/backend-sales/internal/pricing"
)

// Source fetches the raw special-margin table for a customer.
type Source interface {
	SpecialMargins(ctx context.Context, customerID string) (pricing.MarginTable, error)
}

// Service returns per-customer special-margin snapshots. The table is
// fetched once per customer context and cached; within an order-build
// session it is treated as immutable.
type Service struct {
	Source Source
	Cache  *Cache
	Logger zerolog.Logger
}

func cacheKey(customerID string) string {
	return "margins:customer:" + customerID
}

// ForCustomer loads the special-margin table for the customer, consulting
// the cache first. Cache errors are logged and treated as misses so a
// flaky Redis never blocks pricing.
func (s *Service) ForCustomer(ctx context.Context, customerID string) (pricing.MarginTable, error) {
	if customerID == "" {
		return nil, fmt.Errorf("customer id required")
	}
	key := cacheKey(customerID)
	var table pricing.MarginTable
	hit, err := s.Cache.GetJSON(ctx, key, &table)
	if err != nil {
		s.Logger.Warn().Err(err).Str("customer_id", customerID).Msg("margin cache read")
	}
	if hit {
		obs.ObserveMarginCache("hit")
		return table, nil
	}
	obs.ObserveMarginCache("miss")

	table, err = s.Source.SpecialMargins(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if err := s.Cache.SetJSON(ctx, key, table); err != nil {
		s.Logger.Warn().Err(err).Str("customer_id", customerID).Msg("margin cache write")
	}
	return table, nil
}

// Invalidate drops the cached snapshot for a customer. Used when the admin
// surface edits special margins out-of-band.
func (s *Service) Invalidate(ctx context.Context, customerID string) error {
	if s.Cache == nil || s.Cache.client == nil || customerID == "" {
		return nil
	}
	return s.Cache.client.Del(ctx, cacheKey(customerID)).Err()
}
