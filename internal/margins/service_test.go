package margins_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sales/internal/margins"
	"github.com/noah-isme/backend-sales/internal/pricing"
)

type fakeSource struct {
	calls int
	table pricing.MarginTable
	err   error
}

func (f *fakeSource) SpecialMargins(_ context.Context, _ string) (pricing.MarginTable, error) {
	f.calls++
	return f.table, f.err
}

func newService(t *testing.T, src *fakeSource) (*margins.Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := &margins.Service{
		Source: src,
		Cache:  margins.NewCache(client, time.Minute),
		Logger: zerolog.Nop(),
	}
	return svc, mr
}

func TestForCustomerCachesTable(t *testing.T) {
	src := &fakeSource{table: pricing.MarginTable{"p1": "45%"}}
	svc, _ := newService(t, src)

	got, err := svc.ForCustomer(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, src.table, got)
	require.Equal(t, 1, src.calls)

	got, err = svc.ForCustomer(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, src.table, got)
	require.Equal(t, 1, src.calls, "second lookup should be served from cache")
}

func TestForCustomerCacheExpiry(t *testing.T) {
	src := &fakeSource{table: pricing.MarginTable{"p1": "45%"}}
	svc, mr := newService(t, src)

	_, err := svc.ForCustomer(context.Background(), "c1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = svc.ForCustomer(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)
}

func TestForCustomerSourceErrorNotCached(t *testing.T) {
	src := &fakeSource{err: context.DeadlineExceeded}
	svc, _ := newService(t, src)

	_, err := svc.ForCustomer(context.Background(), "c1")
	require.Error(t, err)

	src.err = nil
	src.table = pricing.MarginTable{"p2": "30%"}
	got, err := svc.ForCustomer(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, src.table, got)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	src := &fakeSource{table: pricing.MarginTable{"p1": "45%"}}
	svc, _ := newService(t, src)

	_, err := svc.ForCustomer(context.Background(), "c1")
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(context.Background(), "c1"))

	_, err = svc.ForCustomer(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)
}

func TestForCustomerRequiresID(t *testing.T) {
	svc, _ := newService(t, &fakeSource{})
	_, err := svc.ForCustomer(context.Background(), "")
	require.Error(t, err)
}
