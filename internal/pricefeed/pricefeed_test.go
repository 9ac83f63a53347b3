package pricefeed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexsol/sniperbot/internal/kv"
	"github.com/vortexsol/sniperbot/internal/types"
)

type fakeSource struct {
	name    types.PriceSourceKind
	price   float64
	failN   int32 // fail this many calls before succeeding
	calls   int32
	failAll bool
}

func (f *fakeSource) Name() types.PriceSourceKind { return f.name }

func (f *fakeSource) FetchPrice(ctx context.Context, mint string) (float64, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.failAll || n <= f.failN {
		return 0, errors.New("fake source failure")
	}
	return f.price, nil
}

func newTestFeed(t *testing.T, primary, fallback Source) *Feed {
	f, err := New(Config{
		Tier1TTL:       20 * time.Millisecond,
		Tier2TTL:       time.Minute,
		RetryAttempts:  2,
		BaseRetryDelay: time.Millisecond,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		BreakerTimeout:   50 * time.Millisecond,
	}, kv.NewMemoryStore(), primary, fallback)
	require.NoError(t, err)
	return f
}

func TestGetPriceHitsTier1OnSecondCall(t *testing.T) {
	primary := &fakeSource{name: types.PriceSourceDexscreener, price: 1.5}
	f := newTestFeed(t, primary, nil)

	s1, err := f.GetPrice(context.Background(), "MINT", false)
	require.NoError(t, err)
	assert.Equal(t, 1.5, s1.PriceInSOL)

	s2, err := f.GetPrice(context.Background(), "MINT", false)
	require.NoError(t, err)
	assert.Equal(t, types.PriceSourceMemoryCache, s2.Source)
	assert.EqualValues(t, 1, primary.calls, "second GetPrice must be served from tier1, not re-fetched")
}

func TestGetPriceFallsBackWhenPrimaryFails(t *testing.T) {
	primary := &fakeSource{name: types.PriceSourceDexscreener, failAll: true}
	fallback := &fakeSource{name: types.PriceSourceJupiter, price: 2.2}
	f := newTestFeed(t, primary, fallback)

	s, err := f.GetPrice(context.Background(), "MINT", false)
	require.NoError(t, err)
	assert.Equal(t, 2.2, s.PriceInSOL)
	assert.Equal(t, types.PriceSourceJupiter, s.Source)
}

func TestInvalidateCacheWipesBothTiers(t *testing.T) {
	primary := &fakeSource{name: types.PriceSourceDexscreener, price: 1.0}
	f := newTestFeed(t, primary, nil)

	_, err := f.GetPrice(context.Background(), "MINT", false)
	require.NoError(t, err)

	require.NoError(t, f.InvalidateCache(context.Background(), "MINT"))

	_, err = f.GetPrice(context.Background(), "MINT", false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, primary.calls, "a fresh fetch must occur after invalidation")
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	primary := &fakeSource{name: types.PriceSourceDexscreener, failAll: true}
	fallback := &fakeSource{name: types.PriceSourceJupiter, failAll: true}
	f := newTestFeed(t, primary, fallback)

	for i := 0; i < 5; i++ {
		_, err := f.GetPrice(context.Background(), "MINT", true)
		require.Error(t, err)
	}

	_, err := f.GetPrice(context.Background(), "MINT", true)
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
}

func TestRetryEventuallySucceeds(t *testing.T) {
	primary := &fakeSource{name: types.PriceSourceDexscreener, price: 3.3, failN: 1}
	f := newTestFeed(t, primary, nil)

	s, err := f.GetPrice(context.Background(), "MINT", true)
	require.NoError(t, err)
	assert.Equal(t, 3.3, s.PriceInSOL)
}
