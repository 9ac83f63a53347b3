package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vortexsol/sniperbot/internal/router"
	"github.com/vortexsol/sniperbot/internal/types"
)

// RouterSource fetches a price via the DEX router's best-quote capability
// (§4.6: "fallback: routing API").
type RouterSource struct {
	r router.Router
}

// NewRouterSource wraps r as a price Source.
func NewRouterSource(r router.Router) *RouterSource {
	return &RouterSource{r: r}
}

func (s *RouterSource) Name() types.PriceSourceKind { return types.PriceSourceJupiter }

func (s *RouterSource) FetchPrice(ctx context.Context, mint string) (float64, error) {
	return s.r.GetTokenPrice(ctx, mint)
}

// DexscreenerSource fetches a price from an HTTP price-aggregator API
// (§4.6: "primary: aggregator-style DEX price API"), named for the
// best-known public instance of that capability.
type DexscreenerSource struct {
	baseURL string
	client  *http.Client
}

// NewDexscreenerSource builds a DexscreenerSource against baseURL (e.g.
// "https://api.dexscreener.com/latest/dex/tokens"), with a 5s per-call
// timeout (§4.6: "Fetch primary with 5-s timeout").
func NewDexscreenerSource(baseURL string) *DexscreenerSource {
	return &DexscreenerSource{baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Second}}
}

type dexscreenerResponse struct {
	Pairs []struct {
		PriceNative string `json:"priceNative"`
	} `json:"pairs"`
}

func (s *DexscreenerSource) Name() types.PriceSourceKind { return types.PriceSourceDexscreener }

func (s *DexscreenerSource) FetchPrice(ctx context.Context, mint string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+mint, nil)
	if err != nil {
		return 0, fmt.Errorf("dexscreener: build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("dexscreener: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("dexscreener: status %d", resp.StatusCode)
	}

	var out dexscreenerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("dexscreener: decode response: %w", err)
	}
	if len(out.Pairs) == 0 {
		return 0, fmt.Errorf("dexscreener: no pairs for %s", mint)
	}

	var price float64
	if _, err := fmt.Sscanf(out.Pairs[0].PriceNative, "%f", &price); err != nil {
		return 0, fmt.Errorf("dexscreener: parse price: %w", err)
	}
	return price, nil
}

var (
	_ Source = (*RouterSource)(nil)
	_ Source = (*DexscreenerSource)(nil)
)
