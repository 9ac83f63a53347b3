package pricefeed

import (
	"encoding/json"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/vortexsol/sniperbot/internal/types"
)

// jitter returns d scaled by a random factor in [0.9, 1.1] (§4.6: "+-10%
// jitter").
func jitter(d time.Duration) time.Duration {
	factor := 0.9 + rand.Float64()*0.2
	return time.Duration(float64(d) * factor)
}

type wireSample struct {
	TokenMint  string    `json:"token_mint"`
	PriceInSOL float64   `json:"price_in_sol"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
}

func encodeSample(s types.PriceSample) (string, error) {
	raw, err := json.Marshal(wireSample{
		TokenMint:  s.TokenMint,
		PriceInSOL: s.PriceInSOL,
		Timestamp:  s.Timestamp,
		Source:     string(s.Source),
		Confidence: s.Confidence,
	})
	return string(raw), err
}

func decodeSample(raw string) (types.PriceSample, error) {
	var w wireSample
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return types.PriceSample{}, err
	}
	return types.PriceSample{
		TokenMint:  w.TokenMint,
		PriceInSOL: w.PriceInSOL,
		Timestamp:  w.Timestamp,
		Source:     types.PriceSourceKind(w.Source),
		Confidence: w.Confidence,
	}, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultRate(v, def rate.Limit) rate.Limit {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultUint32(v, def uint32) uint32 {
	if v == 0 {
		return def
	}
	return v
}
