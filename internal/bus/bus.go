// Package bus implements the Event Bus (C5): a thin, self-describing
// pub/sub layer over the shared K/V store's channels, decoupling the
// Source Manager, Price Feed, Trade Executor, and Position Monitor from one
// another (§4.5).
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vortexsol/sniperbot/internal/kv"
)

// Channel names every publisher/subscriber in the system agrees on (§4.5).
const (
	ChannelRawDetections    = "pool:detection:raw"
	ChannelScoredDetections = "pool:detection:scored"
	ChannelOrderEvents      = "order:events"
	ChannelPositionEvents   = "position:events"
)

// Envelope is the self-describing wrapper every message on the bus carries,
// so a subscriber can route on Type without a priori knowledge of the
// channel's full schema history (§4.5).
type Envelope struct {
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	TimestampMs int64           `json:"timestamp_ms"`
	Source      string          `json:"source"`
}

// Bus publishes typed events onto kv.Store channels and exposes a
// dedup-friendly idempotency guard (§4.5: "a one-second idempotency window
// prevents double-processing on at-least-once delivery").
type Bus struct {
	store          kv.Store
	idempotencyTTL time.Duration
	idempotencyPfx string
}

// New constructs a Bus over store. idempotencyWindow is the de-duplication
// window for MarkSeen; the spec's default is 1 second.
func New(store kv.Store, idempotencyWindow time.Duration) *Bus {
	return &Bus{store: store, idempotencyTTL: idempotencyWindow, idempotencyPfx: "bus:seen:"}
}

// Publish marshals payload and publishes it on channel as an Envelope typed
// msgType, stamped with the current time and source.
func (b *Bus) Publish(ctx context.Context, channel, msgType string, source string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal payload: %w", err)
	}
	env := Envelope{Type: msgType, Data: data, TimestampMs: time.Now().UnixMilli(), Source: source}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}
	return b.store.Publish(ctx, channel, string(raw))
}

// Subscribe opens a subscription to channel. Callers must Close it when done.
func (b *Bus) Subscribe(ctx context.Context, channel string) (kv.Subscription, error) {
	return b.store.Subscribe(ctx, channel)
}

// Decode unmarshals a raw bus message into an Envelope, and out from its
// Data field.
func Decode(raw string, out any) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Envelope{}, fmt.Errorf("bus: decode envelope: %w", err)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, fmt.Errorf("bus: decode payload: %w", err)
		}
	}
	return env, nil
}

// MarkSeen records key as processed for the idempotency window, returning
// true if it was already seen (a duplicate delivery the caller should skip).
func (b *Bus) MarkSeen(ctx context.Context, key string) (alreadySeen bool, err error) {
	fullKey := b.idempotencyPfx + key
	_, err = b.store.Get(ctx, fullKey)
	if err == nil {
		return true, nil
	}
	if err != kv.ErrNotFound {
		return false, fmt.Errorf("bus: check idempotency: %w", err)
	}
	if err := b.store.Set(ctx, fullKey, "1", b.idempotencyTTL); err != nil {
		return false, fmt.Errorf("bus: mark idempotency: %w", err)
	}
	return false, nil
}
