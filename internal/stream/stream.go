// Package stream implements Stream Sources (C3): one long-lived
// subscription per upstream provider, each producing a sequence of raw
// parser inputs for the Source Manager (§4.3). Two transports exist —
// per-program websocket (ws.go) and unified gRPC (geyser/) — unified behind
// the single Source interface here, resolving the spec's open question
// about the two overlapping dispatch layers: whichever transport a source
// uses, it is consumed identically by anything downstream.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vortexsol/sniperbot/internal/detect"
	"github.com/vortexsol/sniperbot/internal/types"
)

// Status is a stream source's connection health (§4.3 connection contract).
type Status string

const (
	StatusConnecting Status = "CONNECTING"
	StatusHealthy    Status = "HEALTHY"
	StatusFailed     Status = "FAILED"
)

// Handler receives one account update as it arrives. It must not block the
// source's read loop for long; the Source Manager's own handling is
// synchronous and must not perform I/O (§5).
type Handler func(detect.AccountUpdate)

// Source owns a single subscription to an upstream provider (§4.3).
// Implementations must honor ctx cancellation on every exit path: abort the
// in-flight wait, close the subscription, and release any reconnect timer.
type Source interface {
	// DEXSource identifies which DEX program this source carries updates
	// for, so the Source Manager can filter by sniper.enabled_dexs.
	DEXSource() types.Source
	// Run blocks until ctx is canceled or reconnection is exhausted,
	// invoking handle for every account update observed.
	Run(ctx context.Context, handle Handler) error
	// Status reports the current connection health.
	Status() Status
}

var (
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sniper_stream_messages_total",
		Help: "Messages received per stream source and message type.",
	}, []string{"source", "message_type"})

	reconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sniper_stream_reconnects_total",
		Help: "Reconnect attempts per stream source.",
	}, []string{"source"})

	latencyHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sniper_stream_message_latency_seconds",
		Help:    "Observed inter-message latency per stream source.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"source"})
)

// maxLatencySamples bounds the in-memory latency ring buffer (§4.3: "bounded
// queue of at most the last 100 latency samples").
const maxLatencySamples = 100

// health is the shared connection-state and observability bookkeeping every
// Source implementation embeds, mirroring the teacher's pattern of a small
// embedded struct carrying cross-cutting state (pkg/sol.Client's rate
// limiter field) rather than free functions.
type health struct {
	mu          sync.Mutex
	status      Status
	lastMsgAt   time.Time
	latencies   []time.Duration
	sourceLabel string
}

func newHealth(sourceLabel string) *health {
	return &health{status: StatusConnecting, sourceLabel: sourceLabel}
}

func (h *health) setStatus(s Status) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
}

func (h *health) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// recordMessage stamps observability counters and the latency ring buffer
// for one observed message of msgType.
func (h *health) recordMessage(msgType string) {
	now := time.Now()
	h.mu.Lock()
	if !h.lastMsgAt.IsZero() {
		d := now.Sub(h.lastMsgAt)
		h.latencies = append(h.latencies, d)
		if len(h.latencies) > maxLatencySamples {
			h.latencies = h.latencies[len(h.latencies)-maxLatencySamples:]
		}
		latencyHistogram.WithLabelValues(h.sourceLabel).Observe(d.Seconds())
	}
	h.lastMsgAt = now
	h.mu.Unlock()

	messagesTotal.WithLabelValues(h.sourceLabel, msgType).Inc()
}

func (h *health) recordReconnect() {
	reconnectsTotal.WithLabelValues(h.sourceLabel).Inc()
}

// LatencySamples returns a copy of the bounded latency ring buffer, for
// diagnostics/health reporting.
func (h *health) LatencySamples() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]time.Duration, len(h.latencies))
	copy(out, h.latencies)
	return out
}
