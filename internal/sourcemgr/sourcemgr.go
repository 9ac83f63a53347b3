// Package sourcemgr implements the Source Manager (C4): it converges
// concurrent per-source stream detections into an ordered sequence of
// Scored Pool Detections — deduplicating within a window, scoring by
// source reputation and arrival order, and applying the Meteora
// anti-sniper safety filter (§4.4).
package sourcemgr

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/vortexsol/sniperbot/internal/bus"
	"github.com/vortexsol/sniperbot/internal/config"
	"github.com/vortexsol/sniperbot/internal/types"
)

// reputation is the per-source trust weight feeding the priority score
// formula (§4.4 step 2). PumpSwap inherits Pump.fun's weight: it is the
// same launch's post-migration venue, not an independently vetted DEX.
var reputation = map[types.Source]float64{
	types.SourceRaydiumV4:     95,
	types.SourceRaydiumCLMM:   90,
	types.SourceOrcaWhirlpool: 85,
	types.SourceMeteora:       80,
	types.SourcePumpFun:       60,
	types.SourcePumpSwap:      60,
}

type detectionRecord struct {
	source      types.Source
	poolAddress string
	detectedAt  time.Time
}

// Manager is the process-wide Source Manager singleton (§9: "model as an
// explicitly-constructed service with an init/shutdown lifecycle").
type Manager struct {
	mu     sync.Mutex
	recent map[string][]detectionRecord // token mint -> recent sightings

	window  time.Duration
	meteora config.MeteoraConfig

	bus *bus.Bus

	stopPrune context.CancelFunc
	wg        sync.WaitGroup
}

// New constructs a Manager. duplicateWindow is the dedup window (default
// 5s); meteoraCfg governs the anti-sniper admission filter; b is the Event
// Bus the Manager publishes scored detections onto.
func New(duplicateWindow time.Duration, meteoraCfg config.MeteoraConfig, b *bus.Bus) *Manager {
	return &Manager{
		recent:  make(map[string][]detectionRecord),
		window:  duplicateWindow,
		meteora: meteoraCfg,
		bus:     b,
	}
}

// Start launches the 1-second cleanup timer that prunes stale dedup
// entries (§4.4 step 1, §5: "the 1-second cleanup timer is its own task").
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.stopPrune = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.prune(time.Now())
			}
		}
	}()
}

// Shutdown stops the cleanup timer and waits for it to exit.
func (m *Manager) Shutdown() {
	if m.stopPrune != nil {
		m.stopPrune()
	}
	m.wg.Wait()
}

func (m *Manager) prune(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for mint, records := range m.recent {
		kept := records[:0:0]
		for _, r := range records {
			if now.Sub(r.detectedAt) < m.window {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(m.recent, mint)
		} else {
			m.recent[mint] = kept
		}
	}
}

// Handle processes one raw detection synchronously (§5: "the detection
// callback is synchronous with respect to the source thread; filtering and
// scoring must not perform I/O"), returning the Scored Pool Detection, or
// nil if the Meteora safety filter rejected it.
func (m *Manager) Handle(raw *types.RawPoolDetection) *types.ScoredPoolDetection {
	now := raw.DetectedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	isFirst, alsoOn := m.recordAndClassify(raw, now)

	score := priorityScore(raw.Source, isFirst)

	scored := &types.ScoredPoolDetection{
		RawPoolDetection: *raw,
		PriorityScore:    score,
		IsFirstDetection: isFirst,
		AlsoDetectedOn:   alsoOn,
		IsSafeToSnipe:    true,
	}

	if raw.Source == types.SourceMeteora {
		if !m.admitMeteora(scored) {
			return nil
		}
	}

	return scored
}

// recordAndClassify records raw's sighting against the dedup window and
// reports whether it is the first sighting of its token mint, plus the
// other sources that also detected it within the window (§4.4 step 1).
func (m *Manager) recordAndClassify(raw *types.RawPoolDetection, now time.Time) (bool, []types.Source) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.recent[raw.TokenMintA]
	var alsoOn []types.Source
	inWindow := existing[:0:0]
	for _, r := range existing {
		if now.Sub(r.detectedAt) < m.window {
			inWindow = append(inWindow, r)
			if r.source != raw.Source {
				alsoOn = append(alsoOn, r.source)
			}
		}
	}
	isFirst := len(inWindow) == 0

	inWindow = append(inWindow, detectionRecord{source: raw.Source, poolAddress: raw.PoolAddress, detectedAt: now})
	m.recent[raw.TokenMintA] = inWindow

	return isFirst, alsoOn
}

// priorityScore implements §4.4 step 2's formula exactly.
func priorityScore(source types.Source, isFirst bool) int {
	rep := reputation[source] // unknown sources score 0 reputation, not a panic
	firstBonus := 15.0
	timing := 20.0
	if isFirst {
		firstBonus = 30.0
		timing = 30.0
	}
	raw := rep*0.4 + firstBonus + timing
	return int(math.Round(clamp(raw, 0, 100)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PublishScored publishes a Scored Pool Detection on the bus's scored
// channel, subject to the bus's own idempotency window, the window bus.New
// was given (§4.5).
func (m *Manager) PublishScored(ctx context.Context, scored *types.ScoredPoolDetection) error {
	seen, err := m.bus.MarkSeen(ctx, scored.Signature)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}
	return m.bus.Publish(ctx, bus.ChannelScoredDetections, "scored_detection", string(scored.Source), scored)
}
