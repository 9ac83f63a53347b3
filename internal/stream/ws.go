package stream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"

	"github.com/vortexsol/sniperbot/internal/detect"
	"github.com/vortexsol/sniperbot/internal/types"
)

// WSConfig governs one WSSource's reconnect behaviour (§4.3, §6 sniper.*).
type WSConfig struct {
	URL               string
	ProgramID         solana.PublicKey
	ReconnectBase     time.Duration // default 5s; §4.3: "starting at >=5s"
	ReconnectMax      time.Duration
	ReconnectMaxTries int // default 5
}

// subscribeRequest is the per-program transaction filter shape upstream
// providers accept (§4.3, §6): vote=false, failed=false,
// account_include=[program_id], empty accounts_data_slice.
type subscribeRequest struct {
	Transactions map[string]txFilter `json:"transactions"`
	Commitment   string              `json:"commitment"`
}

type txFilter struct {
	Vote            bool     `json:"vote"`
	Failed          bool     `json:"failed"`
	AccountInclude  []string `json:"account_include"`
	AccountExclude  []string `json:"account_exclude"`
	AccountRequired []string `json:"account_required"`
}

// wsUpdate is the normalized envelope a provider sends back: one of
// account|transaction|block|ping (§4.2 edge case: block updates wrap
// transactions and must be unwrapped transparently).
type wsUpdate struct {
	Account     *wsAccountUpdate `json:"account"`
	Transaction *wsAccountUpdate `json:"transaction"`
	Block       *wsBlockUpdate   `json:"block"`
	Ping        *struct{}        `json:"ping"`
}

type wsAccountUpdate struct {
	Pubkey    string `json:"pubkey"`
	Owner     string `json:"owner"`
	Data      string `json:"data"` // base64
	Slot      uint64 `json:"slot"`
	BlockTime int64  `json:"block_time"`
	Signature string `json:"signature"`
}

type wsBlockUpdate struct {
	Slot         uint64            `json:"slot"`
	BlockTime    int64             `json:"block_time"`
	Transactions []wsAccountUpdate `json:"transactions"`
}

// WSSource is a per-program Stream Source dialing a DEX's public websocket
// feed, grounded on the dial/read-loop pattern every pack predator-style
// bot uses for exchange feeds (reconnect on read error, sleep, redial).
type WSSource struct {
	*health
	dexSource types.Source
	cfg       WSConfig
}

// NewWSSource constructs a WSSource for dexSource (one of the enabled DEX
// programs), labeled for observability by the source's enum value.
func NewWSSource(dexSource types.Source, cfg WSConfig) *WSSource {
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = 5 * time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 60 * time.Second
	}
	if cfg.ReconnectMaxTries <= 0 {
		cfg.ReconnectMaxTries = 5
	}
	return &WSSource{health: newHealth(string(dexSource)), dexSource: dexSource, cfg: cfg}
}

var _ Source = (*WSSource)(nil)

func (s *WSSource) DEXSource() types.Source { return s.dexSource }

// Run dials cfg.URL, subscribes to cfg.ProgramID's transactions, and feeds
// every normalized update to handle until ctx is canceled or the reconnect
// budget is exhausted (§4.3 connection contract).
func (s *WSSource) Run(ctx context.Context, handle Handler) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.ReconnectBase
	bo.MaxInterval = s.cfg.ReconnectMax
	bo.MaxElapsedTime = 0 // we bound by attempt count ourselves, not elapsed time

	attempts := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.setStatus(StatusConnecting)
		conn, err := s.dial(ctx)
		if err != nil {
			attempts++
			s.recordReconnect()
			if attempts >= s.cfg.ReconnectMaxTries {
				s.setStatus(StatusFailed)
				return fmt.Errorf("stream %s: reconnect exhausted after %d attempts: %w", s.dexSource, attempts, err)
			}
			if !s.sleepBackoff(ctx, bo) {
				return ctx.Err()
			}
			continue
		}

		// Connected; reset the reconnect budget and read until failure.
		attempts = 0
		bo.Reset()
		err = s.readLoop(ctx, conn, handle)
		conn.Close()
		if err == nil {
			// Clean shutdown (ctx canceled mid read-loop).
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempts++
		s.recordReconnect()
		if attempts >= s.cfg.ReconnectMaxTries {
			s.setStatus(StatusFailed)
			return fmt.Errorf("stream %s: reconnect exhausted after %d attempts: %w", s.dexSource, attempts, err)
		}
		if !s.sleepBackoff(ctx, bo) {
			return ctx.Err()
		}
	}
}

func (s *WSSource) sleepBackoff(ctx context.Context, bo *backoff.ExponentialBackOff) bool {
	d := bo.NextBackOff()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *WSSource) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	req := subscribeRequest{
		Transactions: map[string]txFilter{
			string(s.dexSource): {
				Vote:           false,
				Failed:         false,
				AccountInclude: []string{s.cfg.ProgramID.String()},
			},
		},
		Commitment: "confirmed",
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.dexSource, err)
	}
	return conn, nil
}

// readLoop blocks reading messages until the connection errs or ctx is
// canceled; the first successful message flips status to HEALTHY (§4.3).
func (s *WSSource) readLoop(ctx context.Context, conn *websocket.Conn, handle Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	first := true
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if first {
			s.setStatus(StatusHealthy)
			first = false
		}

		var upd wsUpdate
		if err := json.Unmarshal(raw, &upd); err != nil {
			continue
		}
		s.dispatch(upd, handle)
	}
}

func (s *WSSource) dispatch(upd wsUpdate, handle Handler) {
	switch {
	case upd.Ping != nil:
		s.recordMessage("ping")
	case upd.Block != nil:
		s.recordMessage("block")
		for _, tx := range upd.Block.Transactions {
			s.emit(tx, handle)
		}
	case upd.Transaction != nil:
		s.recordMessage("transaction")
		s.emit(*upd.Transaction, handle)
	case upd.Account != nil:
		s.recordMessage("account")
		s.emit(*upd.Account, handle)
	}
}

func (s *WSSource) emit(u wsAccountUpdate, handle Handler) {
	owner, err := solana.PublicKeyFromBase58(u.Owner)
	if err != nil {
		return
	}
	pool, err := solana.PublicKeyFromBase58(u.Pubkey)
	if err != nil {
		return
	}
	data, err := base64.StdEncoding.DecodeString(u.Data)
	if err != nil {
		return
	}
	handle(detect.AccountUpdate{
		PoolAddress: pool,
		Owner:       owner,
		Data:        data,
		Slot:        u.Slot,
		BlockTime:   u.BlockTime,
		Signature:   u.Signature,
	})
}
