package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexsol/sniperbot/internal/detect"
	"github.com/vortexsol/sniperbot/internal/types"
)

var upgrader = websocket.Upgrader{}

func TestWSSourceEmitsAccountUpdates(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var req subscribeRequest
		require.NoError(t, conn.ReadJSON(&req))

		require.NoError(t, conn.WriteJSON(map[string]any{
			"account": map[string]any{
				"pubkey":     pool.String(),
				"owner":      owner.String(),
				"data":       "AAA=",
				"slot":       42,
				"block_time": 1000,
				"signature":  "sig1",
			},
		}))
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	src := NewWSSource(types.SourceRaydiumV4, WSConfig{URL: url, ProgramID: owner})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var (
		mu  sync.Mutex
		got *detect.AccountUpdate
	)
	done := make(chan struct{})
	go func() {
		_ = src.Run(ctx, func(u detect.AccountUpdate) {
			mu.Lock()
			cp := u
			got = &cp
			mu.Unlock()
		})
		close(done)
	}()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, got)
	assert.Equal(t, pool, got.PoolAddress)
	assert.Equal(t, owner, got.Owner)
	assert.Equal(t, "sig1", got.Signature)
	assert.Equal(t, StatusHealthy, src.Status())
}

func TestWSSourceFailsAfterReconnectBudgetExhausted(t *testing.T) {
	src := NewWSSource(types.SourceMeteora, WSConfig{
		URL:               "ws://127.0.0.1:1/no-such-server",
		ReconnectBase:     5 * time.Millisecond,
		ReconnectMax:      10 * time.Millisecond,
		ReconnectMaxTries: 2,
	})

	err := src.Run(context.Background(), func(detect.AccountUpdate) {})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, src.Status())
}
