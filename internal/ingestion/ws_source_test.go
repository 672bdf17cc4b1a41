package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func tickerMessage(product, price, ts string) string {
	return fmt.Sprintf(`{"channel":"ticker","timestamp":%q,"sequence_num":1,"events":[{"type":"update","tickers":[{"type":"ticker","product_id":%q,"price":%q}]}]}`,
		ts, product, price)
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testWSConfig(endpoint string) WSConfig {
	cfg := DefaultWSConfig("BTC-GBP")
	cfg.Endpoint = endpoint
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 50 * time.Millisecond
	cfg.ReadTimeout = 5 * time.Second
	return cfg
}

func nextWithin(t *testing.T, src *WSSource, d time.Duration) domain.Tick {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	tick, err := src.Next(ctx)
	require.NoError(t, err)
	return tick
}

func TestWSSource_StreamsAndReconnects(t *testing.T) {
	var conns atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()
		n := conns.Add(1)

		// Read subscribe request
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Type != "subscribe" || req.Channel != "ticker" || len(req.ProductIDs) != 1 || req.ProductIDs[0] != "BTC-GBP" {
			t.Errorf("unexpected subscribe request: %+v", req)
		}

		if n == 1 {
			msgs := []string{
				`{"channel":"subscriptions","events":[{"subscriptions":{"ticker":["BTC-GBP"]}}]}`,
				tickerMessage("BTC-GBP", "100.5", "2024-01-01T00:00:00.123Z"),
				`{"type":"error","message":"rate limited"}`,
				`not json`,
				tickerMessage("ETH-GBP", "2000", "2024-01-01T00:00:01Z"),
				tickerMessage("BTC-GBP", "101", "2024-01-01T00:00:02Z"),
			}
			for _, m := range msgs {
				if err := c.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
					return
				}
			}
			// Drop the connection to force a reconnect.
			return
		}

		if err := c.WriteMessage(websocket.TextMessage, []byte(tickerMessage("BTC-GBP", "102", ""))); err != nil {
			return
		}

		// Keep connection open
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	src := NewWSSource(testWSConfig(wsURL(server)), zaptest.NewLogger(t), metrics)
	require.NoError(t, src.Start(context.Background()))
	defer src.Close()

	first := nextWithin(t, src, 5*time.Second)
	assert.Equal(t, domain.Text("2024-01-01T00:00:00.123Z"), first.Time)
	assert.Equal(t, 100.5, first.Price)

	second := nextWithin(t, src, 5*time.Second)
	assert.Equal(t, 101.0, second.Price)

	third := nextWithin(t, src, 5*time.Second)
	assert.Equal(t, 102.0, third.Price)
	_, numeric := third.Time.Numeric()
	assert.True(t, numeric, "missing server timestamp falls back to receive time")

	assert.Equal(t, 1, src.Reconnects())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FeedReconnects))
	assert.GreaterOrEqual(t, int(conns.Load()), 2)

	require.NoError(t, src.Close())
	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestWSSource_StartFails(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := wsURL(server)
	server.Close()

	src := NewWSSource(testWSConfig(endpoint), nil, nil)
	err := src.Start(context.Background())
	assert.Error(t, err)

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, src.Close())
}

func TestWSSource_CloseBeforeStart(t *testing.T) {
	src := NewWSSource(testWSConfig("ws://127.0.0.1:1"), nil, nil)
	require.NoError(t, src.Close())

	assert.Error(t, src.Start(context.Background()))
	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestWSSource_ContextCancelStopsFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	src := NewWSSource(testWSConfig(wsURL(server)), nil, nil)
	require.NoError(t, src.Start(ctx))

	cancel()

	readCtx, readCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer readCancel()
	_, err := src.Next(readCtx)
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, src.Close())
}

func TestWSSource_NextHonorsContext(t *testing.T) {
	src := NewWSSource(testWSConfig("ws://unused"), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWSSource_ParseMessage(t *testing.T) {
	src := NewWSSource(testWSConfig("ws://unused"), nil, nil)
	fixed := time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)
	src.now = func() time.Time { return fixed }

	multi := `{"channel":"ticker","timestamp":"2024-01-01T00:00:00Z","events":[{"type":"update","tickers":[` +
		`{"product_id":"ETH-GBP","price":"2000"},{"product_id":"BTC-GBP","price":"30000.01"}]}]}`

	tests := []struct {
		name    string
		message string
		ok      bool
		want    domain.Tick
	}{
		{"matching product", multi, true, domain.Tick{Time: domain.Text("2024-01-01T00:00:00Z"), Price: 30000.01}},
		{"no timestamp", tickerMessage("BTC-GBP", "1.5", ""), true, domain.Tick{Time: domain.Millis(fixed.UnixMilli()), Price: 1.5}},
		{"bad timestamp", tickerMessage("BTC-GBP", "1.5", "yesterday"), true, domain.Tick{Time: domain.Millis(fixed.UnixMilli()), Price: 1.5}},
		{"other product", tickerMessage("ETH-GBP", "1.5", ""), false, domain.Tick{}},
		{"bad price", tickerMessage("BTC-GBP", "", ""), false, domain.Tick{}},
		{"heartbeat", `{"channel":"heartbeats","events":[]}`, false, domain.Tick{}},
		{"error", `{"type":"error","message":"boom"}`, false, domain.Tick{}},
		{"garbage", `{`, false, domain.Tick{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := src.parseMessage([]byte(tt.message))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
