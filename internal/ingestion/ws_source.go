package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/observability"
)

// DefaultFeedEndpoint is the public market data websocket.
const DefaultFeedEndpoint = "wss://advanced-trade-ws.coinbase.com"

// ErrSourceClosed is returned by Next after Close.
var ErrSourceClosed = errors.New("source closed")

// WSConfig configures the live ticker feed.
type WSConfig struct {
	Endpoint string
	Pair     string
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration
	// BufferSize is the number of parsed ticks held for Next.
	BufferSize int
}

// DefaultWSConfig returns default feed configuration for pair.
func DefaultWSConfig(pair string) WSConfig {
	return WSConfig{
		Endpoint:          DefaultFeedEndpoint,
		Pair:              pair,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		BufferSize:        1024,
	}
}

// subscribeRequest subscribes to one channel for a list of products.
type subscribeRequest struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channel    string   `json:"channel"`
}

// feedEnvelope is the outer shape of every feed message.
type feedEnvelope struct {
	Channel     string      `json:"channel"`
	Type        string      `json:"type"`
	Message     string      `json:"message"`
	Timestamp   string      `json:"timestamp"`
	SequenceNum int64       `json:"sequence_num"`
	Events      []feedEvent `json:"events"`
}

type feedEvent struct {
	Type    string       `json:"type"`
	Tickers []feedTicker `json:"tickers"`
}

type feedTicker struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
}

// WSSource streams ticker prices for one pair. It reconnects with
// exponential backoff until its context is cancelled or it is closed.
type WSSource struct {
	cfg     WSConfig
	log     *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time

	ticks  chan domain.Tick
	cancel context.CancelFunc
	done   chan struct{}

	startOnce sync.Once
	closeOnce sync.Once

	mu         sync.Mutex
	conn       *websocket.Conn
	reconnects int
}

// NewWSSource creates an unstarted feed source.
func NewWSSource(cfg WSConfig, logger *zap.Logger, metrics *observability.Metrics) *WSSource {
	def := DefaultWSConfig(cfg.Pair)
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = max(def.MaxReconnectDelay, cfg.ReconnectDelay)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSSource{
		cfg:     cfg,
		log:     logger.With(zap.String("component", "ws_feed"), zap.String("pair", cfg.Pair)),
		metrics: metrics,
		now:     time.Now,
		ticks:   make(chan domain.Tick, cfg.BufferSize),
		done:    make(chan struct{}),
	}
}

// Start dials the feed and subscribes. The first connection must succeed;
// later failures are retried in the background until ctx is cancelled.
func (s *WSSource) Start(ctx context.Context) error {
	err := errors.New("already started")
	s.startOnce.Do(func() {
		conn, dialErr := s.connect(ctx)
		if dialErr != nil {
			err = dialErr
			close(s.done)
			close(s.ticks)
			return
		}
		err = nil

		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		context.AfterFunc(runCtx, s.closeConn)
		go s.run(runCtx, conn)
	})
	return err
}

// Next blocks until a tick arrives. It returns io.EOF once the feed has
// stopped and every buffered tick has been consumed.
func (s *WSSource) Next(ctx context.Context) (domain.Tick, error) {
	select {
	case <-ctx.Done():
		return domain.Tick{}, ctx.Err()
	case t, ok := <-s.ticks:
		if !ok {
			return domain.Tick{}, io.EOF
		}
		return t, nil
	}
}

// Reconnects returns how many times the feed has reconnected.
func (s *WSSource) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

// Close stops the feed and waits for the reader to exit.
func (s *WSSource) Close() error {
	s.closeOnce.Do(func() {
		s.startOnce.Do(func() {
			close(s.done)
			close(s.ticks)
		})
		if s.cancel != nil {
			s.cancel()
		}
	})
	<-s.done
	return nil
}

// closeConn sends a close frame and closes the current connection.
func (s *WSSource) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
		s.conn = nil
	}
}

// connect establishes the websocket connection and subscribes to the ticker.
func (s *WSSource) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, s.cfg.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	req := subscribeRequest{
		Type:       "subscribe",
		ProductIDs: []string{s.cfg.Pair},
		Channel:    "ticker",
	}
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.log.Info("connected to price feed", zap.String("endpoint", s.cfg.Endpoint))
	return conn, nil
}

// run reads from conn and reconnects on failure until ctx ends.
func (s *WSSource) run(ctx context.Context, conn *websocket.Conn) {
	defer close(s.done)
	defer close(s.ticks)

	delay := s.cfg.ReconnectDelay
	for {
		err := s.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("price feed disconnected", zap.Error(err))

		for {
			s.log.Info("reconnecting to price feed", zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			// Exponential backoff
			delay *= 2
			if delay > s.cfg.MaxReconnectDelay {
				delay = s.cfg.MaxReconnectDelay
			}

			conn, err = s.connect(ctx)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			s.metrics.RecordSourceError("ws")
			s.log.Warn("reconnect failed", zap.Error(err))
		}

		if ctx.Err() != nil {
			conn.Close()
			return
		}

		s.mu.Lock()
		s.reconnects++
		s.mu.Unlock()
		s.metrics.RecordReconnect()
		delay = s.cfg.ReconnectDelay
	}
}

// readLoop reads messages until the connection fails or ctx ends.
func (s *WSSource) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		tick, ok := s.parseMessage(message)
		if !ok {
			continue
		}

		select {
		case s.ticks <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseMessage extracts the pair's ticker price from a feed message.
func (s *WSSource) parseMessage(message []byte) (domain.Tick, bool) {
	var env feedEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		s.log.Debug("ignoring unparsable feed message", zap.Error(err))
		return domain.Tick{}, false
	}

	if env.Type == "error" {
		s.metrics.RecordSourceError("ws")
		s.log.Warn("price feed error", zap.String("message", env.Message))
		return domain.Tick{}, false
	}
	if env.Channel != "ticker" {
		return domain.Tick{}, false
	}

	for _, ev := range env.Events {
		for _, tk := range ev.Tickers {
			if tk.ProductID != "" && tk.ProductID != s.cfg.Pair {
				continue
			}
			price, err := strconv.ParseFloat(tk.Price, 64)
			if err != nil {
				s.log.Debug("ignoring ticker without price", zap.String("price", tk.Price))
				return domain.Tick{}, false
			}
			return domain.Tick{Time: s.tickTime(env.Timestamp), Price: price}, true
		}
	}
	return domain.Tick{}, false
}

// tickTime prefers the server timestamp and falls back to the receive time.
func (s *WSSource) tickTime(serverTs string) domain.Timestamp {
	now := s.now()
	if serverTs != "" {
		if t, err := time.Parse(time.RFC3339Nano, serverTs); err == nil {
			s.metrics.RecordFeedMessage(now.Sub(t).Seconds())
			return domain.Text(serverTs)
		}
	}
	return domain.Millis(now.UnixMilli())
}
