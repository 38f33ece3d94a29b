// Package stream maintains one resilient websocket connection delivering
// per-symbol telemetry snapshots and exposes the latest-known snapshot per
// subscribed symbol.
package stream

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mmconsole/internal/domain"
)

const (
	// maxReconnectAttempts caps automatic reconnects per subscription.
	// After the ceiling is hit the client stays closed until Configure
	// is called again.
	maxReconnectAttempts = 10

	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second

	messageTypeMetrics = "metrics"
)

// Client owns a single streaming connection scoped to a fixed symbol set.
// The transport's subscription is set at connect time, so any material
// change to the set tears the connection down and opens a new one.
type Client struct {
	wsURL  string
	token  string
	dialer *websocket.Dialer
	logger *zap.Logger

	mu         sync.Mutex
	symbols    []string
	conn       *websocket.Conn
	state      domain.ConnState
	snapshots  map[string]domain.SymbolSnapshot
	retry      *backoff.Backoff
	retryTimer *time.Timer
	gen        uint64
	disposed   bool
}

// New creates a stream client. It stays idle until Configure is called
// with a non-empty symbol set.
func New(wsURL, token string, logger *zap.Logger) *Client {
	return &Client{
		wsURL:  wsURL,
		token:  token,
		dialer: websocket.DefaultDialer,
		logger: logger,
		state:  domain.ConnState{Phase: domain.ConnIdle},
		retry: &backoff.Backoff{
			Min:    minReconnectDelay,
			Max:    maxReconnectDelay,
			Factor: 2,
		},
		snapshots: make(map[string]domain.SymbolSnapshot),
	}
}

// Configure declares the desired subscription. An empty set drives the
// client to idle. A set materially different from the current one (compared
// as sets, order ignored) rebuilds the connection. Re-issuing an unchanged
// set is a no-op unless the client has exhausted its reconnect attempts, in
// which case the attempt counter resets and the cycle restarts.
func (c *Client) Configure(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}

	if len(symbols) == 0 {
		c.symbols = nil
		c.teardownLocked()
		c.snapshots = make(map[string]domain.SymbolSnapshot)
		c.state = domain.ConnState{Phase: domain.ConnIdle}
		return
	}

	same := sameSymbolSet(symbols, c.symbols)
	terminal := c.state.Phase == domain.ConnClosed && c.retryTimer == nil
	if same && !terminal && c.state.Phase != domain.ConnIdle {
		return
	}

	c.symbols = append([]string(nil), symbols...)
	c.teardownLocked()
	c.purgeUnsubscribedLocked()
	c.retry.Reset()
	c.connectLocked()
}

// Observe returns a copy of the latest snapshot per subscribed symbol.
// Symbols without a snapshot yet are simply absent.
func (c *Client) Observe() map[string]domain.SymbolSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]domain.SymbolSnapshot, len(c.snapshots))
	for sym, snap := range c.snapshots {
		out[sym] = snap
	}
	return out
}

// State returns the current connection state.
func (c *Client) State() domain.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dispose tears the client down deterministically: the connection is closed
// and any scheduled reconnect is cancelled. Safe to call from any state; a
// disposed client never resurrects a connection.
func (c *Client) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	c.disposed = true
	c.teardownLocked()
	c.state = domain.ConnState{Phase: domain.ConnIdle}
}

// teardownLocked invalidates the current connection generation, cancels any
// scheduled reconnect and closes the socket. Read loops of the old
// generation notice the bump and exit without side effects.
func (c *Client) teardownLocked() {
	c.gen++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) purgeUnsubscribedLocked() {
	keep := make(map[string]struct{}, len(c.symbols))
	for _, sym := range c.symbols {
		keep[sym] = struct{}{}
	}
	for sym := range c.snapshots {
		if _, ok := keep[sym]; !ok {
			delete(c.snapshots, sym)
		}
	}
}

func (c *Client) connectLocked() {
	c.gen++
	gen := c.gen
	c.state = domain.ConnState{Phase: domain.ConnConnecting}
	symbols := append([]string(nil), c.symbols...)

	go c.dial(gen, symbols)
}

func (c *Client) dial(gen uint64, symbols []string) {
	endpoint := c.wsURL + "?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, resp, err := c.dialer.Dial(endpoint, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	if c.disposed || gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		c.logger.Warn("stream dial failed",
			zap.Strings("symbols", symbols),
			zap.Error(err))
		c.scheduleReconnectLocked(websocket.CloseAbnormalClosure)
		c.mu.Unlock()
		return
	}

	// open acknowledgment: a connection survived the handshake, so future
	// failures back off from attempt zero again
	c.conn = conn
	c.state = domain.ConnState{Phase: domain.ConnOpen}
	c.retry.Reset()
	c.logger.Info("stream connected", zap.Strings("symbols", symbols))
	c.mu.Unlock()

	go c.readLoop(gen, conn)
}

func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code = closeErr.Code
			}

			c.mu.Lock()
			if !c.disposed && gen == c.gen {
				c.conn = nil
				c.logger.Warn("stream closed", zap.Int("code", code), zap.Error(err))
				c.scheduleReconnectLocked(code)
			}
			c.mu.Unlock()
			return
		}

		c.handleMessage(gen, payload)
	}
}

// handleMessage applies one inbound frame. Only frames tagged as metrics
// snapshots for a subscribed symbol update the map; malformed or unknown
// frames are dropped without touching any symbol's state.
func (c *Client) handleMessage(gen uint64, payload []byte) {
	var env struct {
		Type   string           `json:"type"`
		Symbol string           `json:"symbol"`
		State  domain.Freshness `json:"state"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return
	}
	if env.Type != messageTypeMetrics || env.Symbol == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed || gen != c.gen {
		return
	}
	if !containsSymbol(c.symbols, env.Symbol) {
		return
	}

	freshness := env.State
	if freshness == "" {
		freshness = domain.FreshnessLive
	}
	c.snapshots[env.Symbol] = domain.SymbolSnapshot{
		Symbol:     env.Symbol,
		Freshness:  freshness,
		Payload:    append(json.RawMessage(nil), payload...),
		ReceivedAt: time.Now(),
	}
}

// scheduleReconnectLocked records the close and, while the attempt counter
// is below the ceiling, arms a timer for the next connect with delay
// min(1s * 2^attempt, 30s). Past the ceiling the client stays closed until
// the next Configure call.
func (c *Client) scheduleReconnectLocked(code int) {
	attempt := int(c.retry.Attempt())
	c.state = domain.ConnState{Phase: domain.ConnClosed, CloseCode: code, Attempt: attempt}

	if attempt >= maxReconnectAttempts {
		c.logger.Error("stream reconnect attempts exhausted",
			zap.Int("attempts", attempt))
		return
	}

	delay := c.retry.Duration()
	gen := c.gen
	c.logger.Info("stream reconnect scheduled",
		zap.Duration("delay", delay),
		zap.Int("attempt", attempt))

	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.disposed || gen != c.gen {
			return
		}
		c.retryTimer = nil
		c.connectLocked()
	})
}

func sameSymbolSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, sym := range a {
		set[sym] = struct{}{}
	}
	for _, sym := range b {
		if _, ok := set[sym]; !ok {
			return false
		}
	}
	return true
}

func containsSymbol(symbols []string, symbol string) bool {
	for _, sym := range symbols {
		if sym == symbol {
			return true
		}
	}
	return false
}
