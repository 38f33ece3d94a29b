package stream

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"mmconsole/internal/domain"
)

// scheduledDelays extracts the reconnect delays the client logged, in order.
func scheduledDelays(logs *observer.ObservedLogs) []time.Duration {
	var out []time.Duration
	for _, entry := range logs.FilterMessage("stream reconnect scheduled").All() {
		if d, ok := entry.ContextMap()["delay"].(time.Duration); ok {
			out = append(out, d)
		}
	}
	return out
}

// streamServer is a websocket endpoint that records handshakes and sends a
// fixed sequence of frames to every accepted connection.
type streamServer struct {
	srv     *httptest.Server
	frames  [][]byte
	closeCh chan struct{}

	mu         sync.Mutex
	lastAuth   string
	lastParams string
}

func newStreamServer(t *testing.T, frames [][]byte) *streamServer {
	s := &streamServer{frames: frames, closeCh: make(chan struct{})}
	upgrader := websocket.Upgrader{}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.lastAuth = r.Header.Get("Authorization")
		s.lastParams = r.URL.Query().Get("symbols")
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}

		select {
		case <-s.closeCh:
		case <-r.Context().Done():
		}
		conn.Close()
	}))

	t.Cleanup(func() {
		close(s.closeCh)
		s.srv.Close()
	})
	return s
}

func (s *streamServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *streamServer) handshake() (auth, params string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth, s.lastParams
}

func metricsFrame(symbol string, seq int) []byte {
	return []byte(fmt.Sprintf(`{"type":"metrics","symbol":%q,"seq":%d}`, symbol, seq))
}

func TestConfigureDeliversSnapshots(t *testing.T) {
	server := newStreamServer(t, [][]byte{
		metricsFrame("BTCUSDT", 1),
		[]byte(`{"type":"heartbeat"}`),
		[]byte(`{broken json`),
		[]byte(`{"type":"metrics","symbol":""}`),
		metricsFrame("BTCUSDT", 2),
	})

	client := New(server.wsURL(), "test-token", zap.NewNop())
	defer client.Dispose()

	client.Configure([]string{"BTCUSDT", "ETHUSDT"})

	require.Eventually(t, func() bool {
		snap, ok := client.Observe()["BTCUSDT"]
		return ok && strings.Contains(string(snap.Payload), `"seq":2`)
	}, 2*time.Second, 10*time.Millisecond, "latest metrics frame should win")

	snapshots := client.Observe()
	require.Len(t, snapshots, 1, "malformed and non-metrics frames must not create entries")
	require.Equal(t, domain.FreshnessLive, snapshots["BTCUSDT"].Freshness)
	_, ok := snapshots["ETHUSDT"]
	require.False(t, ok, "symbol without messages stays absent")

	auth, params := server.handshake()
	require.Equal(t, "Bearer test-token", auth, "handshake must carry the bearer credential")
	require.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, strings.Split(params, ","))
}

func TestConfigureEmptySetGoesIdle(t *testing.T) {
	server := newStreamServer(t, [][]byte{metricsFrame("BTCUSDT", 1)})

	client := New(server.wsURL(), "test-token", zap.NewNop())
	defer client.Dispose()

	client.Configure([]string{"BTCUSDT"})
	require.Eventually(t, func() bool {
		return len(client.Observe()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	client.Configure(nil)
	require.Equal(t, domain.ConnIdle, client.State().Phase)
	require.Empty(t, client.Observe(), "going idle discards snapshots")
}

func TestConfigureSameSetKeepsConnection(t *testing.T) {
	server := newStreamServer(t, [][]byte{metricsFrame("BTCUSDT", 1)})

	client := New(server.wsURL(), "test-token", zap.NewNop())
	defer client.Dispose()

	client.Configure([]string{"BTCUSDT", "ETHUSDT"})
	require.Eventually(t, func() bool {
		return client.State().Phase == domain.ConnOpen
	}, 2*time.Second, 10*time.Millisecond)

	client.mu.Lock()
	before := client.gen
	client.mu.Unlock()

	// order must not matter, the subscription is compared as a set
	client.Configure([]string{"ETHUSDT", "BTCUSDT"})

	client.mu.Lock()
	after := client.gen
	client.mu.Unlock()
	require.Equal(t, before, after, "unchanged set must not rebuild the connection")
}

func TestSubscriptionChangePurgesRemovedSymbols(t *testing.T) {
	client := New("ws://127.0.0.1:1/ws", "test-token", zap.NewNop())
	defer client.Dispose()

	client.mu.Lock()
	client.symbols = []string{"BTCUSDT", "ETHUSDT"}
	client.state = domain.ConnState{Phase: domain.ConnOpen}
	client.snapshots["BTCUSDT"] = domain.SymbolSnapshot{Symbol: "BTCUSDT"}
	client.snapshots["ETHUSDT"] = domain.SymbolSnapshot{Symbol: "ETHUSDT"}
	client.mu.Unlock()

	client.Configure([]string{"BTCUSDT"})

	snapshots := client.Observe()
	_, ok := snapshots["ETHUSDT"]
	require.False(t, ok, "snapshot of a removed symbol is purged")
	_, ok = snapshots["BTCUSDT"]
	require.True(t, ok, "snapshot of a kept symbol survives the reconnect")
}

func TestReconnectDelaysFollowExponentialBackoff(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	client := New("ws://127.0.0.1:1/ws", "test-token", zap.New(core))
	defer client.Dispose()

	client.mu.Lock()
	client.symbols = []string{"BTCUSDT"}
	client.mu.Unlock()

	expected := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
		30 * time.Second, 30 * time.Second, 30 * time.Second,
	}

	for i := range expected {
		client.mu.Lock()
		client.scheduleReconnectLocked(websocket.CloseAbnormalClosure)
		require.NotNil(t, client.retryTimer, "attempt %d should schedule a reconnect", i)
		client.retryTimer.Stop()
		client.retryTimer = nil
		state := client.state
		client.mu.Unlock()

		require.Equal(t, domain.ConnClosed, state.Phase)
		require.Equal(t, i, state.Attempt)
	}

	require.Equal(t, expected, scheduledDelays(logs))

	// the 11th consecutive failure is terminal
	client.mu.Lock()
	client.scheduleReconnectLocked(websocket.CloseAbnormalClosure)
	timer := client.retryTimer
	state := client.state
	client.mu.Unlock()

	require.Nil(t, timer, "no reconnect past the attempt ceiling")
	require.Equal(t, maxReconnectAttempts, state.Attempt)
}

func TestSuccessfulOpenResetsBackoff(t *testing.T) {
	server := newStreamServer(t, nil)

	core, logs := observer.New(zap.InfoLevel)
	client := New(server.wsURL(), "test-token", zap.New(core))
	defer client.Dispose()

	client.mu.Lock()
	client.symbols = []string{"BTCUSDT"}
	// two prior failures inflate the counter
	client.scheduleReconnectLocked(websocket.CloseAbnormalClosure)
	client.retryTimer.Stop()
	client.retryTimer = nil
	client.scheduleReconnectLocked(websocket.CloseAbnormalClosure)
	client.retryTimer.Stop()
	client.retryTimer = nil
	client.connectLocked()
	client.mu.Unlock()

	require.Eventually(t, func() bool {
		return client.State().Phase == domain.ConnOpen
	}, 2*time.Second, 10*time.Millisecond, "dial against a live server should open")

	client.mu.Lock()
	client.scheduleReconnectLocked(websocket.CloseAbnormalClosure)
	client.retryTimer.Stop()
	client.retryTimer = nil
	attempt := client.state.Attempt
	client.mu.Unlock()

	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, time.Second}, scheduledDelays(logs),
		"the first delay after a successful open starts over")
	require.Equal(t, 0, attempt)
}

func TestConfigureRestartsAfterTerminalClose(t *testing.T) {
	client := New("ws://127.0.0.1:1/ws", "test-token", zap.NewNop())
	defer client.Dispose()

	client.mu.Lock()
	client.symbols = []string{"BTCUSDT"}
	for i := 0; i <= maxReconnectAttempts; i++ {
		client.scheduleReconnectLocked(websocket.CloseAbnormalClosure)
		if client.retryTimer != nil {
			client.retryTimer.Stop()
			client.retryTimer = nil
		}
	}
	require.Equal(t, maxReconnectAttempts, client.state.Attempt)
	client.mu.Unlock()

	// an identical set restarts the cycle once the client is terminal
	client.Configure([]string{"BTCUSDT"})
	require.Equal(t, domain.ConnConnecting, client.State().Phase)
}

func TestDisposeCancelsScheduledReconnect(t *testing.T) {
	client := New("ws://127.0.0.1:1/ws", "test-token", zap.NewNop())

	client.mu.Lock()
	client.symbols = []string{"BTCUSDT"}
	client.scheduleReconnectLocked(websocket.CloseAbnormalClosure)
	require.NotNil(t, client.retryTimer)
	client.mu.Unlock()

	client.Dispose()

	client.mu.Lock()
	require.Nil(t, client.retryTimer, "dispose cancels the pending reconnect")
	require.True(t, client.disposed)
	client.mu.Unlock()

	// a disposed client never resurrects a connection
	client.Configure([]string{"BTCUSDT"})
	require.Equal(t, domain.ConnIdle, client.State().Phase)
}
