package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AetherKnowledge/capstone/internal/config"
	"github.com/AetherKnowledge/capstone/internal/domain"
)

// wsPair returns the server and client ends of a live websocket connection.
func wsPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case server := <-conns:
		return server, client
	case <-time.After(2 * time.Second):
		t.Fatal("server side of websocket never arrived")
		return nil, nil
	}
}

func runReadPump(t *testing.T, c *Client, handler func(*Client, []byte)) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		c.ReadPump(handler)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("read pump did not exit")
	}
}

func newLiveClient(t *testing.T, cfg config.WebSocketConfig) (*Client, *websocket.Conn) {
	t.Helper()
	h := NewHub(cfg)
	server, client := wsPair(t)
	c := NewClient("a", h, server, domain.NewSession("a", "c1", domain.Identity{UserID: "u1"}), nil)
	require.NoError(t, h.Register(c))
	return c, client
}

func TestReadPumpTimeoutIsNotNormalClosure(t *testing.T) {
	c, _ := newLiveClient(t, config.WebSocketConfig{PongWait: 100 * time.Millisecond, MaxMessageSize: 1024})

	runReadPump(t, c, func(*Client, []byte) {})

	assert.True(t, c.IsClosed())
	code, reason := c.CloseStatus()
	assert.Equal(t, websocket.CloseGoingAway, code)
	assert.Equal(t, CloseReasonConnectionLost, reason)
}

func TestReadPumpDroppedTransportIsNotNormalClosure(t *testing.T) {
	c, client := newLiveClient(t, config.WebSocketConfig{PongWait: 5 * time.Second, MaxMessageSize: 1024})

	require.NoError(t, client.Close())
	runReadPump(t, c, func(*Client, []byte) {})

	code, _ := c.CloseStatus()
	assert.Equal(t, websocket.CloseGoingAway, code)
}

func TestReadPumpPeerCloseKeepsNormalClosure(t *testing.T) {
	c, client := newLiveClient(t, config.WebSocketConfig{PongWait: 5 * time.Second, MaxMessageSize: 1024})

	require.NoError(t, client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	runReadPump(t, c, func(*Client, []byte) {})

	assert.True(t, c.IsClosed())
	code, _ := c.CloseStatus()
	assert.Equal(t, websocket.CloseNormalClosure, code)
}

func TestReadPumpStopsProcessingAfterClose(t *testing.T) {
	c, client := newLiveClient(t, config.WebSocketConfig{PongWait: 5 * time.Second, MaxMessageSize: 1024})

	for i := 0; i < 3; i++ {
		require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("frame")))
	}

	var handled atomic.Int32
	go func() {
		// Let the buffered frames reach the server before the transport drops.
		time.Sleep(200 * time.Millisecond)
		client.Close()
	}()
	runReadPump(t, c, func(cl *Client, _ []byte) {
		handled.Add(1)
		cl.Close(websocket.ClosePolicyViolation, domain.CloseReasonForbidden)
	})

	assert.Equal(t, int32(1), handled.Load())
	code, reason := c.CloseStatus()
	assert.Equal(t, websocket.ClosePolicyViolation, code)
	assert.Equal(t, domain.CloseReasonForbidden, reason)
}

func TestCloseFirstStatusWins(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h, "a", "u1")
	require.NoError(t, h.Register(c))

	c.Close(websocket.ClosePolicyViolation, "first")
	c.Close(websocket.CloseGoingAway, "second")

	code, reason := c.CloseStatus()
	assert.Equal(t, websocket.ClosePolicyViolation, code)
	assert.Equal(t, "first", reason)
}
