package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AetherKnowledge/capstone/internal/config"
	"github.com/AetherKnowledge/capstone/internal/domain"
	"github.com/AetherKnowledge/capstone/internal/ratelimit"
	"github.com/AetherKnowledge/capstone/pkg/log"
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClientClosed   = errors.New("client closed")
)

// Close reasons for connections the server drops on a transport fault.
const (
	CloseReasonSendBufferFull = "send buffer full"
	CloseReasonConnectionLost = "connection lost"
)

type Client struct {
	ID      string
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	Session *domain.Session
	Limiter *ratelimit.Limiter
	config  config.WebSocketConfig

	mu          sync.RWMutex
	closed      bool
	closeCode   int
	closeReason string
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, session *domain.Session, limiter *ratelimit.Limiter) *Client {
	return &Client{
		ID:      id,
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, hub.config.SendBuffer),
		Session: session,
		Limiter: limiter,
		config:  hub.config,
	}
}

// UserID returns the authenticated user behind the connection.
func (c *Client) UserID() string {
	return c.Session.UserID()
}

func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			// Only a close frame from the peer keeps the normal-closure status.
			// A dropped transport surfaces as abnormal closure.
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) || closeErr.Code == websocket.CloseAbnormalClosure {
				c.setCloseStatus(websocket.CloseGoingAway, CloseReasonConnectionLost)
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldConnectionID, c.ID).Msg("websocket read error")
			}
			break
		}

		// Drain without processing until the write pump tears the transport down.
		if c.IsClosed() {
			continue
		}

		c.Session.UpdateActivity()

		handler(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				code, reason := c.CloseStatus()
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage marshals message and queues it for the write pump.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendRaw queues an encoded frame without blocking.
func (c *Client) SendRaw(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close unregisters the client. The write pump flushes queued frames,
// then sends a close frame with code and reason.
func (c *Client) Close(code int, reason string) {
	c.setCloseStatus(code, reason)
	c.Hub.Unregister(c)
}

// setCloseStatus records the close status. The first status recorded wins.
func (c *Client) setCloseStatus(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closeCode == 0 {
		c.closeCode = code
		c.closeReason = reason
	}
}

// IsClosed reports whether the client has been unregistered.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// closeSend closes the send channel once. It reports whether this call closed it.
func (c *Client) closeSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	close(c.Send)
	return true
}

// CloseStatus returns the status the write pump closes the transport with.
// Normal closure is reported only when no other status was recorded.
func (c *Client) CloseStatus() (int, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closeCode == 0 {
		return websocket.CloseNormalClosure, ""
	}
	return c.closeCode, c.closeReason
}
