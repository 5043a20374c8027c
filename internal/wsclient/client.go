// Package wsclient keeps a websocket connection to the relay open,
// reconnecting with exponential backoff after unexpected closes.
package wsclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected or connecting")
	ErrDisconnected     = errors.New("disconnected by caller")
)

// State is the connection state of a Controller.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// Conn is the subset of *websocket.Conn the controller uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Clock schedules delayed calls.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Options configures reconnection.
type Options struct {
	Reconnect    bool
	BaseInterval time.Duration
	MaxInterval  time.Duration
	// MaxAttempts bounds consecutive reconnect attempts; 0 means unlimited.
	MaxAttempts int

	// OnMessage receives every inbound data frame.
	OnMessage func(data []byte)
	// OnStateChange is called on every transition. It must not call back
	// into the Controller.
	OnStateChange func(State)
}

// DefaultOptions returns reconnecting options with a 1s base and 10s cap.
func DefaultOptions() Options {
	return Options{
		Reconnect:    true,
		BaseInterval: time.Second,
		MaxInterval:  10 * time.Second,
	}
}

// Controller owns one logical connection to url.
type Controller struct {
	url    string
	dialer Dialer
	clock  Clock
	opts   Options

	mu      sync.Mutex
	writeMu sync.Mutex
	state   State
	attempt int
	conn    Conn
	timer   Timer
	gen     uint64
	lastErr error
}

// Option overrides a Controller dependency.
type Option func(*Controller)

func WithDialer(d Dialer) Option {
	return func(c *Controller) { c.dialer = d }
}

func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func New(url string, opts Options, options ...Option) *Controller {
	if opts.BaseInterval <= 0 {
		opts.BaseInterval = time.Second
	}
	if opts.MaxInterval < opts.BaseInterval {
		opts.MaxInterval = opts.BaseInterval
	}
	c := &Controller{
		url:    url,
		dialer: &WebsocketDialer{Dialer: websocket.DefaultDialer},
		clock:  realClock{},
		opts:   opts,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Delay returns the wait before reconnect attempt n (0-based):
// min(base * 2^n, max).
func (c *Controller) Delay(n int) time.Duration {
	d := c.opts.BaseInterval
	for i := 0; i < n; i++ {
		if d >= c.opts.MaxInterval {
			break
		}
		d *= 2
	}
	if d > c.opts.MaxInterval {
		d = c.opts.MaxInterval
	}
	return d
}

// Connect dials the server. It is only valid from the disconnected state.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.gen++
	gen := c.gen
	c.attempt = 0
	c.setState(StateConnecting)
	c.mu.Unlock()

	return c.dial(ctx, gen)
}

// Disconnect closes the connection with normal-closure status and cancels
// any scheduled reconnect.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.setState(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
	}
}

// Send writes a text frame on the current connection.
func (c *Controller) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) IsConnected() bool {
	return c.State() == StateConnected
}

// LastError returns the message of the most recent connection error, or "".
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr == nil {
		return ""
	}
	return c.lastErr.Error()
}

// Attempts returns the number of backoffs scheduled since the last
// successful connect.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

func (c *Controller) dial(ctx context.Context, gen uint64) error {
	conn, err := c.dialer.Dial(ctx, c.url)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		if conn != nil {
			conn.Close()
		}
		return ErrDisconnected
	}
	if err != nil {
		c.lastErr = err
		c.scheduleLocked(gen)
		return err
	}

	c.conn = conn
	c.attempt = 0
	c.lastErr = nil
	c.setState(StateConnected)
	go c.readLoop(gen, conn)
	return nil
}

func (c *Controller) readLoop(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, conn, err)
			return
		}
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(data)
		}
	}
}

func (c *Controller) handleClose(gen uint64, conn Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	conn.Close()
	c.conn = nil
	c.lastErr = err

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.setState(StateDisconnected)
		return
	}
	c.scheduleLocked(gen)
}

// scheduleLocked enters backoff or gives up. Callers hold c.mu.
func (c *Controller) scheduleLocked(gen uint64) {
	if !c.opts.Reconnect || (c.opts.MaxAttempts > 0 && c.attempt >= c.opts.MaxAttempts) {
		c.setState(StateDisconnected)
		return
	}

	delay := c.Delay(c.attempt)
	c.attempt++
	c.setState(StateBackoff)
	c.timer = c.clock.AfterFunc(delay, func() { c.retry(gen) })
}

func (c *Controller) retry(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateBackoff {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.setState(StateConnecting)
	c.mu.Unlock()

	c.dial(context.Background(), gen)
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := d.Dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
