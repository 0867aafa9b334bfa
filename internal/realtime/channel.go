package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/appetiteclub/comanda/internal/metrics"
	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/events"
)

// State is the connection state of the live channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

var ErrNoTransport = errors.New("realtime transport not configured")

// Params identify the session a channel is opened for.
type Params struct {
	UserID string
	Role   string
	Token  string
}

// Transport opens a live push channel. Messages are raw envelopes handed
// to handler until the returned Conn is closed or drops.
type Transport interface {
	Dial(ctx context.Context, p Params, handler events.HandlerFunc) (Conn, error)
}

type Conn interface {
	Done() <-chan struct{}
	Close() error
}

// Channel owns at most one live connection. Connecting again replaces the
// previous one. A dropped connection is not retried.
type Channel struct {
	transport Transport
	metrics   *metrics.Collector
	logger    aqm.Logger

	mu        sync.Mutex
	state     State
	conn      Conn
	cancel    context.CancelFunc
	listeners []func(State)
}

func NewChannel(transport Transport, m *metrics.Collector, logger aqm.Logger) *Channel {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Channel{transport: transport, metrics: m, logger: logger}
}

// OnState registers fn to observe every state change.
func (c *Channel) OnState(fn func(State)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens a channel for p. The connection lives until Disconnect,
// independent of ctx.
func (c *Channel) Connect(ctx context.Context, p Params, handler events.HandlerFunc) error {
	if c.transport == nil {
		return ErrNoTransport
	}
	c.Disconnect()

	c.setState(Connecting)
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	conn, err := c.transport.Dial(connCtx, p, handler)
	if err != nil {
		cancel()
		c.setState(Disconnected)
		c.logger.Error("realtime connect failed", "user_id", p.UserID, "error", err)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	c.setState(Connected)
	c.logger.Info("realtime channel connected", "user_id", p.UserID, "role", p.Role)

	go c.watch(conn)
	return nil
}

// Disconnect tears the channel down. It is safe to call when idle.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	conn, cancel := c.conn, c.cancel
	c.conn, c.cancel = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Debug("realtime close failed", "error", err)
		}
		c.logger.Info("realtime channel disconnected")
	}
	c.setState(Disconnected)
}

func (c *Channel) watch(conn Conn) {
	<-conn.Done()

	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
	}
	c.mu.Unlock()

	if current {
		c.logger.Info("realtime channel dropped")
		c.setState(Disconnected)
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	listeners := append([]func(State){}, c.listeners...)
	c.mu.Unlock()

	if !changed {
		return
	}
	c.metrics.SetConnectionState(int(s))
	for _, fn := range listeners {
		fn(s)
	}
}
