package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/events"
	"github.com/gorilla/websocket"
)

// WebsocketTransport connects to the backend's websocket endpoint.
type WebsocketTransport struct {
	url    string
	dialer *websocket.Dialer
	logger aqm.Logger
}

func NewWebsocketTransport(rawURL string, logger aqm.Logger) *WebsocketTransport {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &WebsocketTransport{
		url: rawURL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// DialURL returns the endpoint with the session identity in the query.
func (t *WebsocketTransport) DialURL(p Params) (string, error) {
	u, err := url.Parse(t.url)
	if err != nil {
		return "", fmt.Errorf("invalid realtime url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("user_id", p.UserID)
	q.Set("role", p.Role)
	if p.Token != "" {
		q.Set("token", p.Token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *WebsocketTransport) Dial(ctx context.Context, p Params, handler events.HandlerFunc) (Conn, error) {
	target, err := t.DialURL(p)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if p.Token != "" {
		header.Set("Authorization", "Bearer "+p.Token)
	}

	ws, resp, err := t.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &wsConn{ws: ws, done: make(chan struct{})}
	go c.read(ctx, handler, t.logger)
	return c, nil
}

type wsConn struct {
	ws   *websocket.Conn
	done chan struct{}
	once sync.Once
}

func (c *wsConn) read(ctx context.Context, handler events.HandlerFunc, logger aqm.Logger) {
	defer c.finish()

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		if err := handler(ctx, data); err != nil {
			logger.Error("realtime handler failed", "error", err)
		}
	}
}

func (c *wsConn) finish() {
	c.once.Do(func() { close(c.done) })
}

func (c *wsConn) Done() <-chan struct{} {
	return c.done
}

func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := c.ws.Close()
	c.finish()
	return err
}
