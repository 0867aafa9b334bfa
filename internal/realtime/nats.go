package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/appetiteclub/comanda/pkg"
	"github.com/appetiteclub/comanda/pkg/event"
	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/events"
)

// Subscriber is an events.Subscriber that can be shut down.
type Subscriber interface {
	events.Subscriber
	Close() error
}

// NATSTransport receives realtime envelopes from per-topic NATS subjects.
type NATSTransport struct {
	dial func(name string) (Subscriber, error)
}

func NewNATSTransport(url string, logger aqm.Logger) *NATSTransport {
	return &NATSTransport{
		dial: func(name string) (Subscriber, error) {
			return pkg.NewNATSSubscriber(url, name, logger)
		},
	}
}

func (t *NATSTransport) Dial(ctx context.Context, p Params, handler events.HandlerFunc) (Conn, error) {
	sub, err := t.dial("comanda-terminal-" + p.UserID)
	if err != nil {
		return nil, err
	}

	for _, topic := range event.Topics {
		if err := sub.Subscribe(ctx, event.Subject(topic), handler); err != nil {
			_ = sub.Close()
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}

	return &natsConn{sub: sub, done: make(chan struct{})}, nil
}

type natsConn struct {
	sub  Subscriber
	done chan struct{}
	once sync.Once
}

func (c *natsConn) Done() <-chan struct{} {
	return c.done
}

func (c *natsConn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.sub.Close()
		close(c.done)
	})
	return err
}
