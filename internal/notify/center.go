package notify

import (
	"sync"
	"time"

	"github.com/appetiteclub/comanda/pkg/event"
	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"
	"github.com/juju/clock"
)

const DefaultMax = 50

// Notification is a user-facing message kept in memory only.
type Notification struct {
	ID        string `json:"id"`
	Level     string `json:"level"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	ActionURL string `json:"actionUrl,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Listener observes every pushed notification.
type Listener func(Notification)

// Center holds the bounded newest-first notification list for a terminal.
type Center struct {
	max    int
	clock  clock.Clock
	logger aqm.Logger

	mu        sync.RWMutex
	items     []Notification
	listeners map[string]Listener
}

func NewCenter(max int, clk clock.Clock, logger aqm.Logger) *Center {
	if max <= 0 {
		max = DefaultMax
	}
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Center{
		max:       max,
		clock:     clk,
		logger:    logger,
		listeners: make(map[string]Listener),
	}
}

// Push stores n at the head of the list, trimming the oldest entries.
func (c *Center) Push(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Level == "" {
		n.Level = event.NotificationInfo
	}
	if n.Timestamp == "" {
		n.Timestamp = c.clock.Now().UTC().Format(time.RFC3339)
	}

	c.mu.Lock()
	c.items = append([]Notification{n}, c.items...)
	if len(c.items) > c.max {
		c.items = c.items[:c.max]
	}
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	c.logger.Debug("notification pushed", "id", n.ID, "level", n.Level, "title", n.Title)

	for _, l := range listeners {
		l(n)
	}
	return n
}

func (c *Center) Info(title, message string) Notification {
	return c.Push(Notification{Level: event.NotificationInfo, Title: title, Message: message})
}

func (c *Center) Success(title, message string) Notification {
	return c.Push(Notification{Level: event.NotificationSuccess, Title: title, Message: message})
}

func (c *Center) Warning(title, message string) Notification {
	return c.Push(Notification{Level: event.NotificationWarning, Title: title, Message: message})
}

func (c *Center) Error(title, message string) Notification {
	return c.Push(Notification{Level: event.NotificationError, Title: title, Message: message})
}

// FromEvent stores a notification received over the realtime channel.
func (c *Center) FromEvent(evt event.NotificationEvent) Notification {
	n := Notification{
		Level:     evt.Type,
		Title:     evt.Title,
		Message:   evt.Message,
		ActionURL: evt.ActionURL,
	}
	if !evt.Timestamp.IsZero() {
		n.Timestamp = evt.Timestamp.UTC().Format(time.RFC3339)
	}
	switch n.Level {
	case event.NotificationInfo, event.NotificationSuccess, event.NotificationWarning, event.NotificationError:
	default:
		n.Level = event.NotificationInfo
	}
	return c.Push(n)
}

// List returns a copy of the stored notifications, newest first.
func (c *Center) List() []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Notification, len(c.items))
	copy(out, c.items)
	return out
}

// Dismiss removes a notification. It reports whether id was present.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Center) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

// Listen registers l and returns the id used to remove it.
func (c *Center) Listen(l Listener) string {
	id := uuid.NewString()
	c.mu.Lock()
	c.listeners[id] = l
	c.mu.Unlock()
	return id
}

func (c *Center) Unlisten(id string) {
	c.mu.Lock()
	delete(c.listeners, id)
	c.mu.Unlock()
}
