package realtime

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// DefaultDebounce is the minimum interval between accepted events of a topic.
const DefaultDebounce = time.Second

// Debouncer accepts at most one event per topic per interval. Events inside
// the window are dropped, they do not extend it.
type Debouncer struct {
	interval time.Duration
	clock    clock.Clock

	mu   sync.Mutex
	last map[string]time.Time
}

func NewDebouncer(interval time.Duration, clk clock.Clock) *Debouncer {
	if interval < 0 {
		interval = 0
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Debouncer{
		interval: interval,
		clock:    clk,
		last:     make(map[string]time.Time),
	}
}

// Allow reports whether an event for topic arriving now is accepted.
func (d *Debouncer) Allow(topic string) bool {
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.last[topic]; ok && now.Sub(last) < d.interval {
		return false
	}
	d.last[topic] = now
	return true
}

// Reset forgets every topic, as when a new session connects.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	d.last = make(map[string]time.Time)
	d.mu.Unlock()
}
