package collections

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/appetiteclub/comanda/internal/backend"
)

// Loader fetches a collection from the backend.
type Loader[T any] func(ctx context.Context) (T, error)

// Collection is a lazily loaded cached value. It is refetched on the next
// read after being marked stale.
type Collection[T any] struct {
	name     string
	load     Loader[T]
	registry *Registry

	mu       sync.Mutex
	value    T
	loaded   bool
	stale    bool
	loadedAt time.Time
}

// New registers a collection called name with reg.
func New[T any](reg *Registry, name string, load Loader[T]) *Collection[T] {
	c := &Collection[T]{name: name, load: load, registry: reg}
	if reg != nil {
		reg.Watch(name, c.Invalidate)
	}
	return c
}

func (c *Collection[T]) Name() string {
	return c.name
}

// Get returns the cached value, loading it first when missing or stale.
// Reads the role may not perform, locally or per the backend, yield the
// zero value and no error.
func (c *Collection[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if c.registry != nil && !c.registry.Allowed(c.name) {
		return zero, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && !c.stale {
		return c.value, nil
	}

	value, err := c.load(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrForbidden) {
			c.value, c.loaded, c.stale = zero, true, false
			return zero, nil
		}
		return zero, err
	}

	c.value = value
	c.loaded = true
	c.stale = false
	c.loadedAt = time.Now()
	return value, nil
}

// Invalidate marks the collection stale. It never fetches.
func (c *Collection[T]) Invalidate() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
}

func (c *Collection[T]) Stale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.loaded || c.stale
}

func (c *Collection[T]) LoadedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadedAt
}
