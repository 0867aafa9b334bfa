package collections

import (
	"sort"
	"sync"

	"github.com/appetiteclub/comanda/pkg/enums/role"
	"github.com/google/uuid"
)

// Collection names shared by the realtime topic map and the terminal views.
const (
	Orders         = "orders"
	Tables         = "tables"
	Products       = "products"
	KitchenHistory = "kitchen_history"
	Trash          = "trash"
)

// Registry tracks which cached collections a session's role may see and
// fans invalidations out to whatever watches them.
type Registry struct {
	role role.Role

	mu       sync.RWMutex
	gates    map[string][]role.Role
	watchers map[string]map[string]func()
}

// NewRegistry returns a registry for r with the default gates applied.
func NewRegistry(r role.Role) *Registry {
	reg := &Registry{
		role:     r,
		gates:    make(map[string][]role.Role),
		watchers: make(map[string]map[string]func()),
	}
	reg.Gate(Trash, role.Supervisors...)
	return reg
}

func (r *Registry) Role() role.Role {
	return r.role
}

// Gate restricts name to the given roles.
func (r *Registry) Gate(name string, roles ...role.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gates[name] = roles
}

// Allowed reports whether the session role may read name.
func (r *Registry) Allowed(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles, gated := r.gates[name]
	if !gated {
		return true
	}
	for _, allowed := range roles {
		if allowed.Code() == r.role.Code() {
			return true
		}
	}
	return false
}

// Watch calls fn whenever name is invalidated. The returned func stops it.
func (r *Registry) Watch(name string, fn func()) func() {
	id := uuid.NewString()

	r.mu.Lock()
	if r.watchers[name] == nil {
		r.watchers[name] = make(map[string]func())
	}
	r.watchers[name][id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.watchers[name], id)
	}
}

// Invalidate marks the named collections stale and returns those actually
// invalidated. Collections the role may not see are skipped.
func (r *Registry) Invalidate(names ...string) []string {
	var done []string
	var calls []func()

	for _, name := range names {
		if !r.Allowed(name) {
			continue
		}
		done = append(done, name)

		r.mu.RLock()
		for _, fn := range r.watchers[name] {
			calls = append(calls, fn)
		}
		r.mu.RUnlock()
	}

	for _, fn := range calls {
		fn()
	}
	sort.Strings(done)
	return done
}
