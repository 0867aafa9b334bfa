package collections

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/appetiteclub/comanda/internal/backend"
	"github.com/appetiteclub/comanda/pkg/enums/role"
)

func TestRegistryAllowed(t *testing.T) {
	tests := []struct {
		name string
		role role.Role
		want bool
	}{
		{name: "waiter", role: role.Roles.Waiter, want: false},
		{name: "cashier", role: role.Roles.Cashier, want: false},
		{name: "manager", role: role.Roles.Manager, want: true},
		{name: "admin", role: role.Roles.Admin, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry(tt.role)
			if got := reg.Allowed(Trash); got != tt.want {
				t.Errorf("Allowed(trash) = %v, want %v", got, tt.want)
			}
			if !reg.Allowed(Tables) {
				t.Error("Allowed(tables) = false, want true")
			}
		})
	}
}

func TestRegistryInvalidateSkipsGated(t *testing.T) {
	reg := NewRegistry(role.Roles.Waiter)

	var hits []string
	reg.Watch(Tables, func() { hits = append(hits, Tables) })
	reg.Watch(Trash, func() { hits = append(hits, Trash) })

	done := reg.Invalidate(Tables, Orders, Trash)

	if got := strings.Join(done, ","); got != "orders,tables" {
		t.Errorf("Invalidate() = %q, want %q", got, "orders,tables")
	}
	if len(hits) != 1 || hits[0] != Tables {
		t.Errorf("watchers called = %v, want [tables]", hits)
	}
}

func TestRegistryWatchCancel(t *testing.T) {
	reg := NewRegistry(role.Roles.Manager)

	calls := 0
	stop := reg.Watch(Orders, func() { calls++ })
	reg.Invalidate(Orders)
	stop()
	reg.Invalidate(Orders)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCollectionLazyLoadAndInvalidate(t *testing.T) {
	reg := NewRegistry(role.Roles.Waiter)
	loads := 0
	c := New(reg, Tables, func(ctx context.Context) ([]string, error) {
		loads++
		return []string{"T1"}, nil
	})

	if !c.Stale() {
		t.Error("Stale() = false before first load")
	}
	for i := 0; i < 2; i++ {
		if _, err := c.Get(context.Background()); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	if loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}

	reg.Invalidate(Tables)
	if !c.Stale() {
		t.Error("Stale() = false after invalidation")
	}
	if loads != 1 {
		t.Errorf("invalidation fetched: loads = %d, want 1", loads)
	}

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loads != 2 {
		t.Errorf("loads = %d, want 2", loads)
	}
}

func TestCollectionGatedNeverFetches(t *testing.T) {
	reg := NewRegistry(role.Roles.Waiter)
	c := New(reg, Trash, func(ctx context.Context) ([]string, error) {
		t.Fatal("loader called for gated collection")
		return nil, nil
	})

	got, err := c.Get(context.Background())
	if err != nil || got != nil {
		t.Errorf("Get() = %v, %v; want nil, nil", got, err)
	}
}

func TestCollectionForbiddenIsNoData(t *testing.T) {
	reg := NewRegistry(role.Roles.Manager)
	c := New(reg, Trash, func(ctx context.Context) ([]string, error) {
		return nil, &backend.APIError{Status: 403, Kind: backend.ErrForbidden}
	})

	got, err := c.Get(context.Background())
	if err != nil {
		t.Errorf("Get() error = %v, want nil", err)
	}
	if len(got) != 0 {
		t.Errorf("Get() = %v, want empty", got)
	}
}

func TestCollectionLoadError(t *testing.T) {
	boom := &backend.APIError{Kind: backend.ErrNetwork, Messages: []string{"dial tcp"}}
	c := New(nil, Products, func(ctx context.Context) (int, error) {
		return 0, boom
	})

	if _, err := c.Get(context.Background()); !errors.Is(err, backend.ErrNetwork) {
		t.Errorf("Get() error = %v, want ErrNetwork", err)
	}
	if !c.Stale() {
		t.Error("failed load should leave collection stale")
	}
}
