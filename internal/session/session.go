package session

import (
	"time"

	"github.com/appetiteclub/comanda/internal/backend"
	"github.com/appetiteclub/comanda/internal/collections"
	"github.com/appetiteclub/comanda/pkg/enums/role"
)

// Session is the authenticated context of one terminal user. It owns the
// token-bearing backend client and the collections scoped to the role.
type Session struct {
	ID          string
	User        backend.User
	Role        role.Role
	Token       string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Client      *backend.Client
	Collections *collections.Registry
}

// Expired reports whether the token's expiry has passed. Sessions without
// a known expiry never expire locally.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

func (s *Session) Orders() *backend.OrderDataAccess {
	return backend.NewOrderDataAccess(s.Client)
}

func (s *Session) Kitchen() *backend.KitchenDataAccess {
	return backend.NewKitchenDataAccess(s.Client)
}

func (s *Session) Tables() *backend.TableDataAccess {
	return backend.NewTableDataAccess(s.Client)
}

func (s *Session) Products() *backend.ProductDataAccess {
	return backend.NewProductDataAccess(s.Client)
}
