package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/appetiteclub/comanda/internal/backend"
	"github.com/appetiteclub/comanda/internal/collections"
	"github.com/appetiteclub/comanda/pkg/enums/role"
	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"
	"github.com/juju/clock"
)

var (
	ErrNoSession      = errors.New("no active session")
	ErrSessionExpired = errors.New("session expired")
	ErrUnknownRole    = errors.New("unknown role")
)

// Logout reasons.
const (
	ReasonLogout  = "logout"
	ReasonExpired = "expired"
	ReasonLost    = "unauthorized"
	ReasonReplace = "replaced"
)

// LoginHook runs after a session is created. A failing hook is logged and
// does not undo the login.
type LoginHook func(ctx context.Context, s *Session) error

// LogoutHook runs after a session ends.
type LogoutHook func(s *Session, reason string)

// Manager owns the single active session of a terminal.
type Manager struct {
	base   *backend.Client
	clock  clock.Clock
	logger aqm.Logger
	audit  *AuditLogger

	mu       sync.RWMutex
	current  *Session
	onLogin  []LoginHook
	onLogout []LogoutHook
}

func NewManager(base *backend.Client, clk clock.Clock, logger aqm.Logger) *Manager {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Manager{
		base:   base,
		clock:  clk,
		logger: logger,
		audit:  NewAuditLogger(logger),
	}
}

func (m *Manager) OnLogin(hook LoginHook) {
	m.mu.Lock()
	m.onLogin = append(m.onLogin, hook)
	m.mu.Unlock()
}

func (m *Manager) OnLogout(hook LogoutHook) {
	m.mu.Lock()
	m.onLogout = append(m.onLogout, hook)
	m.mu.Unlock()
}

// Login authenticates against the backend and replaces any active session.
func (m *Manager) Login(ctx context.Context, username, password string) (*Session, error) {
	result, err := backend.NewAuthDataAccess(m.base).Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	claims, isJWT := parseClaims(result.Token)
	roleName := result.User.Role
	if roleName == "" && isJWT {
		roleName = claims.Role
	}
	r := role.ByName(roleName)
	if r == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, roleName)
	}
	result.User.Role = r.Code()

	s := &Session{
		ID:          uuid.NewString(),
		User:        result.User,
		Role:        *r,
		Token:       result.Token,
		CreatedAt:   m.clock.Now(),
		ExpiresAt:   claims.ExpiresAt,
		Client:      m.base.WithToken(result.Token),
		Collections: collections.NewRegistry(*r),
	}

	m.end(ctx, ReasonReplace)

	m.mu.Lock()
	m.current = s
	hooks := append([]LoginHook(nil), m.onLogin...)
	m.mu.Unlock()

	m.audit.LogLogin(ctx, s)

	for _, hook := range hooks {
		if err := hook(ctx, s); err != nil {
			m.logger.Error("login hook failed", "session_id", s.ID, "error", err)
		}
	}

	return s, nil
}

// Logout revokes the token on the backend, best effort, and ends the
// session.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.RLock()
	s := m.current
	m.mu.RUnlock()
	if s == nil {
		return ErrNoSession
	}

	if err := backend.NewAuthDataAccess(s.Client).Logout(ctx); err != nil {
		m.logger.Info("backend logout failed", "session_id", s.ID, "error", err)
	}

	m.end(ctx, ReasonLogout)
	return nil
}

// Current returns the active session, ending it first when expired.
func (m *Manager) Current() (*Session, error) {
	m.mu.RLock()
	s := m.current
	m.mu.RUnlock()

	if s == nil {
		return nil, ErrNoSession
	}
	if s.Expired(m.clock.Now()) {
		m.end(context.Background(), ReasonExpired)
		return nil, ErrSessionExpired
	}
	return s, nil
}

// HandleError ends the session when err means the backend no longer
// accepts its token. It reports whether the session was lost.
func (m *Manager) HandleError(err error) bool {
	if !errors.Is(err, backend.ErrUnauthorized) {
		return false
	}
	m.end(context.Background(), ReasonLost)
	return true
}

func (m *Manager) end(ctx context.Context, reason string) {
	m.mu.Lock()
	s := m.current
	m.current = nil
	hooks := append([]LogoutHook(nil), m.onLogout...)
	m.mu.Unlock()

	if s == nil {
		return
	}

	m.audit.LogLogout(ctx, s, reason)
	for _, hook := range hooks {
		hook(s, reason)
	}
}
