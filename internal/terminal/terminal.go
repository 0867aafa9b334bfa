package terminal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/appetiteclub/comanda/internal/backend"
	"github.com/appetiteclub/comanda/internal/collections"
	"github.com/appetiteclub/comanda/internal/kitchen"
	"github.com/appetiteclub/comanda/internal/metrics"
	"github.com/appetiteclub/comanda/internal/notify"
	"github.com/appetiteclub/comanda/internal/ordering"
	"github.com/appetiteclub/comanda/internal/realtime"
	"github.com/appetiteclub/comanda/internal/session"
	"github.com/appetiteclub/comanda/internal/ticket"
	"github.com/aquamarinepk/aqm"
	"github.com/juju/clock"
)

// Deps are the collaborators a Terminal wires together.
type Deps struct {
	Sessions *session.Manager
	Channel  *realtime.Channel
	Center   *notify.Center
	Metrics  *metrics.Collector
	Renderer *ticket.Renderer
	Spooler  *ticket.Spooler
	Clock    clock.Clock
	Debounce time.Duration
}

// Terminal is the front of house agent for one device. It keeps the
// session-scoped state alive between login and logout.
type Terminal struct {
	sessions *session.Manager
	channel  *realtime.Channel
	center   *notify.Center
	metrics  *metrics.Collector
	renderer *ticket.Renderer
	spooler  *ticket.Spooler
	stream   *Stream
	clock    clock.Clock
	debounce time.Duration
	logger   aqm.Logger

	mu    sync.RWMutex
	state *sessionState
}

// sessionState is everything that lives exactly as long as a session.
type sessionState struct {
	session  *session.Session
	views    *Views
	tables   *collections.Collection[[]backend.Table]
	products *collections.Collection[[]backend.Product]
	orders   *collections.Collection[[]backend.Order]
	trash    *collections.Collection[[]backend.Order]
}

func New(d Deps, logger aqm.Logger) *Terminal {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	if d.Clock == nil {
		d.Clock = clock.WallClock
	}
	if d.Center == nil {
		d.Center = notify.NewCenter(notify.DefaultMax, d.Clock, logger)
	}
	if d.Debounce <= 0 {
		d.Debounce = realtime.DefaultDebounce
	}

	t := &Terminal{
		sessions: d.Sessions,
		channel:  d.Channel,
		center:   d.Center,
		metrics:  d.Metrics,
		renderer: d.Renderer,
		spooler:  d.Spooler,
		stream:   NewStream(logger),
		clock:    d.Clock,
		debounce: d.Debounce,
		logger:   logger,
	}

	t.center.Listen(func(n notify.Notification) {
		t.stream.Publish(Event{Type: EventNotification, Data: n})
	})
	if t.channel != nil {
		t.channel.OnState(func(s realtime.State) {
			t.stream.Publish(Event{Type: EventConnection, Data: map[string]string{"state": s.String()}})
		})
	}
	if t.sessions != nil {
		t.sessions.OnLogin(t.attach)
		t.sessions.OnLogout(t.detach)
	}
	return t
}

func (t *Terminal) Stream() *Stream {
	return t.stream
}

func (t *Terminal) Center() *notify.Center {
	return t.center
}

// attach builds the session state and opens the realtime channel.
func (t *Terminal) attach(ctx context.Context, s *session.Session) error {
	state := t.newSessionState(s)

	t.mu.Lock()
	t.state = state
	t.mu.Unlock()

	t.stream.Publish(Event{Type: EventSession, Data: map[string]string{
		"state":   "started",
		"user_id": s.User.ID,
		"role":    s.Role.Code(),
	}})

	if t.channel == nil {
		return nil
	}

	inv := realtime.NewInvalidator(s.Collections, t.center,
		realtime.NewDebouncer(t.debounce, t.clock), t.metrics, t.logger)
	inv.OnInvalidate(func(topic string, names []string) {
		t.stream.Publish(Event{Type: EventInvalidate, Data: map[string]interface{}{
			"topic":       topic,
			"collections": names,
		}})
	})

	params := realtime.Params{UserID: s.User.ID, Role: s.Role.Code(), Token: s.Token}
	return t.channel.Connect(ctx, params, inv.Handle)
}

// detach tears down everything the ended session owned.
func (t *Terminal) detach(s *session.Session, reason string) {
	t.mu.Lock()
	state := t.state
	if state != nil && state.session.ID == s.ID {
		t.state = nil
	} else {
		state = nil
	}
	t.mu.Unlock()

	if t.channel != nil {
		t.channel.Disconnect()
	}
	if state != nil {
		state.views.CloseAll()
	}
	t.center.Clear()

	t.stream.Publish(Event{Type: EventSession, Data: map[string]string{
		"state":  "ended",
		"reason": reason,
	}})
}

func (t *Terminal) newSessionState(s *session.Session) *sessionState {
	orders := s.Orders()
	kitchenDA := s.Kitchen()
	log := t.logger.With("user_id", s.User.ID)

	build := func(orderID string) *View {
		agg := ordering.New(orderID, orders, kitchenDA,
			ordering.WithNotifier(t.center),
			ordering.WithMetrics(t.metrics),
			ordering.WithLogger(log),
		)
		batches := kitchen.NewBatcher(orderID, kitchenDA, agg, agg,
			kitchen.WithMetrics(t.metrics),
			kitchen.WithLogger(log),
		)
		return newView(agg, batches, s.Collections)
	}

	tables := s.Tables()
	products := s.Products()
	return &sessionState{
		session:  s,
		views:    newViews(build),
		tables:   collections.New[[]backend.Table](s.Collections, collections.Tables, tables.ListTables),
		products: collections.New[[]backend.Product](s.Collections, collections.Products, products.ListProducts),
		orders:   collections.New[[]backend.Order](s.Collections, collections.Orders, orders.ListOrders),
		trash:    collections.New[[]backend.Order](s.Collections, collections.Trash, orders.ListArchivedOrders),
	}
}

// current returns the live session state.
func (t *Terminal) current() (*sessionState, error) {
	if t.sessions == nil {
		return nil, session.ErrNoSession
	}
	s, err := t.sessions.Current()
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state == nil || t.state.session.ID != s.ID {
		return nil, session.ErrNoSession
	}
	return t.state, nil
}

// check ends the session when err says the token is no longer valid.
func (t *Terminal) check(err error) {
	if err != nil && t.sessions != nil && t.sessions.HandleError(err) {
		t.center.Warning("Session ended", "Please sign in again")
	}
}

// PrintBatch prints a confirmed batch, or dispatches the pending one.
func (t *Terminal) PrintBatch(ctx context.Context, v *View, number int) (kitchen.PrintResult, error) {
	res, err := v.Batches.Print(ctx, number)
	if err != nil || res.Dispatched {
		return res, err
	}

	kt := ticket.KitchenTicket{Batch: res.Batch}
	if order := v.Order.Snapshot(); order != nil {
		kt.OrderNumber = order.Number
		kt.TableLabel = order.TableLabel
	}

	return res, t.print(ctx, ticket.KindKitchen, func() (*ticket.Document, error) {
		return t.renderer.RenderKitchen(kt)
	})
}

// PrintInvoice fetches and prints the invoice of orderID.
func (t *Terminal) PrintInvoice(ctx context.Context, orderID string) (*backend.Invoice, error) {
	state, err := t.current()
	if err != nil {
		return nil, err
	}

	inv, err := state.session.Orders().GetInvoice(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return inv, t.print(ctx, ticket.KindInvoice, func() (*ticket.Document, error) {
		return t.renderer.RenderInvoice(inv)
	})
}

var errNoRenderer = errors.New("ticket renderer not configured")

func (t *Terminal) print(ctx context.Context, kind string, render func() (*ticket.Document, error)) error {
	if t.renderer == nil {
		return errNoRenderer
	}
	if t.spooler == nil {
		return ticket.ErrNoPrinter
	}
	doc, err := render()
	if err != nil {
		t.metrics.Printed(kind, err)
		return err
	}
	if err := t.spooler.Submit(ctx, doc); err != nil {
		t.center.Error("Print failed", err.Error())
		return err
	}
	return nil
}

// Status summarises the terminal for health and UI polling.
type Status struct {
	Connection    string `json:"connection"`
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	UserName      string `json:"user_name,omitempty"`
	Role          string `json:"role,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
	OpenViews     int    `json:"open_views"`
	Subscribers   int    `json:"subscribers"`
}

func (t *Terminal) Status() Status {
	st := Status{Connection: realtime.Disconnected.String(), Subscribers: t.stream.Subscribers()}
	if t.channel != nil {
		st.Connection = t.channel.State().String()
	}
	if cur, err := t.current(); err == nil {
		st.Authenticated = true
		st.UserID = cur.session.User.ID
		st.UserName = cur.session.User.Name
		st.Role = cur.session.Role.Code()
		st.OpenViews = cur.views.Len()
		if !cur.session.ExpiresAt.IsZero() {
			st.ExpiresAt = cur.session.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}
	return st
}

func (t *Terminal) Start(ctx context.Context) error {
	t.logger.Info("terminal started")
	return nil
}

// Stop ends the session locally and closes the feed.
func (t *Terminal) Stop(ctx context.Context) error {
	if t.channel != nil {
		t.channel.Disconnect()
	}
	if t.sessions != nil {
		if err := t.sessions.Logout(ctx); err != nil && !errors.Is(err, session.ErrNoSession) {
			t.logger.Error("logout on stop failed", "error", err)
		}
	}
	return t.stream.Stop(ctx)
}
