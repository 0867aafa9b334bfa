package demo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/appetiteclub/comanda/internal/backend"
	"github.com/appetiteclub/comanda/pkg/enums/orderstatus"
	"github.com/appetiteclub/comanda/pkg/enums/role"
	"github.com/appetiteclub/comanda/pkg/event"
	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/shopspring/decimal"
)

const tokenTTL = 12 * time.Hour

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("invalid credentials")
)

// ValidationError is returned for requests the store refuses to apply.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Messages: []string{fmt.Sprintf(format, args...)}}
}

// Broadcaster receives every realtime event the store emits.
type Broadcaster interface {
	Broadcast(topic string, payload interface{})
}

type account struct {
	password string
	user     backend.User
}

// Store is an in-memory stand-in for the restaurant backend.
type Store struct {
	clock         clock.Clock
	secret        []byte
	events        Broadcaster
	reportPending bool
	taxRate       decimal.Decimal
	issuerTaxID   string

	mu          sync.Mutex
	accounts    map[string]account
	revoked     map[string]bool
	tables      []*backend.Table
	products    []*backend.Product
	orders      map[string]*backend.Order
	itemOrder   map[string]string
	batches     map[string][]backend.KitchenBatch
	invoices    map[string]*backend.Invoice
	nextOrder   int
	nextInvoice int
}

type StoreOption func(*Store)

func WithClock(clk clock.Clock) StoreOption {
	return func(s *Store) {
		if clk != nil {
			s.clock = clk
		}
	}
}

func WithBroadcaster(b Broadcaster) StoreOption {
	return func(s *Store) {
		s.events = b
	}
}

// WithPendingBatch makes kitchen history include the pending batch as
// batch zero instead of leaving it for the client to derive.
func WithPendingBatch() StoreOption {
	return func(s *Store) {
		s.reportPending = true
	}
}

func WithSecret(secret []byte) StoreOption {
	return func(s *Store) {
		if len(secret) > 0 {
			s.secret = secret
		}
	}
}

// NewStore returns a seeded store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		clock:       clock.WallClock,
		secret:      []byte(uuid.NewString()),
		taxRate:     decimal.RequireFromString("0.21"),
		issuerTaxID: "B-00000000",
		accounts:    make(map[string]account),
		revoked:     make(map[string]bool),
		orders:      make(map[string]*backend.Order),
		itemOrder:   make(map[string]string),
		batches:     make(map[string][]backend.KitchenBatch),
		invoices:    make(map[string]*backend.Invoice),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.seed()
	return s
}

// Login checks credentials and issues a signed token.
func (s *Store) Login(username, password string) (backend.LoginResult, error) {
	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(strings.TrimSpace(username))]
	s.mu.Unlock()
	if !ok || acc.password != password {
		return backend.LoginResult{}, ErrUnauthorized
	}

	claims := jwt.MapClaims{
		"sub":  acc.user.ID,
		"name": acc.user.Name,
		"role": acc.user.Role,
		"exp":  s.clock.Now().Add(tokenTTL).Unix(),
		"jti":  uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return backend.LoginResult{}, err
	}
	return backend.LoginResult{Token: token, User: acc.user}, nil
}

// Authenticate verifies token and returns its user.
func (s *Store) Authenticate(token string) (backend.User, error) {
	if token == "" {
		return backend.User{}, ErrUnauthorized
	}

	s.mu.Lock()
	revoked := s.revoked[token]
	s.mu.Unlock()
	if revoked {
		return backend.User{}, ErrUnauthorized
	}

	parser := &jwt.Parser{SkipClaimsValidation: true}
	claims := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return backend.User{}, ErrUnauthorized
	}
	if exp, ok := claims["exp"].(float64); ok && !s.clock.Now().Before(time.Unix(int64(exp), 0)) {
		return backend.User{}, ErrUnauthorized
	}

	user := backend.User{}
	user.ID, _ = claims["sub"].(string)
	user.Name, _ = claims["name"].(string)
	user.Role, _ = claims["role"].(string)
	return user, nil
}

// Logout revokes token.
func (s *Store) Logout(token string) {
	s.mu.Lock()
	s.revoked[token] = true
	s.mu.Unlock()
}

func (s *Store) Tables() []backend.Table {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]backend.Table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, *t)
	}
	return out
}

func (s *Store) Products() []backend.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]backend.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	return out
}

// Orders lists orders that are not completed, newest first.
func (s *Store) Orders() []backend.Order {
	return s.listOrders(func(o *backend.Order) bool {
		return o.Status != orderstatus.Statuses.Completed.Code()
	})
}

// Archived lists completed orders, newest first.
func (s *Store) Archived() []backend.Order {
	return s.listOrders(func(o *backend.Order) bool {
		return o.Status == orderstatus.Statuses.Completed.Code()
	})
}

func (s *Store) listOrders(keep func(*backend.Order) bool) []backend.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]backend.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, copyOrder(o))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Number > out[j].Number
	})
	return out
}

func (s *Store) Order(id string) (backend.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return backend.Order{}, ErrNotFound
	}
	return copyOrder(o), nil
}

// OpenOrder starts an order for tableID. An empty tableID opens a takeaway
// order.
func (s *Store) OpenOrder(tableID string, waiter backend.User) (backend.Order, error) {
	s.mu.Lock()

	var table *backend.Table
	if tableID != "" {
		table = s.findTable(tableID)
		if table == nil {
			s.mu.Unlock()
			return backend.Order{}, ErrNotFound
		}
		if table.OrderID != nil {
			s.mu.Unlock()
			return backend.Order{}, invalid("table %s already has an open order", table.Number)
		}
	}

	o := s.newOrderLocked(table, waiter)
	out := copyOrder(o)
	var evt *event.TableStatusChangedEvent
	if table != nil {
		evt = s.setTableStatusLocked(table, "occupied", &o.ID)
	}
	s.mu.Unlock()

	if evt != nil {
		s.emit(event.TopicTableStatusChanged, *evt)
	}
	return out, nil
}

// AddItem appends a line item. Insufficient stock is reported as a warning
// and does not block the item.
func (s *Store) AddItem(orderID string, req backend.AddItemRequest) (backend.AddItemResult, error) {
	var msgs []string
	if strings.TrimSpace(req.ProductID) == "" {
		msgs = append(msgs, "product_id is required")
	}
	if req.Quantity < 1 {
		msgs = append(msgs, "quantity must be at least 1")
	}
	if len(msgs) > 0 {
		return backend.AddItemResult{}, &ValidationError{Messages: msgs}
	}

	s.mu.Lock()
	o, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return backend.AddItemResult{}, ErrNotFound
	}
	if !editable(o) {
		s.mu.Unlock()
		return backend.AddItemResult{}, invalid("order %s is %s", o.Number, o.Status)
	}
	p := s.findProduct(req.ProductID)
	if p == nil {
		s.mu.Unlock()
		return backend.AddItemResult{}, invalid("unknown product %s", req.ProductID)
	}

	now := s.clock.Now().UTC()
	item := backend.LineItem{
		ID:          uuid.NewString(),
		OrderID:     o.ID,
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    req.Quantity,
		UnitPrice:   p.Price,
		Notes:       strings.TrimSpace(req.Notes),
		CreatedAt:   now,
	}
	o.Items = append(o.Items, item)
	o.UpdatedAt = now
	o.Total = orderTotal(o.Items)
	s.itemOrder[item.ID] = o.ID

	var warning string
	if p.Stock < req.Quantity {
		warning = fmt.Sprintf("insufficient stock for %s: %d available", p.Name, p.Stock)
	}
	prev := p.Status
	p.Stock -= req.Quantity
	if p.Stock < 0 {
		p.Stock = 0
	}
	p.Status = stockStatus(p.Stock)
	productEvt := event.ProductStatusChangedEvent{ProductID: p.ID, Name: p.Name, Status: p.Status, Stock: p.Stock}
	s.mu.Unlock()

	if productEvt.Status != prev {
		s.emit(event.TopicProductStatusChanged, productEvt)
	}
	return backend.AddItemResult{Item: item, Warning: warning}, nil
}

// RemoveItem deletes an item that has not been sent to the kitchen.
func (s *Store) RemoveItem(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	orderID, ok := s.itemOrder[itemID]
	if !ok {
		return ErrNotFound
	}
	o := s.orders[orderID]
	if !editable(o) {
		return invalid("order %s is %s", o.Number, o.Status)
	}
	if s.dispatchedLocked(orderID)[itemID] {
		return invalid("item already sent to kitchen")
	}

	for i, item := range o.Items {
		if item.ID != itemID {
			continue
		}
		o.Items = append(o.Items[:i], o.Items[i+1:]...)
		if p := s.findProduct(item.ProductID); p != nil {
			p.Stock += item.Quantity
			p.Status = stockStatus(p.Stock)
		}
		break
	}
	delete(s.itemOrder, itemID)
	o.Total = orderTotal(o.Items)
	o.UpdatedAt = s.clock.Now().UTC()
	return nil
}

// Dispatch confirms the pending batch of orderID as the next numbered batch.
func (s *Store) Dispatch(orderID string, staff backend.User) (backend.KitchenBatch, error) {
	s.mu.Lock()

	o, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return backend.KitchenBatch{}, ErrNotFound
	}
	pending := s.pendingLocked(o)
	if len(pending) == 0 {
		s.mu.Unlock()
		return backend.KitchenBatch{}, invalid("no pending items to send")
	}

	sentAt := s.clock.Now().UTC()
	batch := backend.KitchenBatch{
		Number:     len(s.batches[orderID]) + 1,
		SentAt:     &sentAt,
		Items:      pending,
		WaiterID:   staff.ID,
		WaiterName: staff.Name,
	}
	s.batches[orderID] = append(s.batches[orderID], batch)
	evt := event.KitchenNewOrderEvent{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		TableLabel:  o.TableLabel,
		BatchNumber: batch.Number,
		WaiterName:  staff.Name,
	}
	s.mu.Unlock()

	s.emit(event.TopicKitchenNewOrder, evt)
	return copyBatch(batch), nil
}

// History returns the confirmed batches of orderID in dispatch order, plus
// the pending batch when the store is set to report it.
func (s *Store) History(orderID string) ([]backend.KitchenBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]backend.KitchenBatch, 0, len(s.batches[orderID])+1)
	for _, b := range s.batches[orderID] {
		out = append(out, copyBatch(b))
	}
	if s.reportPending {
		out = append(out, backend.KitchenBatch{
			Number:     0,
			Items:      s.pendingLocked(o),
			WaiterID:   o.WaiterID,
			WaiterName: o.WaiterName,
		})
	}
	return out, nil
}

// Checkout moves an open order to pending payment and issues its invoice.
func (s *Store) Checkout(orderID string, cashier backend.User) (backend.Order, error) {
	s.mu.Lock()

	o, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return backend.Order{}, ErrNotFound
	}
	if !editable(o) {
		s.mu.Unlock()
		return backend.Order{}, invalid("order %s is %s", o.Number, o.Status)
	}
	if len(o.Items) == 0 {
		s.mu.Unlock()
		return backend.Order{}, invalid("order %s has no items", o.Number)
	}

	now := s.clock.Now().UTC()
	o.Status = orderstatus.Statuses.PendingPayment.Code()
	o.UpdatedAt = now
	s.invoices[o.ID] = s.invoiceLocked(o, cashier, now)

	var evt *event.TableStatusChangedEvent
	if o.TableID != nil {
		if table := s.findTable(*o.TableID); table != nil {
			evt = s.setTableStatusLocked(table, "pending_payment", &o.ID)
		}
	}
	out := copyOrder(o)
	s.mu.Unlock()

	if evt != nil {
		s.emit(event.TopicTableStatusChanged, *evt)
	}
	return out, nil
}

// Invoice returns the invoice issued at checkout.
func (s *Store) Invoice(orderID string) (backend.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID]; !ok {
		return backend.Invoice{}, ErrNotFound
	}
	inv, ok := s.invoices[orderID]
	if !ok {
		return backend.Invoice{}, invalid("order has not been checked out")
	}
	out := *inv
	out.Lines = append([]backend.InvoiceLine(nil), inv.Lines...)
	out.Taxes = append([]backend.TaxLine(nil), inv.Taxes...)
	return out, nil
}

// Notify pushes a user-facing notification to every connected terminal.
func (s *Store) Notify(level, title, message string) {
	s.emit(event.TopicNotification, event.NotificationEvent{
		Title:     title,
		Message:   message,
		Type:      level,
		Timestamp: s.clock.Now().UTC(),
	})
}

func (s *Store) emit(topic string, payload interface{}) {
	if s.events != nil {
		s.events.Broadcast(topic, payload)
	}
}

func (s *Store) newOrderLocked(table *backend.Table, waiter backend.User) *backend.Order {
	s.nextOrder++
	now := s.clock.Now().UTC()
	o := &backend.Order{
		ID:         uuid.NewString(),
		Number:     fmt.Sprintf("A-%04d", s.nextOrder),
		TableLabel: "S/N",
		Status:     orderstatus.Statuses.Open.Code(),
		Items:      []backend.LineItem{},
		Total:      decimal.Zero,
		WaiterID:   waiter.ID,
		WaiterName: waiter.Name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if table != nil {
		id := table.ID
		o.TableID = &id
		o.TableLabel = table.Number
	}
	s.orders[o.ID] = o
	return o
}

func (s *Store) invoiceLocked(o *backend.Order, cashier backend.User, at time.Time) *backend.Invoice {
	s.nextInvoice++
	inv := &backend.Invoice{
		Number:      fmt.Sprintf("F-%06d", s.nextInvoice),
		OrderID:     o.ID,
		OrderNumber: o.Number,
		TableLabel:  o.TableLabel,
		IssuerTaxID: s.issuerTaxID,
		CashierName: cashier.Name,
		IssuedAt:    at,
	}

	subtotal := decimal.Zero
	for _, item := range o.Items {
		amount := item.Subtotal()
		inv.Lines = append(inv.Lines, backend.InvoiceLine{
			Description: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      amount,
		})
		subtotal = subtotal.Add(amount)
	}
	tax := subtotal.Mul(s.taxRate).Round(2)
	inv.Subtotal = subtotal
	inv.Taxes = []backend.TaxLine{{Name: "IVA", Rate: s.taxRate, Amount: tax}}
	inv.Total = subtotal.Add(tax)
	inv.QRPayload = fmt.Sprintf("comanda:invoice?n=%s&nif=%s&total=%s&date=%s",
		inv.Number, inv.IssuerTaxID, inv.Total.StringFixed(2), at.Format("2006-01-02"))
	return inv
}

func (s *Store) setTableStatusLocked(t *backend.Table, status string, orderID *string) *event.TableStatusChangedEvent {
	evt := &event.TableStatusChangedEvent{
		TableID:        t.ID,
		TableNumber:    t.Number,
		Status:         status,
		PreviousStatus: t.Status,
	}
	t.Status = status
	t.OrderID = orderID
	if orderID != nil {
		evt.OrderID = *orderID
	}
	return evt
}

// pendingLocked returns the order's items that are in no confirmed batch.
func (s *Store) pendingLocked(o *backend.Order) []backend.BatchItem {
	sent := s.dispatchedLocked(o.ID)
	out := []backend.BatchItem{}
	for _, item := range o.Items {
		if sent[item.ID] {
			continue
		}
		out = append(out, backend.BatchItem{
			ItemID:      item.ID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Notes:       item.Notes,
		})
	}
	return out
}

func (s *Store) dispatchedLocked(orderID string) map[string]bool {
	sent := make(map[string]bool)
	for _, b := range s.batches[orderID] {
		for _, item := range b.Items {
			sent[item.ItemID] = true
		}
	}
	return sent
}

func (s *Store) findTable(id string) *backend.Table {
	for _, t := range s.tables {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *Store) findProduct(id string) *backend.Product {
	for _, p := range s.products {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func editable(o *backend.Order) bool {
	st := orderstatus.ByName(o.Status)
	return st != nil && st.Editable()
}

func stockStatus(stock int) string {
	switch {
	case stock <= 0:
		return backend.ProductOutOfStock
	case stock <= 5:
		return backend.ProductLowStock
	default:
		return backend.ProductAvailable
	}
}

func orderTotal(items []backend.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func copyOrder(o *backend.Order) backend.Order {
	out := *o
	out.Items = append([]backend.LineItem{}, o.Items...)
	if o.TableID != nil {
		id := *o.TableID
		out.TableID = &id
	}
	return out
}

func copyBatch(b backend.KitchenBatch) backend.KitchenBatch {
	out := b
	out.Items = append([]backend.BatchItem{}, b.Items...)
	if b.SentAt != nil {
		at := *b.SentAt
		out.SentAt = &at
	}
	return out
}

// Staff roles allowed to check orders out.
func canCheckout(r string) bool {
	switch r {
	case role.Roles.Kitchen.Code():
		return false
	default:
		return role.ByName(r) != nil
	}
}
