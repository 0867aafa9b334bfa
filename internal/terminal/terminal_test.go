package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/appetiteclub/comanda/internal/backend"
	"github.com/appetiteclub/comanda/internal/demo"
	"github.com/appetiteclub/comanda/internal/kitchen"
	"github.com/appetiteclub/comanda/internal/metrics"
	"github.com/appetiteclub/comanda/internal/notify"
	"github.com/appetiteclub/comanda/internal/ordering"
	"github.com/appetiteclub/comanda/internal/realtime"
	"github.com/appetiteclub/comanda/internal/session"
	"github.com/appetiteclub/comanda/internal/ticket"
	"github.com/appetiteclub/comanda/pkg/event"
)

// recordingPrinter keeps every document it is asked to print.
type recordingPrinter struct {
	mu   sync.Mutex
	docs []*ticket.Document
}

func (p *recordingPrinter) Print(ctx context.Context, doc *ticket.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs = append(p.docs, doc)
	return nil
}

func (p *recordingPrinter) printed() []*ticket.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*ticket.Document(nil), p.docs...)
}

type testEnv struct {
	store    *demo.Store
	terminal *Terminal
	printer  *recordingPrinter
	server   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := demo.NewStore(demo.WithSecret([]byte("terminal-test")))
	hub := demo.NewHub(store.Authenticate, nil, nil, nil)
	demo.WithBroadcaster(hub)(store)
	backendSrv := httptest.NewServer(demo.NewHandler(store, hub, nil).Router())

	collector := metrics.NewCollector()
	renderer, err := ticket.NewRenderer(ticket.DefaultLayout())
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	printer := &recordingPrinter{}

	term := New(Deps{
		Sessions: session.NewManager(backend.NewClient(backendSrv.URL), nil, nil),
		Channel:  realtime.NewChannel(realtime.NewWebsocketTransport(backendSrv.URL+"/ws", nil), collector, nil),
		Center:   notify.NewCenter(notify.DefaultMax, nil, nil),
		Metrics:  collector,
		Renderer: renderer,
		Spooler:  ticket.NewSpooler(printer, ticket.WithSettle(0)),
		Debounce: time.Millisecond,
	}, nil)

	srv := httptest.NewServer(NewHandler(term, metrics.Handler(metrics.NewRegistry(collector)), nil).Router())
	t.Cleanup(func() {
		_ = term.Stop(context.Background())
		srv.Close()
		_ = hub.Stop(context.Background())
		backendSrv.Close()
	})

	return &testEnv{store: store, terminal: term, printer: printer, server: srv}
}

// call issues a local API request and decodes the data envelope into dest.
func (e *testEnv) call(t *testing.T, method, path string, body interface{}, dest interface{}) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()

	if dest != nil && resp.StatusCode < 300 {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
		if err := json.Unmarshal(env.Data, dest); err != nil {
			t.Fatalf("decode data of %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) login(t *testing.T, username string) {
	t.Helper()
	status := e.call(t, http.MethodPost, "/session", loginRequest{Username: username, Password: demo.DemoPassword}, nil)
	if status != http.StatusOK {
		t.Fatalf("login %s status = %d", username, status)
	}
}

func waitFor(t *testing.T, ch <-chan Event, eventType string) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Type == eventType {
				return evt
			}
		case <-timeout:
			t.Fatalf("no %s event received", eventType)
			return Event{}
		}
	}
}

func TestKitchenBatchingEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "ana")

	order, err := env.store.OpenOrder("t-5", backend.User{ID: "u-ana", Name: "Ana"})
	if err != nil {
		t.Fatalf("OpenOrder() error = %v", err)
	}
	base := "/orders/" + order.ID

	if status := env.call(t, http.MethodPost, base+"/items", addItemRequest{ProductID: "p-bravas", Quantity: 2}, nil); status != http.StatusCreated {
		t.Fatalf("add A status = %d", status)
	}
	if status := env.call(t, http.MethodPost, base+"/items", addItemRequest{ProductID: "p-croquetas", Quantity: 1}, nil); status != http.StatusCreated {
		t.Fatalf("add B status = %d", status)
	}

	var list batchList
	env.call(t, http.MethodGet, base+"/batches", nil, &list)
	if len(list.Batches) != 1 || !list.Batches[0].Pending() || len(list.Batches[0].Items) != 2 {
		t.Fatalf("batches before dispatch = %+v", list.Batches)
	}

	var printed kitchen.PrintResult
	if status := env.call(t, http.MethodPost, base+"/batches/0/print", nil, &printed); status != http.StatusOK {
		t.Fatalf("print pending status = %d", status)
	}
	if !printed.Dispatched || printed.Batch.Number != 1 {
		t.Errorf("print pending = %+v, want dispatched batch 1", printed)
	}
	if got := len(env.printer.printed()); got != 0 {
		t.Errorf("documents printed on dispatch = %d, want 0", got)
	}

	env.call(t, http.MethodPost, base+"/items", addItemRequest{ProductID: "p-paella", Quantity: 3, Notes: "sin gambas"}, nil)
	if status := env.call(t, http.MethodPost, base+"/kitchen", nil, nil); status != http.StatusOK {
		t.Fatalf("send to kitchen status = %d", status)
	}

	env.call(t, http.MethodGet, base+"/batches", nil, &list)
	var numbers []int
	for _, b := range list.Batches {
		numbers = append(numbers, b.Number)
	}
	if len(numbers) != 3 || numbers[0] != 0 || numbers[1] != 2 || numbers[2] != 1 {
		t.Fatalf("batch order = %v, want [0 2 1]", numbers)
	}
	if !list.Batches[0].Empty() {
		t.Errorf("pending batch after dispatch = %+v, want empty", list.Batches[0])
	}
	if len(list.Batches[2].Items) != 2 || len(list.Batches[1].Items) != 1 {
		t.Errorf("confirmed batches changed: %+v", list.Batches)
	}

	if status := env.call(t, http.MethodPut, base+"/batches/selected", selectRequest{Number: 1}, &list); status != http.StatusOK {
		t.Fatalf("select status = %d", status)
	}
	if list.Selected == nil || *list.Selected != 1 {
		t.Errorf("Selected = %v, want 1", list.Selected)
	}

	if status := env.call(t, http.MethodPost, base+"/batches/1/print", nil, &printed); status != http.StatusOK {
		t.Fatalf("print batch 1 status = %d", status)
	}
	docs := env.printer.printed()
	if len(docs) != 1 {
		t.Fatalf("documents = %d, want 1", len(docs))
	}
	if !strings.Contains(docs[0].Body, "TABLE 5") || !strings.Contains(docs[0].Body, "Patatas bravas") {
		t.Errorf("kitchen ticket body:\n%s", docs[0].Body)
	}

	if status := env.call(t, http.MethodPost, base+"/checkout", nil, nil); status != http.StatusOK {
		t.Fatalf("checkout status = %d", status)
	}
	var inv backend.Invoice
	if status := env.call(t, http.MethodPost, base+"/invoice/print", nil, &inv); status != http.StatusOK {
		t.Fatalf("invoice print status = %d", status)
	}
	docs = env.printer.printed()
	if len(docs) != 2 || docs[1].Kind != ticket.KindInvoice || docs[1].QR == "" {
		t.Errorf("invoice document = %+v", docs[len(docs)-1])
	}
}

func TestRealtimeInvalidatesAfterLogin(t *testing.T) {
	env := newTestEnv(t)
	feed := env.terminal.Stream().Subscribe("test")

	env.login(t, "ana")
	evt := waitFor(t, feed, EventConnection)
	for evt.Data.(map[string]string)["state"] != realtime.Connected.String() {
		evt = waitFor(t, feed, EventConnection)
	}

	var st Status
	env.call(t, http.MethodGet, "/status", nil, &st)
	if !st.Authenticated || st.Connection != "connected" || st.Role != "waiter" {
		t.Errorf("status = %+v", st)
	}

	if _, err := env.store.OpenOrder("t-3", backend.User{ID: "u-luis", Name: "Luis"}); err != nil {
		t.Fatalf("OpenOrder() error = %v", err)
	}

	evt = waitFor(t, feed, EventInvalidate)
	data := evt.Data.(map[string]interface{})
	if data["topic"] != event.TopicTableStatusChanged {
		t.Errorf("invalidate topic = %v", data["topic"])
	}
	names := data["collections"].([]string)
	for _, name := range names {
		if name == "trash" {
			t.Errorf("waiter invalidated gated collection: %v", names)
		}
	}

	env.store.Notify(event.NotificationInfo, "Mesa 3", "Nuevos comensales")
	evt = waitFor(t, feed, EventNotification)
	if n := evt.Data.(notify.Notification); n.Title != "Mesa 3" {
		t.Errorf("notification = %+v", n)
	}
}

func TestLocalAPIRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	paths := []string{"/tables", "/products", "/trash", "/orders", "/orders/o-1", "/orders/o-1/batches"}
	for _, path := range paths {
		if status := env.call(t, http.MethodGet, path, nil, nil); status != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, status)
		}
	}

	status := env.call(t, http.MethodPost, "/session", loginRequest{Username: "ana", Password: "wrong"}, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", status)
	}
}

func TestTrashByRole(t *testing.T) {
	tests := []struct {
		name     string
		username string
		want     int
	}{
		{name: "waiterSeesNothing", username: "ana", want: 0},
		{name: "cashierSeesNothing", username: "carla", want: 0},
		{name: "managerSeesArchive", username: "marta", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.login(t, tt.username)

			var orders []backend.Order
			if status := env.call(t, http.MethodGet, "/trash", nil, &orders); status != http.StatusOK {
				t.Fatalf("status = %d", status)
			}
			if len(orders) != tt.want {
				t.Errorf("trash = %d orders, want %d", len(orders), tt.want)
			}
		})
	}
}

func TestAddItemErrorsAndWarnings(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "ana")
	order, _ := env.store.OpenOrder("t-2", backend.User{ID: "u-ana", Name: "Ana"})
	base := "/orders/" + order.ID

	if status := env.call(t, http.MethodPost, base+"/items", addItemRequest{ProductID: "p-flan", Quantity: 0}, nil); status != http.StatusUnprocessableEntity {
		t.Errorf("qty 0 status = %d, want 422", status)
	}
	if status := env.call(t, http.MethodPost, base+"/items", addItemRequest{ProductID: "p-tortilla", Quantity: 4}, nil); status != http.StatusCreated {
		t.Fatalf("low stock add status = %d", status)
	}

	var list []notify.Notification
	env.call(t, http.MethodGet, "/notifications", nil, &list)
	found := false
	for _, n := range list {
		if n.Level == event.NotificationWarning && strings.Contains(n.Message, "insufficient stock") {
			found = true
			if status := env.call(t, http.MethodDelete, "/notifications/"+n.ID, nil, nil); status != http.StatusOK {
				t.Errorf("dismiss status = %d", status)
			}
		}
	}
	if !found {
		t.Errorf("notifications = %+v, want stock warning", list)
	}

	if status := env.call(t, http.MethodGet, "/orders/missing", nil, nil); status != http.StatusNotFound {
		t.Errorf("missing order status = %d, want 404", status)
	}
}

func TestRevokedTokenEndsSession(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "ana")

	cur, err := env.terminal.sessions.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	env.store.Logout(cur.Token)

	if status := env.call(t, http.MethodGet, "/tables", nil, nil); status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", status)
	}

	var st Status
	env.call(t, http.MethodGet, "/status", nil, &st)
	if st.Authenticated || st.Connection != "disconnected" {
		t.Errorf("status after session loss = %+v", st)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "marta")

	if status := env.call(t, http.MethodDelete, "/session", nil, nil); status != http.StatusOK {
		t.Fatalf("logout status = %d", status)
	}
	if status := env.call(t, http.MethodDelete, "/session", nil, nil); status != http.StatusUnauthorized {
		t.Errorf("second logout status = %d, want 401", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "noSession", err: session.ErrNoSession, want: http.StatusUnauthorized},
		{name: "syncing", err: ordering.ErrSyncing, want: http.StatusConflict},
		{name: "validation", err: backend.NewValidationError("bad"), want: http.StatusUnprocessableEntity},
		{name: "forbidden", err: &backend.APIError{Status: 403, Kind: backend.ErrForbidden}, want: http.StatusForbidden},
		{name: "network", err: &backend.APIError{Kind: backend.ErrNetwork}, want: http.StatusBadGateway},
		{name: "unknownBatch", err: kitchen.ErrUnknownBatch, want: http.StatusNotFound},
		{name: "noPrinter", err: ticket.ErrNoPrinter, want: http.StatusServiceUnavailable},
		{name: "other", err: context.Canceled, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestPrintCountsRenderFailureByKind(t *testing.T) {
	collector := metrics.NewCollector()
	renderer, err := ticket.NewRenderer(ticket.DefaultLayout())
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	term := New(Deps{
		Metrics:  collector,
		Renderer: renderer,
		Spooler:  ticket.NewSpooler(&recordingPrinter{}, ticket.WithSettle(0)),
	}, nil)

	renderErr := errors.New("template failed")
	err = term.print(context.Background(), ticket.KindInvoice, func() (*ticket.Document, error) {
		return nil, renderErr
	})
	if !errors.Is(err, renderErr) {
		t.Fatalf("print() error = %v, want %v", err, renderErr)
	}

	rec := httptest.NewRecorder()
	metrics.Handler(metrics.NewRegistry(collector)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	if !strings.Contains(body, `comanda_print_jobs_total{kind="invoice",outcome="failure"} 1`) {
		t.Errorf("invoice render failure not counted:\n%s", body)
	}
	if strings.Contains(body, `comanda_print_jobs_total{kind="kitchen"`) {
		t.Errorf("invoice render failure counted as kitchen:\n%s", body)
	}
}
