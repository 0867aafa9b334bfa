package demo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/appetiteclub/comanda/internal/backend"
	"github.com/appetiteclub/comanda/pkg/event"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, opts ...StoreOption) (*httptest.Server, *Store, *Hub) {
	t.Helper()
	store := NewStore(opts...)
	hub := NewHub(store.Authenticate, nil, nil, nil)
	WithBroadcaster(hub)(store)

	srv := httptest.NewServer(NewHandler(store, hub, nil).Router())
	t.Cleanup(func() {
		_ = hub.Stop(context.Background())
		srv.Close()
	})
	return srv, store, hub
}

func login(t *testing.T, base *backend.Client, username string) *backend.Client {
	t.Helper()
	res, err := backend.NewAuthDataAccess(base).Login(context.Background(), username, DemoPassword)
	if err != nil {
		t.Fatalf("Login(%s) error = %v", username, err)
	}
	return base.WithToken(res.Token)
}

func TestHandlerRequiresToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/orders")
	if err != nil {
		t.Fatalf("GET /orders error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestHandlerLoginRejectsBadPassword(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, err := backend.NewAuthDataAccess(backend.NewClient(srv.URL)).Login(context.Background(), "ana", "wrong")
	if !errors.Is(err, backend.ErrUnauthorized) {
		t.Errorf("Login() error = %v, want ErrUnauthorized", err)
	}
}

func TestHandlerOrderFlow(t *testing.T) {
	srv, store, _ := newTestServer(t)
	client := login(t, backend.NewClient(srv.URL), "ana")
	ctx := context.Background()

	opened, err := store.OpenOrder("t-5", backend.User{ID: "u-ana", Name: "Ana"})
	if err != nil {
		t.Fatalf("OpenOrder() error = %v", err)
	}

	orders := backend.NewOrderDataAccess(client)
	kitchen := backend.NewKitchenDataAccess(client)

	res, err := orders.AddItem(ctx, opened.ID, backend.AddItemRequest{ProductID: "p-pulpo", Quantity: 8})
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if !strings.Contains(res.Warning, "insufficient stock") {
		t.Errorf("Warning = %q", res.Warning)
	}

	_, err = orders.AddItem(ctx, opened.ID, backend.AddItemRequest{ProductID: "p-pulpo"})
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || !errors.Is(err, backend.ErrValidation) {
		t.Fatalf("AddItem(qty 0) error = %v, want validation", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("Status = %d, want 422", apiErr.Status)
	}

	if err := kitchen.SendToKitchen(ctx, opened.ID); err != nil {
		t.Fatalf("SendToKitchen() error = %v", err)
	}
	history, err := kitchen.KitchenHistory(ctx, opened.ID)
	if err != nil {
		t.Fatalf("KitchenHistory() error = %v", err)
	}
	if len(history) != 1 || history[0].Number != 1 || history[0].Items[0].ItemID != res.Item.ID {
		t.Errorf("KitchenHistory() = %+v", history)
	}

	if err := orders.RemoveItem(ctx, res.Item.ID); !errors.Is(err, backend.ErrValidation) {
		t.Errorf("RemoveItem(dispatched) error = %v", err)
	}

	if _, err := orders.GetOrder(ctx, "missing"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("GetOrder(missing) error = %v", err)
	}

	done, err := orders.Checkout(ctx, opened.ID)
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	if done.Status != "pending_payment" {
		t.Errorf("Status = %q", done.Status)
	}

	inv, err := orders.GetInvoice(ctx, opened.ID)
	if err != nil {
		t.Fatalf("GetInvoice() error = %v", err)
	}
	if inv.OrderNumber != opened.Number || len(inv.Lines) != 1 {
		t.Errorf("invoice = %+v", inv)
	}
}

func TestHandlerTrashIsRoleGated(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  error
	}{
		{name: "waiterForbidden", username: "ana", wantErr: backend.ErrForbidden},
		{name: "managerAllowed", username: "marta"},
		{name: "adminAllowed", username: "admin"},
	}

	srv, _, _ := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := login(t, backend.NewClient(srv.URL), tt.username)

			got, err := backend.NewOrderDataAccess(client).ListArchivedOrders(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ListArchivedOrders() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || len(got) != 1 {
				t.Errorf("ListArchivedOrders() = %d orders, error %v", len(got), err)
			}
		})
	}
}

func TestHandlerKitchenCannotCheckout(t *testing.T) {
	srv, store, _ := newTestServer(t)
	o, _ := store.OpenOrder("t-2", backend.User{ID: "u-ana"})
	_, _ = store.AddItem(o.ID, backend.AddItemRequest{ProductID: "p-flan", Quantity: 1})

	client := login(t, backend.NewClient(srv.URL), "chef")
	_, err := backend.NewOrderDataAccess(client).Checkout(context.Background(), o.ID)
	if !errors.Is(err, backend.ErrForbidden) {
		t.Errorf("Checkout() error = %v, want ErrForbidden", err)
	}
}

func TestHandlerLogoutRevokes(t *testing.T) {
	srv, _, _ := newTestServer(t)
	client := login(t, backend.NewClient(srv.URL), "carla")

	if err := backend.NewAuthDataAccess(client).Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := backend.NewTableDataAccess(client).ListTables(context.Background()); !errors.Is(err, backend.ErrUnauthorized) {
		t.Errorf("ListTables() after logout error = %v", err)
	}
}

func TestHubBroadcastsToWebsocket(t *testing.T) {
	srv, store, hub := newTestServer(t)
	res, _ := store.Login("ana", DemoPassword)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user_id=u-ana&role=waiter"
	header := http.Header{"Authorization": []string{"Bearer " + res.Token}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	store.Notify(event.NotificationWarning, "Low stock", "Pulpo a la gallega")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var env event.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if env.Topic != event.TopicNotification {
		t.Errorf("Topic = %q", env.Topic)
	}
}

func TestHubRejectsUnauthenticated(t *testing.T) {
	srv, _, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("Dial() error = nil")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

// MockPublisher records published messages.
type MockPublisher struct {
	subjects []string
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, msg []byte) error {
	m.subjects = append(m.subjects, topic)
	return nil
}

func TestHubMirrorsToPublisher(t *testing.T) {
	pub := &MockPublisher{}
	hub := NewHub(nil, pub, nil, nil)

	hub.Broadcast(event.TopicProductStatusChanged, event.ProductStatusChangedEvent{ProductID: "p-agua"})

	if len(pub.subjects) != 1 || pub.subjects[0] != "comanda.product_status_changed" {
		t.Errorf("subjects = %v", pub.subjects)
	}
}

func TestHandlerCreatedResponsesAreJSON(t *testing.T) {
	srv, store, _ := newTestServer(t)
	res, err := store.Login("ana", DemoPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	opened, err := store.OpenOrder("t-4", res.User)
	if err != nil {
		t.Fatalf("OpenOrder() error = %v", err)
	}

	post := func(path, body string) *http.Response {
		t.Helper()
		req, _ := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+res.Token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("POST %s error = %v", path, err)
		}
		return resp
	}

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "openOrder", path: "/orders", body: `{"table_id":"t-1"}`},
		{name: "addItem", path: "/orders/" + opened.ID + "/items", body: `{"product_id":"p-tortilla","quantity":4}`},
		{name: "sendToKitchen", path: "/orders/" + opened.ID + "/kitchen", body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(tt.path, tt.body)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusCreated {
				t.Fatalf("status = %d, want 201", resp.StatusCode)
			}
			if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			var env struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || len(env.Data) == 0 {
				t.Errorf("body is not a data envelope: %v", err)
			}
		})
	}
}
