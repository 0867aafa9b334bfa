package demo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/appetiteclub/comanda/internal/backend"
	"github.com/appetiteclub/comanda/pkg/enums/role"
	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/telemetry"
	"github.com/go-chi/chi/v5"
)

const MaxBodyBytes = 1 << 20

type ctxKey struct{}

// Handler serves the backend REST contract over a Store.
type Handler struct {
	store  *Store
	hub    *Hub
	logger aqm.Logger
	tlm    *telemetry.HTTP
}

func NewHandler(store *Store, hub *Hub, logger aqm.Logger) *Handler {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Handler{
		store:  store,
		hub:    hub,
		logger: logger,
		tlm:    telemetry.NewHTTP(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Post("/auth/logout", h.Logout)
		r.Get("/tables", h.ListTables)
		r.Get("/products", h.ListProducts)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/", h.OpenOrder)
			r.Get("/trash", h.ListArchived)
			r.Delete("/items/{id}", h.RemoveItem)
			r.Get("/{id}", h.GetOrder)
			r.Post("/{id}/items", h.AddItem)
			r.Post("/{id}/kitchen", h.SendToKitchen)
			r.Get("/{id}/kitchen-history", h.KitchenHistory)
			r.Post("/{id}/checkout", h.Checkout)
			r.Get("/{id}/invoice", h.GetInvoice)
		})
	})

	if h.hub != nil {
		r.Get("/ws", h.hub.ServeHTTP)
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Login")
	defer finish()

	log := h.log(r)

	var req backend.LoginRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	res, err := h.store.Login(req.Username, req.Password)
	if err != nil {
		log.Info("login rejected", "username", req.Username)
		aqm.RespondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	log.Info("user logged in", "user_id", res.User.ID, "role", res.User.Role)
	aqm.RespondSuccess(w, res)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Logout")
	defer finish()

	h.store.Logout(bearer(r))
	aqm.RespondSuccess(w, nil)
}

func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListTables")
	defer finish()

	aqm.RespondSuccess(w, h.store.Tables())
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListProducts")
	defer finish()

	aqm.RespondSuccess(w, h.store.Products())
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListOrders")
	defer finish()

	aqm.RespondSuccess(w, h.store.Orders())
}

func (h *Handler) ListArchived(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListArchived")
	defer finish()

	user := userFrom(r.Context())
	if rl := role.ByName(user.Role); rl == nil || !rl.Elevated() {
		h.log(r).Debug("archive denied", "user_id", user.ID, "role", user.Role)
		aqm.RespondError(w, http.StatusForbidden, "Archived orders are restricted to managers")
		return
	}

	aqm.RespondSuccess(w, h.store.Archived())
}

type openOrderRequest struct {
	TableID string `json:"table_id"`
}

func (h *Handler) OpenOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.OpenOrder")
	defer finish()

	log := h.log(r)

	var req openOrderRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	order, err := h.store.OpenOrder(req.TableID, userFrom(r.Context()))
	if err != nil {
		h.respondStoreError(w, log, "cannot open order", err)
		return
	}

	respondCreated(w, log, order)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetOrder")
	defer finish()

	order, err := h.store.Order(chi.URLParam(r, "id"))
	if err != nil {
		h.respondStoreError(w, h.log(r), "cannot load order", err)
		return
	}

	aqm.RespondSuccess(w, order)
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.AddItem")
	defer finish()

	log := h.log(r)

	var req backend.AddItemRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	res, err := h.store.AddItem(chi.URLParam(r, "id"), req)
	if err != nil {
		h.respondStoreError(w, log, "cannot add item", err)
		return
	}
	if res.Warning != "" {
		log.Info("item added with stock warning", "item_id", res.Item.ID, "warning", res.Warning)
	}

	respondCreated(w, log, res)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RemoveItem")
	defer finish()

	if err := h.store.RemoveItem(chi.URLParam(r, "id")); err != nil {
		h.respondStoreError(w, h.log(r), "cannot remove item", err)
		return
	}

	aqm.RespondSuccess(w, nil)
}

func (h *Handler) SendToKitchen(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SendToKitchen")
	defer finish()

	log := h.log(r)

	batch, err := h.store.Dispatch(chi.URLParam(r, "id"), userFrom(r.Context()))
	if err != nil {
		h.respondStoreError(w, log, "cannot send to kitchen", err)
		return
	}

	log.Info("batch sent to kitchen", "order_id", chi.URLParam(r, "id"), "batch_number", batch.Number, "items", len(batch.Items))
	respondCreated(w, log, batch)
}

func (h *Handler) KitchenHistory(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.KitchenHistory")
	defer finish()

	batches, err := h.store.History(chi.URLParam(r, "id"))
	if err != nil {
		h.respondStoreError(w, h.log(r), "cannot load kitchen history", err)
		return
	}

	aqm.RespondSuccess(w, batches)
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Checkout")
	defer finish()

	log := h.log(r)
	user := userFrom(r.Context())
	if !canCheckout(user.Role) {
		log.Debug("checkout denied", "user_id", user.ID, "role", user.Role)
		aqm.RespondError(w, http.StatusForbidden, "Role "+user.Role+" cannot check orders out")
		return
	}

	order, err := h.store.Checkout(chi.URLParam(r, "id"), user)
	if err != nil {
		h.respondStoreError(w, log, "cannot check out order", err)
		return
	}

	aqm.RespondSuccess(w, order)
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetInvoice")
	defer finish()

	inv, err := h.store.Invoice(chi.URLParam(r, "id"))
	if err != nil {
		h.respondStoreError(w, h.log(r), "cannot load invoice", err)
		return
	}

	aqm.RespondSuccess(w, inv)
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.store.Authenticate(bearer(r))
		if err != nil {
			aqm.RespondError(w, http.StatusUnauthorized, "Invalid or missing token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	})
}

func (h *Handler) respondStoreError(w http.ResponseWriter, log aqm.Logger, msg string, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		log.Debug(msg, "error", err)
		respondValidation(w, verr.Messages)
	case errors.Is(err, ErrNotFound):
		log.Debug(msg, "error", err)
		aqm.RespondError(w, http.StatusNotFound, "Not found")
	default:
		log.Error(msg, "error", err)
		aqm.RespondError(w, http.StatusInternalServerError, "Internal error")
	}
}

// respondCreated writes a 201 success envelope. The content type must be
// set before the status line goes out.
func respondCreated(w http.ResponseWriter, log aqm.Logger, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(aqm.SuccessResponse{Data: data}); err != nil {
		log.Error("failed to encode response", "error", err)
	}
}

// respondValidation writes every validation message so the client can join
// them for display.
func respondValidation(w http.ResponseWriter, messages []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  strings.Join(messages, "; "),
		"errors": messages,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, log aqm.Logger, dest interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Debug("failed to read request body", "error", err)
		aqm.RespondError(w, http.StatusBadRequest, "Failed to read request body")
		return false
	}
	if len(body) == 0 {
		return true
	}

	if err := json.Unmarshal(body, dest); err != nil {
		log.Debug("failed to decode request body", "error", err)
		aqm.RespondError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return false
	}
	return true
}

func (h *Handler) log(r *http.Request) aqm.Logger {
	return h.logger.With("request_id", aqm.RequestIDFrom(r.Context()))
}

func bearer(r *http.Request) string {
	return strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
}

func userFrom(ctx context.Context) backend.User {
	user, _ := ctx.Value(ctxKey{}).(backend.User)
	return user
}

// Router returns a standalone router serving every route, for tests and
// embedding.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}
