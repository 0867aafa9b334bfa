package terminal

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/appetiteclub/comanda/internal/backend"
	"github.com/appetiteclub/comanda/internal/kitchen"
	"github.com/appetiteclub/comanda/internal/ordering"
	"github.com/appetiteclub/comanda/internal/session"
	"github.com/appetiteclub/comanda/internal/ticket"
	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/telemetry"
	"github.com/go-chi/chi/v5"
)

const MaxBodyBytes = 1 << 20

// Handler serves the local terminal API.
type Handler struct {
	terminal *Terminal
	sse      *SSEHandler
	metrics  http.Handler
	logger   aqm.Logger
	tlm      *telemetry.HTTP
}

func NewHandler(t *Terminal, metricsHandler http.Handler, logger aqm.Logger) *Handler {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Handler{
		terminal: t,
		sse:      NewSSEHandler(t.Stream(), logger),
		metrics:  metricsHandler,
		logger:   logger,
		tlm:      telemetry.NewHTTP(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.Login)
	r.Delete("/session", h.Logout)

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Post("/{id}/items", h.AddItem)
		r.Delete("/{id}/items/{itemID}", h.RemoveItem)
		r.Post("/{id}/kitchen", h.SendToKitchen)
		r.Post("/{id}/checkout", h.Checkout)
		r.Post("/{id}/invoice/print", h.PrintInvoice)
		r.Get("/{id}/batches", h.ListBatches)
		r.Put("/{id}/batches/selected", h.SelectBatch)
		r.Post("/{id}/batches/{number}/print", h.PrintBatch)
	})

	r.Get("/tables", h.ListTables)
	r.Get("/products", h.ListProducts)
	r.Get("/trash", h.ListTrash)

	r.Get("/notifications", h.ListNotifications)
	r.Delete("/notifications/{id}", h.DismissNotification)

	r.Get("/events", h.sse.ServeHTTP)
	r.Get("/status", h.Status)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}
}

// Router returns a standalone router serving every route.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User      backend.User `json:"user"`
	Role      string       `json:"role"`
	ExpiresAt string       `json:"expires_at,omitempty"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Login")
	defer finish()

	log := h.log(r)

	var req loginRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	s, err := h.terminal.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		log.Info("login failed", "username", req.Username, "error", err)
		h.respondError(w, log, err)
		return
	}

	res := sessionResponse{User: s.User, Role: s.Role.Code()}
	if !s.ExpiresAt.IsZero() {
		res.ExpiresAt = s.ExpiresAt.UTC().Format(time.RFC3339)
	}
	aqm.RespondSuccess(w, res)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Logout")
	defer finish()

	if err := h.terminal.sessions.Logout(r.Context()); err != nil {
		h.respondError(w, h.log(r), err)
		return
	}
	aqm.RespondSuccess(w, nil)
}

type orderResponse struct {
	Order   *backend.Order `json:"order"`
	Syncing bool           `json:"syncing"`
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListOrders")
	defer finish()

	state, ok := h.state(w, r)
	if !ok {
		return
	}
	orders, err := state.orders.Get(r.Context())
	if err != nil {
		h.respondError(w, h.log(r), err)
		return
	}
	aqm.RespondSuccess(w, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetOrder")
	defer finish()

	state, ok := h.state(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	view := state.views.Open(id)

	if err := view.Load(r.Context()); err != nil {
		if ordering.ShouldLeave(err) {
			state.views.Close(id)
		}
		h.respondError(w, h.log(r), err)
		return
	}
	aqm.RespondSuccess(w, orderResponse{Order: view.Order.Snapshot(), Syncing: view.Order.Syncing()})
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes"`
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.AddItem")
	defer finish()

	log := h.log(r)
	state, ok := h.state(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	view := state.views.Open(chi.URLParam(r, "id"))
	item, err := view.Order.AddItem(r.Context(), req.ProductID, req.Quantity, req.Notes)
	if err != nil {
		h.respondError(w, log, err)
		return
	}
	view.mark(false, true)

	respondCreated(w, log, map[string]interface{}{
		"item":  item,
		"order": view.Order.Snapshot(),
	})
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RemoveItem")
	defer finish()

	state, ok := h.state(w, r)
	if !ok {
		return
	}

	view := state.views.Open(chi.URLParam(r, "id"))
	if err := view.Order.RemoveItem(r.Context(), chi.URLParam(r, "itemID")); err != nil {
		h.respondError(w, h.log(r), err)
		return
	}
	view.mark(false, true)

	aqm.RespondSuccess(w, orderResponse{Order: view.Order.Snapshot()})
}

func (h *Handler) SendToKitchen(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SendToKitchen")
	defer finish()

	state, ok := h.state(w, r)
	if !ok {
		return
	}

	view := state.views.Open(chi.URLParam(r, "id"))
	if err := view.Order.SendToKitchen(r.Context(), ""); err != nil {
		h.respondError(w, h.log(r), err)
		return
	}

	aqm.RespondSuccess(w, batchesResponse(view))
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Checkout")
	defer finish()

	state, ok := h.state(w, r)
	if !ok {
		return
	}

	view := state.views.Open(chi.URLParam(r, "id"))
	order, err := view.Order.Checkout(r.Context())
	if err != nil {
		h.respondError(w, h.log(r), err)
		return
	}

	aqm.RespondSuccess(w, orderResponse{Order: order})
}

func (h *Handler) PrintInvoice(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.PrintInvoice")
	defer finish()

	inv, err := h.terminal.PrintInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, h.log(r), err)
		return
	}

	aqm.RespondSuccess(w, inv)
}

type batchList struct {
	Batches  []kitchen.Batch `json:"batches"`
	Selected *int            `json:"selected,omitempty"`
	Empty    bool            `json:"empty"`
}

func batchesResponse(v *View) batchList {
	res := batchList{Batches: v.Batches.Batches(), Empty: v.Batches.Empty()}
	if sel, ok := v.Batches.Selected(); ok {
		n := sel.Number
		res.Selected = &n
	}
	return res
}

func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListBatches")
	defer finish()

	state, ok := h.state(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	view := state.views.Open(id)
	if err := view.Sync(r.Context()); err != nil {
		if ordering.ShouldLeave(err) {
			state.views.Close(id)
		}
		h.respondError(w, h.log(r), err)
		return
	}

	aqm.RespondSuccess(w, batchesResponse(view))
}

type selectRequest struct {
	Number int `json:"number"`
}

func (h *Handler) SelectBatch(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SelectBatch")
	defer finish()

	log := h.log(r)
	state, ok := h.state(w, r)
	if !ok {
		return
	}

	var req selectRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	view, found := state.views.Get(chi.URLParam(r, "id"))
	if !found {
		aqm.RespondError(w, http.StatusNotFound, "Order view is not open")
		return
	}
	if err := view.Batches.Select(req.Number); err != nil {
		h.respondError(w, log, err)
		return
	}

	aqm.RespondSuccess(w, batchesResponse(view))
}

func (h *Handler) PrintBatch(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.PrintBatch")
	defer finish()

	log := h.log(r)
	state, ok := h.state(w, r)
	if !ok {
		return
	}

	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		aqm.RespondError(w, http.StatusBadRequest, "Invalid batch number")
		return
	}

	view := state.views.Open(chi.URLParam(r, "id"))
	if err := view.Sync(r.Context()); err != nil {
		h.respondError(w, log, err)
		return
	}

	res, err := h.terminal.PrintBatch(r.Context(), view, number)
	if err != nil {
		h.respondError(w, log, err)
		return
	}

	aqm.RespondSuccess(w, res)
}

func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListTables")
	defer finish()

	state, ok := h.state(w, r)
	if !ok {
		return
	}
	tables, err := state.tables.Get(r.Context())
	if err != nil {
		h.respondError(w, h.log(r), err)
		return
	}
	aqm.RespondSuccess(w, tables)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListProducts")
	defer finish()

	state, ok := h.state(w, r)
	if !ok {
		return
	}
	products, err := state.products.Get(r.Context())
	if err != nil {
		h.respondError(w, h.log(r), err)
		return
	}
	aqm.RespondSuccess(w, products)
}

// ListTrash returns archived orders. Roles without access get an empty
// list, not an error.
func (h *Handler) ListTrash(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListTrash")
	defer finish()

	state, ok := h.state(w, r)
	if !ok {
		return
	}
	orders, err := state.trash.Get(r.Context())
	if err != nil {
		h.respondError(w, h.log(r), err)
		return
	}
	if orders == nil {
		orders = []backend.Order{}
	}
	aqm.RespondSuccess(w, orders)
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListNotifications")
	defer finish()

	aqm.RespondSuccess(w, h.terminal.center.List())
}

func (h *Handler) DismissNotification(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.DismissNotification")
	defer finish()

	if !h.terminal.center.Dismiss(chi.URLParam(r, "id")) {
		aqm.RespondError(w, http.StatusNotFound, "Notification not found")
		return
	}
	aqm.RespondSuccess(w, nil)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Status")
	defer finish()

	aqm.RespondSuccess(w, h.terminal.Status())
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) (*sessionState, bool) {
	state, err := h.terminal.current()
	if err != nil {
		h.respondError(w, h.log(r), err)
		return nil, false
	}
	return state, true
}

func (h *Handler) respondError(w http.ResponseWriter, log aqm.Logger, err error) {
	h.terminal.check(err)

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "error", err)
	} else {
		log.Debug("request rejected", "status", status, "error", err)
	}
	aqm.RespondError(w, status, backend.Message(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNoSession),
		errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, backend.ErrForbidden), errors.Is(err, session.ErrUnknownRole):
		return http.StatusForbidden
	case errors.Is(err, backend.ErrNotFound), errors.Is(err, kitchen.ErrUnknownBatch):
		return http.StatusNotFound
	case errors.Is(err, ordering.ErrSyncing):
		return http.StatusConflict
	case errors.Is(err, backend.ErrValidation), errors.Is(err, kitchen.ErrNothingPending):
		return http.StatusUnprocessableEntity
	case errors.Is(err, backend.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, ticket.ErrNoPrinter), errors.Is(err, backend.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondCreated writes a 201 success envelope with the JSON content type
// set before the status line.
func respondCreated(w http.ResponseWriter, log aqm.Logger, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(aqm.SuccessResponse{Data: data}); err != nil {
		log.Error("failed to encode response", "error", err)
	}
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
