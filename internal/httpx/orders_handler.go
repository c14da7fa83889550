package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type OrderLedger interface {
	ListOrders(ctx context.Context, limit int) ([]shop.Order, error)
	ListOrderLines(ctx context.Context, limit int) ([]shop.OrderLine, error)
	GetOrdersForUser(ctx context.Context, userID string) ([]shop.Order, error)
	GetOrder(ctx context.Context, userID string, orderID int64) (shop.Order, error)
	SetOrderStatus(ctx context.Context, orderID int64, to shop.Status) (shop.Order, error)
}

type OrderCache interface {
	Get(ctx context.Context, userID string, orderID int64) (shop.Order, bool, error)
	Set(ctx context.Context, o shop.Order) error
	Invalidate(ctx context.Context, userID string, orderID int64) error
}

type OrdersHandler struct {
	Ledger  OrderLedger
	Cache   OrderCache // optional
	Service string
}

type statusReq struct {
	Status shop.Status `json:"status"`
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/api/orderdetails", h.listOrderLines)
	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/", h.listAllOrders)
		r.Get("/{userID}", h.listOrders)
		r.Get("/{userID}/{orderID}", h.getOrder)
		r.Put("/{userID}/{orderID}/status", h.updateStatus)
	})
}

// listLimit reads ?limit=, clamped to (0, maxListLimit].
func listLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}

func (h *OrdersHandler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Ledger.ListOrders(r.Context(), listLimit(r))
	if err != nil {
		h.internal(w, r, "orders_list_all", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) listOrderLines(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Ledger.ListOrderLines(r.Context(), listLimit(r))
	if err != nil {
		h.internal(w, r, "order_lines_list", err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Ledger.GetOrdersForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.internal(w, r, "orders_list", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || orderID <= 0 {
		writeMessage(w, http.StatusNotFound, "Order not found")
		return
	}
	ctx := r.Context()

	// 1) coba cache
	if h.Cache != nil {
		if o, ok, err := h.Cache.Get(ctx, userID, orderID); err == nil && ok {
			writeJSON(w, http.StatusOK, o)
			return
		}
	}

	// 2) fallback DB
	o, err := h.Ledger.GetOrder(ctx, userID, orderID)
	if errors.Is(err, shop.ErrOrderNotFound) {
		writeMessage(w, http.StatusNotFound, "Order not found")
		return
	}
	if err != nil {
		h.internal(w, r, "order_get", err)
		return
	}
	if h.Cache != nil {
		_ = h.Cache.Set(ctx, o)
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || orderID <= 0 {
		writeMessage(w, http.StatusNotFound, "Order not found")
		return
	}
	var req statusReq
	if err := decodeJSON(w, r, &req); err != nil || !req.Status.Valid() {
		writeMessage(w, http.StatusBadRequest, "Invalid status")
		return
	}

	// order must belong to the user in the path
	prev, err := h.Ledger.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		if errors.Is(err, shop.ErrOrderNotFound) {
			writeMessage(w, http.StatusNotFound, "Order not found")
			return
		}
		h.internal(w, r, "order_status", err)
		return
	}

	o, err := h.Ledger.SetOrderStatus(r.Context(), orderID, req.Status)
	switch {
	case errors.Is(err, shop.ErrOrderNotFound):
		writeMessage(w, http.StatusNotFound, "Order not found")
		return
	case errors.Is(err, shop.ErrInvalidTransition):
		writeMessage(w, http.StatusConflict, "Invalid status transition")
		return
	case err != nil:
		h.internal(w, r, "order_status", err)
		return
	}
	o.Lines = prev.Lines // lines immutable
	if h.Cache != nil {
		// write-through: versi baru menolak snapshot event yang telat
		if err := h.Cache.Set(r.Context(), o); err != nil {
			_ = h.Cache.Invalidate(r.Context(), o.UserID, o.ID)
		}
	}
	logging.Log(logging.Fields{
		Service: h.Service, RequestID: middleware.GetReqID(r.Context()), UserID: o.UserID, OrderID: o.ID,
		Step: "order_status", Status: string(o.Status),
	})
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) internal(w http.ResponseWriter, r *http.Request, step string, err error) {
	logging.Err(logging.Fields{Service: h.Service, RequestID: middleware.GetReqID(r.Context()), Step: step, Status: "failed"}, err)
	writeMessage(w, http.StatusInternalServerError, "Internal server error")
}
