package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-shop-checkout/internal/cart"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type CartService interface {
	Add(ctx context.Context, l shop.CartLine) error
	Update(ctx context.Context, l shop.CartLine) error
	Remove(ctx context.Context, userID string, productID int64, shopName string) error
	View(ctx context.Context, userID string) ([]cart.ShopCart, error)
	Total(ctx context.Context, userID string) (cart.Total, error)
}

type CartHandler struct {
	Cart    CartService
	Service string
}

type cartReq struct {
	UserID    string `json:"userId"`
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	Shop      string `json:"shop"`
}

func (c cartReq) line() shop.CartLine {
	return shop.CartLine{UserID: c.UserID, ProductID: c.ProductID, Shop: c.Shop, Quantity: c.Quantity}
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/cart", h.view)
	r.Get("/cart/total", h.total)
	r.Get("/cart-total", h.total)
	r.Post("/cart", h.add)
	r.Put("/cart", h.update)
	r.Delete("/cart", h.remove)
}

func (h *CartHandler) view(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeMessage(w, http.StatusBadRequest, "userId is required")
		return
	}
	shops, err := h.Cart.View(r.Context(), userID)
	if err != nil {
		h.internal(w, r, "cart_view", err)
		return
	}
	writeJSON(w, http.StatusOK, shops)
}

func (h *CartHandler) total(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeMessage(w, http.StatusBadRequest, "userId is required")
		return
	}
	t, err := h.Cart.Total(r.Context(), userID)
	if errors.Is(err, cart.ErrEmptyCart) {
		writeMessage(w, http.StatusBadRequest, "No items in cart")
		return
	}
	if err != nil {
		h.internal(w, r, "cart_total", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.Cart.Add(r.Context(), req.line()); err != nil {
		h.mutationError(w, r, "cart_add", err)
		return
	}
	writeMessage(w, http.StatusOK, "Item added to cart")
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.Cart.Update(r.Context(), req.line()); err != nil {
		h.mutationError(w, r, "cart_update", err)
		return
	}
	writeMessage(w, http.StatusOK, "Cart item updated")
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	var req cartReq
	if err := decodeJSON(w, r, &req); err != nil || req.UserID == "" || req.ProductID <= 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if err := h.Cart.Remove(r.Context(), req.UserID, req.ProductID, req.Shop); err != nil {
		h.mutationError(w, r, "cart_remove", err)
		return
	}
	writeMessage(w, http.StatusOK, "Item removed from cart")
}

func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request) (cartReq, bool) {
	var req cartReq
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.UserID) == "" || req.ProductID <= 0 || req.Quantity <= 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid payload")
		return req, false
	}
	return req, true
}

func (h *CartHandler) mutationError(w http.ResponseWriter, r *http.Request, step string, err error) {
	switch {
	case errors.Is(err, shop.ErrInsufficientStock), errors.Is(err, shop.ErrProductNotFound):
		writeMessage(w, http.StatusBadRequest, "Product out of stock")
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeMessage(w, http.StatusBadRequest, "Invalid payload")
	case errors.Is(err, shop.ErrCartLineNotFound):
		writeMessage(w, http.StatusNotFound, "Item not found in cart")
	default:
		h.internal(w, r, step, err)
	}
}

func (h *CartHandler) internal(w http.ResponseWriter, r *http.Request, step string, err error) {
	logging.Err(logging.Fields{Service: h.Service, RequestID: middleware.GetReqID(r.Context()), Step: step, Status: "failed"}, err)
	writeMessage(w, http.StatusInternalServerError, "Internal server error")
}
