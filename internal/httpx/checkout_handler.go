package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Checkouter interface {
	PlaceOrder(ctx context.Context, req checkout.Request) (checkout.Receipt, error)
}

type Idempotency interface {
	Reserve(ctx context.Context, userID, key string) (redisx.Reservation, error)
	Complete(ctx context.Context, userID, key string, response []byte) error
	Release(ctx context.Context, userID, key string) error
}

type CheckoutHandler struct {
	Checkout Checkouter
	Idem     Idempotency            // optional
	Metrics  *metrics.ServerMetrics // optional
	Service  string
}

type checkoutResp struct {
	Message string `json:"message"`
	OrderID int64  `json:"orderId"`
}

type paymentFailedResp struct {
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/checkout", h.checkout)
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decodeJSON(w, r, &req); err != nil {
		h.outcome(checkout.KindValidation.String())
		writeMessage(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	req.TraceID = middleware.GetReqID(r.Context())

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.Idem != nil {
		res, err := h.Idem.Reserve(r.Context(), req.UserID, key)
		switch {
		case err != nil:
			// Redis down: serve the checkout without replay protection
			logging.Err(logging.Fields{Service: h.Service, RequestID: req.TraceID, Step: "idempotency", Status: "unavailable"}, err)
			key = ""
		case res.InFlight:
			h.outcome("in_flight")
			writeMessage(w, http.StatusConflict, "Checkout already in progress")
			return
		case !res.Acquired:
			h.outcome("replayed")
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(res.Response)
			return
		}
	} else {
		key = ""
	}

	rc, err := h.Checkout.PlaceOrder(r.Context(), req)
	if err != nil {
		if key != "" {
			if rerr := h.Idem.Release(context.WithoutCancel(r.Context()), req.UserID, key); rerr != nil {
				// key tetap pending sampai TTL pendek habis
				logging.Err(logging.Fields{Service: h.Service, RequestID: req.TraceID, UserID: req.UserID, Step: "idempotency", Status: "not_released"}, rerr)
			}
		}
		h.outcome(checkout.KindOf(err).String())
		writeFailure(w, err)
		return
	}

	body, _ := json.Marshal(checkoutResp{Message: "Order placed successfully", OrderID: rc.OrderID})
	if key != "" {
		if err := h.Idem.Complete(context.WithoutCancel(r.Context()), req.UserID, key, body); err != nil {
			logging.Err(logging.Fields{Service: h.Service, RequestID: req.TraceID, OrderID: rc.OrderID, Step: "idempotency", Status: "not_stored"}, err)
		}
	}
	h.outcome("success")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *CheckoutHandler) outcome(o string) {
	if h.Metrics != nil {
		h.Metrics.Checkouts.WithLabelValues(o).Inc()
	}
}

// writeFailure is the only place checkout failures become HTTP responses.
func writeFailure(w http.ResponseWriter, err error) {
	var f *checkout.Failure
	if !errors.As(err, &f) {
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	switch f.Kind {
	case checkout.KindValidation:
		writeMessage(w, http.StatusBadRequest, "Invalid payload")
	case checkout.KindStockUnavailable:
		writeMessage(w, http.StatusBadRequest, "Some items are out of stock")
	case checkout.KindGatewayRejected:
		writeJSON(w, http.StatusBadRequest, paymentFailedResp{Message: "Payment failed", Details: f.Details})
	case checkout.KindGatewayTimeout:
		writeMessage(w, http.StatusGatewayTimeout, "Payment gateway timeout")
	default:
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}
