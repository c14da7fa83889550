package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutFunc func(ctx context.Context, req checkout.Request) (checkout.Receipt, error)

func (f checkoutFunc) PlaceOrder(ctx context.Context, req checkout.Request) (checkout.Receipt, error) {
	return f(ctx, req)
}

type memIdem struct {
	mu         sync.Mutex
	keys       map[string][]byte
	releaseErr error
}

func idemKey(userID, key string) string { return userID + "|" + key }

func (m *memIdem) Reserve(_ context.Context, userID, key string) (redisx.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[idemKey(userID, key)]
	switch {
	case !ok:
		m.keys[idemKey(userID, key)] = nil
		return redisx.Reservation{Acquired: true}, nil
	case v == nil:
		return redisx.Reservation{InFlight: true}, nil
	default:
		return redisx.Reservation{Response: v}, nil
	}
}

func (m *memIdem) Complete(_ context.Context, userID, key string, resp []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[idemKey(userID, key)] = resp
	return nil
}

func (m *memIdem) Release(_ context.Context, userID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.releaseErr != nil {
		return m.releaseErr
	}
	delete(m.keys, idemKey(userID, key))
	return nil
}

const validBody = `{"userId":"u1","cartItems":[{"shop":"shop-a","items":[{"product_id":1,"quantity":3}]}],"paymentMethodId":"pm_1","action":"purchase"}`

func newCheckoutServer(t *testing.T, fn checkoutFunc, idem Idempotency) (http.Handler, *metrics.ServerMetrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewServerMetrics(reg, "api")
	r := NewRouter(m, reg)
	(&CheckoutHandler{Checkout: fn, Idem: idem, Metrics: m, Service: "test"}).Register(r)
	return r, m
}

func post(h http.Handler, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCheckoutSuccess(t *testing.T) {
	var got checkout.Request
	h, m := newCheckoutServer(t, func(_ context.Context, req checkout.Request) (checkout.Receipt, error) {
		got = req
		return checkout.Receipt{OrderID: 42}, nil
	}, nil)

	rec := post(h, validBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Order placed successfully","orderId":42}`, rec.Body.String())

	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "pm_1", got.PaymentMethodID)
	require.Len(t, got.CartItems, 1)
	assert.Equal(t, checkout.Item{ProductID: 1, Quantity: 3}, got.CartItems[0].Items[0])
	assert.NotEmpty(t, got.TraceID, "request id is forwarded")
	assert.InDelta(t, 1, testutil.ToFloat64(m.Checkouts.WithLabelValues("success")), 0)
}

func TestCheckoutFailureMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"validation", &checkout.Failure{Kind: checkout.KindValidation}, 400, `{"message":"Invalid payload"}`},
		{"stock", &checkout.Failure{Kind: checkout.KindStockUnavailable}, 400, `{"message":"Some items are out of stock"}`},
		{
			"gateway rejected",
			&checkout.Failure{Kind: checkout.KindGatewayRejected, Details: json.RawMessage(`{"status":"requires_action"}`)},
			400, `{"message":"Payment failed","details":{"status":"requires_action"}}`,
		},
		{"gateway timeout", &checkout.Failure{Kind: checkout.KindGatewayTimeout}, 504, `{"message":"Payment gateway timeout"}`},
		{"internal", &checkout.Failure{Kind: checkout.KindInternal, Err: errors.New("pq: secret detail")}, 500, `{"message":"Internal server error"}`},
		{"untyped error", errors.New("boom"), 500, `{"message":"Internal server error"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newCheckoutServer(t, func(context.Context, checkout.Request) (checkout.Receipt, error) {
				return checkout.Receipt{}, tc.err
			}, nil)

			rec := post(h, validBody)
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.JSONEq(t, tc.wantBody, rec.Body.String())
		})
	}
}

func TestCheckoutMalformedBody(t *testing.T) {
	called := false
	h, m := newCheckoutServer(t, func(context.Context, checkout.Request) (checkout.Receipt, error) {
		called = true
		return checkout.Receipt{}, nil
	}, nil)

	for _, body := range []string{`{`, `[]`, `{"userId":1}`, validBody + `{}`} {
		rec := post(h, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"message":"Invalid payload"}`, rec.Body.String())
	}
	assert.False(t, called)
	assert.InDelta(t, 4, testutil.ToFloat64(m.Checkouts.WithLabelValues("validation")), 0)
}

func TestCheckoutIdempotencyKey(t *testing.T) {
	idem := &memIdem{keys: map[string][]byte{}}
	calls := 0
	h, _ := newCheckoutServer(t, func(context.Context, checkout.Request) (checkout.Receipt, error) {
		calls++
		return checkout.Receipt{OrderID: 7}, nil
	}, idem)

	first := post(h, validBody, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusOK, first.Code)

	replay := post(h, validBody, "Idempotency-Key", "abc")
	assert.Equal(t, http.StatusOK, replay.Code)
	assert.JSONEq(t, first.Body.String(), replay.Body.String())
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, calls)

	post(h, validBody)
	assert.Equal(t, 2, calls, "requests without a key are never deduplicated")
}

func TestCheckoutIdempotencyInFlight(t *testing.T) {
	idem := &memIdem{keys: map[string][]byte{idemKey("u1", "busy"): nil}}
	h, _ := newCheckoutServer(t, func(context.Context, checkout.Request) (checkout.Receipt, error) {
		t.Fatal("checkout must not run for an in-flight key")
		return checkout.Receipt{}, nil
	}, idem)

	rec := post(h, validBody, "Idempotency-Key", "busy")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"message":"Checkout already in progress"}`, rec.Body.String())
}

func TestCheckoutIdempotencyReleasedOnFailure(t *testing.T) {
	idem := &memIdem{keys: map[string][]byte{}}
	fail := true
	h, _ := newCheckoutServer(t, func(context.Context, checkout.Request) (checkout.Receipt, error) {
		if fail {
			return checkout.Receipt{}, &checkout.Failure{Kind: checkout.KindStockUnavailable}
		}
		return checkout.Receipt{OrderID: 8}, nil
	}, idem)

	rec := post(h, validBody, "Idempotency-Key", "k")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, held := idem.keys[idemKey("u1", "k")]
	assert.False(t, held)

	fail = false
	rec = post(h, validBody, "Idempotency-Key", "k")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Order placed successfully","orderId":8}`, rec.Body.String())
}

func TestCheckoutIdempotencyKeyIsPerUser(t *testing.T) {
	idem := &memIdem{keys: map[string][]byte{}}
	var users []string
	h, _ := newCheckoutServer(t, func(_ context.Context, req checkout.Request) (checkout.Receipt, error) {
		users = append(users, req.UserID)
		return checkout.Receipt{OrderID: int64(len(users))}, nil
	}, idem)

	rec := post(h, validBody, "Idempotency-Key", "k")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Order placed successfully","orderId":1}`, rec.Body.String())

	rec = post(h, strings.Replace(validBody, `"u1"`, `"u2"`, 1), "Idempotency-Key", "k")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Order placed successfully","orderId":2}`, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Idempotent-Replayed"))

	assert.Equal(t, []string{"u1", "u2"}, users)
}

func TestCheckoutIdempotencyReleaseErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev, flags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prev)
		log.SetFlags(flags)
	})

	idem := &memIdem{keys: map[string][]byte{}, releaseErr: errors.New("redis down")}
	h, _ := newCheckoutServer(t, func(context.Context, checkout.Request) (checkout.Receipt, error) {
		return checkout.Receipt{}, &checkout.Failure{Kind: checkout.KindStockUnavailable}
	}, idem)

	rec := post(h, validBody, "Idempotency-Key", "k")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, buf.String(), `"status":"not_released"`)
	assert.Contains(t, buf.String(), `"error":"redis down"`)
}

func TestHealthzAndMetrics(t *testing.T) {
	h, _ := newCheckoutServer(t, func(context.Context, checkout.Request) (checkout.Receipt, error) {
		return checkout.Receipt{OrderID: 1}, nil
	}, nil)
	post(h, validBody)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `shop_api_checkout_results_total{outcome="success"} 1`)
	assert.Contains(t, rec.Body.String(), `handler="/checkout"`)
}
