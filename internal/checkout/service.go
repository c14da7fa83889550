// Package checkout turns a submitted cart into a paid, persisted order.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/payment"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/ariefcatur/go-shop-checkout/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Gateway interface {
	CreatePaymentIntent(ctx context.Context, req payment.IntentRequest) (payment.Intent, error)
	Refund(ctx context.Context, intentID string) error
}

// Tx is the write side of a checkout; every call shares one transaction.
type Tx interface {
	CreateOrder(ctx context.Context, in store.NewOrder) (shop.Order, error)
	AddOrderLine(ctx context.Context, orderID, productID int64, qty int, price decimal.Decimal) (shop.OrderLine, error)
	DecrementStock(ctx context.Context, productID int64, qty int) error
	DeleteCartLines(ctx context.Context, userID string) (int64, error)
	EnqueueEvent(ctx context.Context, eventID, topic, key string, payload []byte) error
}

type Store interface {
	GetProducts(ctx context.Context, ids []int64) (map[int64]shop.Product, error)
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Config struct {
	Currency        string
	MinorUnitFactor int64
	ServiceName     string
}

type Service struct {
	store   Store
	gateway Gateway
	cfg     Config
	now     func() time.Time
}

func NewService(s Store, g Gateway, cfg Config) *Service {
	if cfg.MinorUnitFactor <= 0 {
		cfg.MinorUnitFactor = 100
	}
	return &Service{store: s, gateway: g, cfg: cfg, now: time.Now}
}

type pricedLine struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// PlaceOrder validates, prices and charges the cart, then records the order,
// takes the stock and clears the cart in one transaction. Every error it
// returns is a *Failure.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (Receipt, error) {
	start := s.now()
	if err := req.validate(); err != nil {
		return Receipt{}, fail(KindValidation, err)
	}

	lines, total, err := s.priceCart(ctx, req)
	if err != nil {
		return Receipt{}, err
	}

	amount := MinorUnits(total, s.cfg.MinorUnitFactor)
	intent, err := s.charge(ctx, req, amount)
	if err != nil {
		s.logFailure(req, "charge", err)
		return Receipt{}, err
	}

	var order shop.Order
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		order, err = s.persist(ctx, tx, req, lines, total, intent.ID)
		return err
	})
	if err != nil {
		s.refund(ctx, req, intent.ID)
		f := fail(KindInternal, err)
		if errors.Is(err, shop.ErrInsufficientStock) {
			f.Kind = KindStockUnavailable
		}
		s.logFailure(req, "persist", f)
		return Receipt{}, f
	}

	logging.Log(logging.Fields{
		Service: s.cfg.ServiceName, RequestID: req.TraceID, UserID: req.UserID, OrderID: order.ID,
		Step: "checkout", Status: "placed", DurationMS: s.now().Sub(start).Milliseconds(),
	})
	return Receipt{OrderID: order.ID, Total: total, Amount: amount, PaymentIntentID: intent.ID}, nil
}

// priceCart checks every line against live stock and snapshots its price.
// Demand is summed per product so split lines cannot oversell together.
func (s *Service) priceCart(ctx context.Context, req Request) ([]pricedLine, decimal.Decimal, error) {
	products, err := s.store.GetProducts(ctx, req.productIDs())
	if err != nil {
		return nil, decimal.Zero, fail(KindInternal, fmt.Errorf("load products: %w", err))
	}

	demand := map[int64]int{}
	var shortages []Shortage
	var lines []pricedLine
	total := decimal.Zero
	for _, g := range req.CartItems {
		for _, it := range g.Items {
			p, ok := products[it.ProductID]
			demand[it.ProductID] += it.Quantity
			if !ok || demand[it.ProductID] > p.Stock {
				shortages = append(shortages, Shortage{ProductID: it.ProductID, Required: demand[it.ProductID], Available: p.Stock})
				continue
			}
			lines = append(lines, pricedLine{ProductID: it.ProductID, Quantity: it.Quantity, Price: p.Price})
			total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
	}
	if len(shortages) > 0 {
		f := fail(KindStockUnavailable, shop.ErrInsufficientStock)
		f.Shortages = shortages
		s.logFailure(req, "validate_stock", f)
		return nil, decimal.Zero, f
	}
	return lines, total, nil
}

func (s *Service) charge(ctx context.Context, req Request, amount int64) (payment.Intent, error) {
	intent, err := s.gateway.CreatePaymentIntent(ctx, payment.IntentRequest{
		Amount:        amount,
		Currency:      s.cfg.Currency,
		PaymentMethod: req.PaymentMethodID,
	})
	var rej *payment.RejectedError
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		// client pergi di tengah charge; bukan payload dari gateway
		s.outcomeUnknown(req, amount, err)
		return intent, fail(KindInternal, fmt.Errorf("charge abandoned: %w", err))
	case errors.Is(err, payment.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		s.outcomeUnknown(req, amount, err)
		return intent, fail(KindGatewayTimeout, err)
	case errors.As(err, &rej):
		return intent, &Failure{Kind: KindGatewayRejected, Details: rej.Body, Err: err}
	default:
		details, _ := json.Marshal(map[string]string{"error": "payment gateway unavailable"})
		return intent, &Failure{Kind: KindGatewayRejected, Details: details, Err: err}
	}

	if !intent.Succeeded() {
		details := intent.Raw
		if len(details) == 0 {
			details, _ = json.Marshal(intent)
		}
		return intent, &Failure{
			Kind:    KindGatewayRejected,
			Details: details,
			Err:     fmt.Errorf("payment intent %q status %q", intent.ID, intent.Status),
		}
	}
	return intent, nil
}

func (s *Service) persist(ctx context.Context, tx Tx, req Request, lines []pricedLine, total decimal.Decimal, intentID string) (shop.Order, error) {
	order, err := tx.CreateOrder(ctx, store.NewOrder{
		UserID:          req.UserID,
		Total:           total,
		Status:          shop.StatusPending,
		Action:          req.Action,
		PaymentIntentID: intentID,
	})
	if err != nil {
		return shop.Order{}, err
	}

	for _, l := range lines {
		ol, err := tx.AddOrderLine(ctx, order.ID, l.ProductID, l.Quantity, l.Price)
		if err != nil {
			return shop.Order{}, err
		}
		if err := tx.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
			return shop.Order{}, err
		}
		order.Lines = append(order.Lines, ol)
	}

	if _, err := tx.DeleteCartLines(ctx, req.UserID); err != nil {
		return shop.Order{}, fmt.Errorf("clear cart: %w", err)
	}

	eventID, payload, err := s.orderPlacedEvent(req.TraceID, order)
	if err != nil {
		return shop.Order{}, err
	}
	if err := tx.EnqueueEvent(ctx, eventID, shop.TopicOrderPlaced, shop.PartitionKey(order.ID), payload); err != nil {
		return shop.Order{}, fmt.Errorf("enqueue %s: %w", shop.EventOrderPlaced, err)
	}
	return order, nil
}

func (s *Service) orderPlacedEvent(traceID string, o shop.Order) (string, []byte, error) {
	payload, err := json.Marshal(shop.OrderPlacedPayload{
		OrderID:         o.ID,
		UserID:          o.UserID,
		Status:          o.Status,
		Action:          o.Action,
		Total:           o.Total,
		PaymentIntentID: o.PaymentIntentID,
		Lines:           o.Lines,
		CreatedAt:       o.CreatedAt,
	})
	if err != nil {
		return "", nil, err
	}
	ev := shop.Envelope{
		EventID:       uuid.NewString(),
		EventType:     shop.EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    s.now().UTC(),
		Producer:      s.cfg.ServiceName,
		TraceID:       traceID,
		CorrelationID: shop.PartitionKey(o.ID),
		Payload:       payload,
	}
	b, err := json.Marshal(ev)
	return ev.EventID, b, err
}

// refund reverses the charge after the order could not be recorded. It runs
// detached from the request context so a cancelled client cannot skip it.
func (s *Service) refund(ctx context.Context, req Request, intentID string) {
	if intentID == "" {
		return
	}
	if err := s.gateway.Refund(context.WithoutCancel(ctx), intentID); err != nil {
		logging.Err(logging.Fields{
			Service: s.cfg.ServiceName, RequestID: req.TraceID, UserID: req.UserID,
			Step: "refund", Status: "failed", Message: "payment " + intentID + " needs manual refund",
		}, err)
		return
	}
	logging.Log(logging.Fields{
		Service: s.cfg.ServiceName, RequestID: req.TraceID, UserID: req.UserID,
		Step: "refund", Status: "refunded", Message: intentID,
	})
}

// outcomeUnknown records a charge whose result never came back. The card may
// have been charged without an order or intent id to refund.
func (s *Service) outcomeUnknown(req Request, amount int64, err error) {
	logging.Err(logging.Fields{
		Service: s.cfg.ServiceName, RequestID: req.TraceID, UserID: req.UserID,
		Step: "charge", Status: "outcome_unknown",
		Message: fmt.Sprintf("payment outcome unknown: amount=%d currency=%s payment_method=%s, reconcile manually",
			amount, s.cfg.Currency, req.PaymentMethodID),
	}, err)
}

func (s *Service) logFailure(req Request, step string, err error) {
	logging.Err(logging.Fields{
		Service: s.cfg.ServiceName, RequestID: req.TraceID, UserID: req.UserID,
		Step: step, Status: KindOf(err).String(),
	}, err)
}
