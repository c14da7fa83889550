// Package orderevents consumes order.placed and keeps the order cache warm.
package orderevents

import (
	"context"

	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	kafkago "github.com/segmentio/kafka-go"
)

type Deduper interface {
	First(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// OrderCache.Warm writes o only when no entry and no newer snapshot exist.
type OrderCache interface {
	Warm(ctx context.Context, o shop.Order) (bool, error)
}

type Service struct {
	Dedup       Deduper
	Cache       OrderCache
	ServiceName string
}

// HandleOrderPlaced: dipasang sebagai handler consumer.
func (s *Service) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		// poison message; commit and move on
		logging.Err(logging.Fields{Service: s.ServiceName, Step: "decode", Status: "skipped"}, err)
		return nil
	}
	if env.EventType != shop.EventOrderPlaced {
		return nil
	}

	first, err := s.Dedup.First(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	p, err := kafkax.UnwrapPayload[shop.OrderPlacedPayload](env.Payload)
	if err != nil {
		logging.Err(logging.Fields{Service: s.ServiceName, EventID: env.EventID, Step: "decode", Status: "skipped"}, err)
		return nil
	}
	written, err := s.Cache.Warm(ctx, p.Order())
	if err != nil {
		// lepas dedup supaya retry diproses ulang
		_ = s.Dedup.Forget(ctx, env.EventID)
		return err
	}

	status := "cached"
	if !written {
		status = "stale_skipped"
	}
	logging.Log(logging.Fields{
		Service: s.ServiceName, RequestID: env.TraceID, UserID: p.UserID, OrderID: p.OrderID,
		EventID: env.EventID, Step: "order_placed", Status: status,
	})
	return nil
}
