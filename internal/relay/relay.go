// Package relay moves committed outbox records to Kafka.
package relay

import (
	"context"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/store"
	"github.com/segmentio/kafka-go"
)

type Outbox interface {
	FetchPending(ctx context.Context, limit int) ([]store.OutboxRecord, error)
	MarkSent(ctx context.Context, ids ...int64) error
}

type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

type Relay struct {
	Outbox    Outbox
	Publisher Publisher
	Metrics   *metrics.RelayMetrics
	Interval  time.Duration
	Batch     int
	Service   string
}

// Run polls until ctx is cancelled. Records are marked sent only after the
// brokers acknowledged them, so a crash in between re-publishes; consumers
// de-duplicate by event id.
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		r.drain(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.Once(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.Metrics.Failures.Inc()
				logging.Err(logging.Fields{Service: r.Service, Step: "relay", Status: "failed"}, err)
			}
			return
		}
		if n < r.Batch {
			return
		}
	}
}

// Once publishes at most one batch and returns how many records went out.
func (r *Relay) Once(ctx context.Context) (int, error) {
	recs, err := r.Outbox.FetchPending(ctx, r.Batch)
	if err != nil || len(recs) == 0 {
		return 0, err
	}

	msgs := make([]kafka.Message, 0, len(recs))
	ids := make([]int64, 0, len(recs))
	for _, rec := range recs {
		msgs = append(msgs, Message(rec))
		ids = append(ids, rec.ID)
	}
	if err := r.Publisher.Publish(ctx, msgs...); err != nil {
		return 0, err
	}
	if err := r.Outbox.MarkSent(ctx, ids...); err != nil {
		return 0, err
	}
	r.Metrics.Published.Add(float64(len(recs)))
	return len(recs), nil
}

func Message(rec store.OutboxRecord) kafka.Message {
	return kafka.Message{
		Topic: rec.Topic,
		Key:   []byte(rec.Key),
		Value: rec.Payload,
		Time:  rec.CreatedAt,
		Headers: []kafka.Header{
			{Key: "x-event-id", Value: []byte(rec.EventID)},
			{Key: "x-event-version", Value: []byte("1")},
		},
	}
}
