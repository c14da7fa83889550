package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-shop-checkout/internal/config"
	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/orderevents"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	name := cfg.ServiceName + "-order-events"
	svc := &orderevents.Service{
		Dedup:       redisx.NewDedup(rdb, "order-events"),
		Cache:       redisx.NewOrderCache(rdb),
		ServiceName: name,
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.OrderEventsGroup, shop.TopicOrderPlaced, cfg.OrderEventsWorkers)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Printf("order events consumer started: group=%s topic=%s workers=%d",
			cfg.OrderEventsGroup, shop.TopicOrderPlaced, cfg.OrderEventsWorkers)
		if err := cons.Start(ctx, svc.HandleOrderPlaced); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down consumer...")
	cancel()
	<-done
}
