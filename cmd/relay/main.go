package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/config"
	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/postgres"
	"github.com/ariefcatur/go-shop-checkout/internal/relay"
	"github.com/ariefcatur/go-shop-checkout/internal/store"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers)
	defer prod.Close()

	reg := prometheus.NewRegistry()
	r := &relay.Relay{
		Outbox:    store.New(db).Outbox,
		Publisher: prod,
		Metrics:   metrics.NewRelayMetrics(reg),
		Interval:  cfg.RelayInterval,
		Batch:     cfg.RelayBatch,
		Service:   cfg.ServiceName + "-relay",
	}

	// metrics only
	srv := &http.Server{Addr: cfg.RelayMetricsAddr, Handler: metrics.Handler(reg), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics listen: %v", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Printf("outbox relay started: interval=%s batch=%d", cfg.RelayInterval, cfg.RelayBatch)
		_ = r.Run(ctx)
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down relay...")
	cancel()
	<-done

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
}

