package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/cart"
	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/config"
	"github.com/ariefcatur/go-shop-checkout/internal/httpx"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/payment"
	"github.com/ariefcatur/go-shop-checkout/internal/postgres"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/ariefcatur/go-shop-checkout/internal/store"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewServerMetrics(reg, "api")

	// Services
	st := store.New(db)
	gateway := payment.NewClient(cfg.PaymentGatewayURL, cfg.PaymentTimeout)
	checkoutSvc := checkout.NewService(checkout.PostgresStore{S: st}, gateway, checkout.Config{
		Currency:        cfg.Currency,
		MinorUnitFactor: cfg.MinorUnitFactor,
		ServiceName:     cfg.ServiceName,
	})
	cartSvc := cart.NewService(st.Inventory, cfg.DeliveryFee)

	// Router & handlers
	router := httpx.NewRouter(m, reg)
	(&httpx.CheckoutHandler{
		Checkout: checkoutSvc,
		Idem:     redisx.NewIdempotency(rdb),
		Metrics:  m,
		Service:  cfg.ServiceName,
	}).Register(router)
	(&httpx.CartHandler{Cart: cartSvc, Service: cfg.ServiceName}).Register(router)
	(&httpx.CatalogHandler{Catalog: st.Inventory, Service: cfg.ServiceName}).Register(router)
	(&httpx.OrdersHandler{Ledger: orderLedger{st}, Cache: redisx.NewOrderCache(rdb), Service: cfg.ServiceName}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
}

// orderLedger exposes the read side of the ledger plus the transactional
// status update.
type orderLedger struct{ *store.Store }

func (l orderLedger) ListOrders(ctx context.Context, limit int) ([]shop.Order, error) {
	return l.Ledger.ListOrders(ctx, limit)
}

func (l orderLedger) ListOrderLines(ctx context.Context, limit int) ([]shop.OrderLine, error) {
	return l.Ledger.ListOrderLines(ctx, limit)
}

func (l orderLedger) GetOrdersForUser(ctx context.Context, userID string) ([]shop.Order, error) {
	return l.Ledger.GetOrdersForUser(ctx, userID)
}

func (l orderLedger) GetOrder(ctx context.Context, userID string, orderID int64) (shop.Order, error) {
	return l.Ledger.GetOrder(ctx, userID, orderID)
}
