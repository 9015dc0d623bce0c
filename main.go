package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bulkhaul/availability"
	"bulkhaul/booking"
	"bulkhaul/clock"
	"bulkhaul/config"
	"bulkhaul/db"
	"bulkhaul/geo"
	"bulkhaul/globals"
	"bulkhaul/inventory"
	"bulkhaul/manifest"
	"bulkhaul/mq"
	"bulkhaul/orders"
	"bulkhaul/pay"
	"bulkhaul/products"
	"bulkhaul/ratelim"
	"bulkhaul/rdx"
	"bulkhaul/routes"
	"bulkhaul/schedule"
	"bulkhaul/slots"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
)

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		// HSTS (must be on HTTPS)
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "no-referrer")
		// availability is advisory and must never be served stale from a cache
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request method, path, remote address, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s from %s - %v", r.Method, r.RequestURI, r.RemoteAddr, time.Since(start))
	})
}

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

// app holds everything main needs to serve and shut down.
type app struct {
	handler  http.Handler
	sweeper  *orders.Sweeper
	limiter  *ratelim.RateLimiter
	listen   func(ctx context.Context)
	shutdown []func(ctx context.Context)
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	globals.JwtSecret = []byte(cfg.JWTSecret)

	clk := clock.NewSystem()
	cal := slots.NewCalendar(cfg.SlotCapacity, decimal.NewFromFloat(cfg.PrecisionFee))
	rules := geo.Rules{MaxSameDayMiles: cfg.MaxSameDayMiles, MinLeadTimeHours: cfg.MinLeadTimeHours}
	depot := geo.Depot{Origin: geo.Point{Lat: cfg.DepotLat, Lng: cfg.DepotLng}}
	hub := booking.NewHub()

	a := &app{}
	var (
		scheduleStore schedule.Store
		orderStore    inventory.OrderStore
		catalog       inventory.Catalog
		locker        inventory.Locker
		events        mq.Emitter
		idemStore     pay.IdempotencyStore
	)

	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Println("Using in-memory stores; data is lost on restart")
		scheduleStore = schedule.NewMemoryStore()
		orderStore = inventory.NewMemoryOrderStore()
		catalog = inventory.NewStaticCatalog(products.Demo()...)
		locker = inventory.NewLocalLocker(cfg.LockWait)
		idemStore = pay.NewMemoryIdempotencyStore()
		local := mq.NewLocalEmitter()
		local.Subscribe(hub.Publish)
		events = local

	case config.DriverMongo:
		store, err := db.Connect(ctx, cfg.MongoURL, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		a.shutdown = append(a.shutdown, func(ctx context.Context) { _ = store.Close(ctx) })
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		cat := products.NewCatalog(store.Products)
		if err := cat.Seed(ctx, products.Demo()); err != nil {
			return nil, err
		}

		conn, err := rdx.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		a.shutdown = append(a.shutdown, func(context.Context) { _ = conn.Close() })

		scheduleStore = schedule.NewMongoStore(store.Schedules)
		orderStore = inventory.NewMongoOrderStore(store.PendingOrders)
		catalog = cat
		locker = rdx.NewLocker(conn, cfg.LockTTL, cfg.LockWait)
		idemStore = pay.NewMongoIdempotencyStore(store.Idempotency)
		events = mq.NewRedisEmitter(conn)
		a.listen = func(ctx context.Context) { mq.Listen(ctx, conn, hub.Publish) }

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	sched := schedule.NewService(scheduleStore, cal, rules, clk, cfg.BusinessTZ, schedule.WithDepot(depot))
	ledger := inventory.NewLedger(catalog, orderStore, locker, clk, inventory.WithPendingTTL(cfg.PendingOrderTTL))
	orderSvc := orders.NewService(ledger, sched, events)

	h := booking.NewHandler(booking.Deps{
		Availability: availability.NewService(sched, ledger, depot),
		Schedule:     sched,
		Ledger:       ledger,
		Orders:       orderSvc,
		Signer:       manifest.NewSigner(cfg.ManifestSecret),
		Events:       events,
		Clock:        clk,
	})

	a.limiter = ratelim.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	a.sweeper = orders.NewSweeper(orderSvc, cfg.SweepInterval)

	router := httprouter.New()
	router.GET("/health", Index)
	routes.RoutesWrapper(router, routes.Deps{
		Handler:     h,
		Hub:         hub,
		Webhook:     pay.NewWebhookHandler(orderSvc),
		Idempotency: pay.NewIdempotency(idemStore),
	}, a.limiter)

	// apply middleware: CORS → security headers → logging → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // lock down in production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key"},
		AllowCredentials: true,
	}).Handler(router)

	a.handler = loggingMiddleware(securityHeaders(corsHandler))
	return a, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	startCtx, cancelStart := context.WithTimeout(ctx, 15*time.Second)
	a, err := buildApp(startCtx, cfg)
	cancelStart()
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	go a.sweeper.Run(ctx)
	if a.listen != nil {
		go a.listen(ctx)
	}
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.limiter.Cleanup()
			}
		}
	}()

	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           a.handler,
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	server.RegisterOnShutdown(func() {
		log.Println("Stopping background workers...")
		stop()
	})

	go func() {
		log.Printf("Server listening on %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe error: %v", err)
		}
	}()

	// wait for interrupt or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutdown signal received; shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
	for _, fn := range a.shutdown {
		fn(shutdownCtx)
	}
	log.Println("Server stopped cleanly")
}
