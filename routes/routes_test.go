package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bulkhaul/availability"
	"bulkhaul/booking"
	"bulkhaul/clock"
	"bulkhaul/geo"
	"bulkhaul/globals"
	"bulkhaul/inventory"
	"bulkhaul/manifest"
	"bulkhaul/middleware"
	"bulkhaul/models"
	"bulkhaul/mq"
	"bulkhaul/orders"
	"bulkhaul/pay"
	"bulkhaul/ratelim"
	"bulkhaul/schedule"
	"bulkhaul/slots"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"
)

var secret = []byte("routes-test")

func newRouter(t *testing.T) *httprouter.Router {
	t.Helper()
	globals.JwtSecret = secret

	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	clk := clock.NewManual(time.Date(2026, 3, 2, 8, 0, 0, 0, loc))
	sched := schedule.NewService(schedule.NewMemoryStore(), slots.NewCalendar(2, decimal.NewFromInt(75)), geo.DefaultRules(), clk, loc)
	ledger := inventory.NewLedger(
		inventory.NewStaticCatalog(models.Product{ID: "gravel", Unit: models.UnitTon, StockTons: 30}),
		inventory.NewMemoryOrderStore(),
		inventory.NewLocalLocker(time.Second),
		clk,
	)
	events := mq.NewLocalEmitter()
	orderSvc := orders.NewService(ledger, sched, events)
	h := booking.NewHandler(booking.Deps{
		Availability: availability.NewService(sched, ledger, geo.Depot{Origin: geo.Point{Lat: 41.8781, Lng: -87.6298}}),
		Schedule:     sched,
		Ledger:       ledger,
		Orders:       orderSvc,
		Signer:       manifest.NewSigner("test"),
		Events:       events,
		Clock:        clk,
	})

	router := httprouter.New()
	RoutesWrapper(router, Deps{
		Handler:     h,
		Hub:         booking.NewHub(),
		Webhook:     pay.NewWebhookHandler(orderSvc),
		Idempotency: pay.NewIdempotency(pay.NewMemoryIdempotencyStore()),
	}, ratelim.NewRateLimiter(1000, 1000))
	return router
}

func bearer(t *testing.T, roles ...string) string {
	t.Helper()
	claims := middleware.Claims{
		UserID: "u-1",
		Role:   roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + s
}

func TestRoutesRegisterWithoutConflict(t *testing.T) {
	router := newRouter(t)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/availability"},
		{http.MethodGet, "/api/availability/range"},
		{http.MethodGet, "/api/schedule/2026-03-10"},
		{http.MethodGet, "/api/schedule/2026-03-10/manifest"},
		{http.MethodPost, "/api/schedule/2026-03-10/slots/morning/reservations"},
		{http.MethodPut, "/api/schedule/2026-03-10/slots/morning/reservations/o-1"},
		{http.MethodDelete, "/api/schedule/2026-03-10/reservations/o-1"},
		{http.MethodPost, "/api/checkin"},
		{http.MethodGet, "/api/ws/schedule"},
		{http.MethodGet, "/api/inventory/gravel"},
		{http.MethodPost, "/api/inventory/reservations"},
		{http.MethodPost, "/api/orders"},
		{http.MethodGet, "/api/orders/o-1"},
		{http.MethodPost, "/api/orders/o-1/transition"},
		{http.MethodPost, "/api/payments/webhook"},
	}
	for _, p := range paths {
		if h, _, _ := router.Lookup(p.method, p.path); h == nil {
			t.Errorf("no route for %s %s", p.method, p.path)
		}
	}
}

func TestRouteGuards(t *testing.T) {
	router := newRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		auth   string
		want   int
	}{
		{"public availability", http.MethodGet, "/api/availability?date=2026-03-10", "", "", http.StatusOK},
		{"public product stock", http.MethodGet, "/api/inventory/gravel", "", "", http.StatusOK},
		{"order needs token", http.MethodPost, "/api/orders", `{}`, "", http.StatusUnauthorized},
		{"schedule needs staff", http.MethodGet, "/api/schedule/2026-03-10", "", bearer(t, globals.RoleCustomer), http.StatusForbidden},
		{"dispatcher reads schedule", http.MethodGet, "/api/schedule/2026-03-10", "", bearer(t, globals.RoleDispatcher), http.StatusOK},
		{"webhook needs service role", http.MethodPost, "/api/payments/webhook", `{}`, bearer(t, globals.RoleCustomer), http.StatusForbidden},
		{"bad token", http.MethodGet, "/api/orders/o-1", "", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body)
			}
		})
	}
}
