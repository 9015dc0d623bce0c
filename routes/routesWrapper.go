package routes

import (
	"bulkhaul/booking"
	"bulkhaul/pay"
	"bulkhaul/ratelim"

	"github.com/julienschmidt/httprouter"
)

type Deps struct {
	Handler     *booking.Handler
	Hub         *booking.Hub
	Webhook     *pay.WebhookHandler
	Idempotency *pay.Idempotency
}

func RoutesWrapper(router *httprouter.Router, d Deps, rateLimiter *ratelim.RateLimiter) {
	AddAvailabilityRoutes(router, d.Handler, rateLimiter)
	AddScheduleRoutes(router, d.Handler, d.Hub, rateLimiter)
	AddInventoryRoutes(router, d.Handler, rateLimiter)
	AddOrderRoutes(router, d.Handler, rateLimiter)
	AddPayRoutes(router, d.Webhook, d.Idempotency)
}
