package routes

import (
	"bulkhaul/booking"
	"bulkhaul/globals"
	"bulkhaul/middleware"
	"bulkhaul/ratelim"

	"github.com/julienschmidt/httprouter"
)

var staff = middleware.RequireRole(globals.RoleDispatcher, globals.RoleAdmin)

func AddAvailabilityRoutes(router *httprouter.Router, h *booking.Handler, rateLimiter *ratelim.RateLimiter) {
	router.GET("/api/availability", middleware.Chain(rateLimiter.Limit, middleware.OptionalAuth)(h.GetAvailability))
	router.GET("/api/availability/range", middleware.Chain(rateLimiter.Limit, middleware.OptionalAuth)(h.GetAvailabilityRange))
}

func AddScheduleRoutes(router *httprouter.Router, h *booking.Handler, hub *booking.Hub, rateLimiter *ratelim.RateLimiter) {
	router.GET("/api/schedule/:date", middleware.Chain(middleware.Authenticate, staff)(h.GetDaySchedule))
	router.GET("/api/schedule/:date/manifest", middleware.Chain(middleware.Authenticate, staff)(h.GetManifest))
	router.POST("/api/schedule/:date/slots/:slotId/reservations",
		middleware.Chain(rateLimiter.Limit, middleware.Authenticate, staff)(h.ReserveSlot))
	router.PUT("/api/schedule/:date/slots/:slotId/reservations/:orderId",
		middleware.Chain(middleware.Authenticate, staff)(h.UpdateReservation))
	router.DELETE("/api/schedule/:date/reservations/:orderId",
		middleware.Chain(middleware.Authenticate, staff)(h.ReleaseReservation))
	router.POST("/api/checkin", middleware.Chain(rateLimiter.Limit, middleware.Authenticate, staff)(h.CheckIn))

	router.GET("/api/ws/schedule", middleware.Chain(middleware.Authenticate, staff)(hub.HandleWS))
}

func AddInventoryRoutes(router *httprouter.Router, h *booking.Handler, rateLimiter *ratelim.RateLimiter) {
	router.GET("/api/inventory/:productId", middleware.Chain(rateLimiter.Limit, middleware.OptionalAuth)(h.GetProductAvailability))
	router.POST("/api/inventory/reservations", middleware.Chain(rateLimiter.Limit, middleware.Authenticate)(h.ReserveInventory))
}

func AddOrderRoutes(router *httprouter.Router, h *booking.Handler, rateLimiter *ratelim.RateLimiter) {
	router.POST("/api/orders", middleware.Chain(rateLimiter.Limit, middleware.Authenticate)(h.PlaceOrder))
	router.GET("/api/orders/:orderId", middleware.Authenticate(h.GetOrder))
	router.POST("/api/orders/:orderId/transition", middleware.Chain(middleware.Authenticate, staff)(h.TransitionOrder))
}
