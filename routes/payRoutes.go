package routes

import (
	"bulkhaul/globals"
	"bulkhaul/middleware"
	"bulkhaul/pay"

	"github.com/julienschmidt/httprouter"
)

// AddPayRoutes wires the payment collaborator's webhook. Replays carrying the
// same Idempotency-Key get the stored response.
func AddPayRoutes(router *httprouter.Router, webhook *pay.WebhookHandler, idem *pay.Idempotency) {
	router.POST("/api/payments/webhook",
		middleware.Chain(
			middleware.Authenticate,
			middleware.RequireRole(globals.RoleService, globals.RoleAdmin),
			idem.Wrap,
		)(webhook.Handle),
	)
}
