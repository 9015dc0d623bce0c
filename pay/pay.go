package pay

import (
	"context"
	"errors"
	"log"
	"net/http"

	"bulkhaul/inventory"
	"bulkhaul/models"
	"bulkhaul/utils"

	"github.com/julienschmidt/httprouter"
)

// Event types the payment collaborator sends.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// OrderPayer is the part of the order service the webhook drives.
type OrderPayer interface {
	Get(ctx context.Context, orderID string) (models.PendingOrder, error)
	MarkPaid(ctx context.Context, orderID string) (models.PendingOrder, error)
}

type WebhookHandler struct {
	orders OrderPayer
}

func NewWebhookHandler(orders OrderPayer) *WebhookHandler {
	return &WebhookHandler{orders: orders}
}

// POST /api/payments/webhook
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var ev models.PaymentEvent
	if err := utils.DecodeJSON(r, &ev); err != nil || ev.OrderID == "" {
		utils.RespondWithJSON(w, http.StatusBadRequest, utils.M{"error": "invalid payment event", "code": "invalid_request"})
		return
	}

	switch ev.Type {
	case EventPaymentSucceeded:
	case EventPaymentFailed:
		// the pending order keeps its hold until it expires or is cancelled
		log.Printf("[Webhook] payment failed for order %s (event %s)", ev.OrderID, ev.EventID)
		utils.RespondWithJSON(w, http.StatusAccepted, utils.M{"ignored": true, "type": ev.Type})
		return
	default:
		utils.RespondWithJSON(w, http.StatusAccepted, utils.M{"ignored": true, "type": ev.Type})
		return
	}

	o, err := h.orders.MarkPaid(r.Context(), ev.OrderID)
	if err == nil {
		log.Printf("[Webhook] order %s paid (event %s)", o.ID, ev.EventID)
		utils.RespondWithJSON(w, http.StatusOK, o)
		return
	}

	// redelivery of an event that already moved the order forward
	if errors.Is(err, inventory.ErrInvalidTransition) {
		if current, gerr := h.orders.Get(r.Context(), ev.OrderID); gerr == nil && current.Status != models.StatusCancelled && current.Status != models.StatusPendingPayment {
			utils.RespondWithJSON(w, http.StatusOK, current)
			return
		}
	}

	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, inventory.ErrOrderNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, inventory.ErrOrderExpired):
		status, code = http.StatusConflict, "order_expired"
	case errors.Is(err, inventory.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	default:
		log.Printf("[Webhook] mark paid %s: %v", ev.OrderID, err)
	}
	utils.RespondWithJSON(w, status, utils.M{"error": err.Error(), "code": code})
}
