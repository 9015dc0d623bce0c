package booking

import (
	"errors"
	"log"
	"net/http"

	"bulkhaul/geo"
	"bulkhaul/inventory"
	"bulkhaul/orders"
	"bulkhaul/schedule"
	"bulkhaul/slots"
	"bulkhaul/utils"
)

// Error codes returned in the "code" field.
const (
	CodeNotFound              = "not_found"
	CodeSlotFull              = "slot_full"
	CodeDuplicateBooking      = "duplicate_booking"
	CodeInsufficientInventory = "insufficient_inventory"
	CodeInvalidTransition     = "invalid_transition"
	CodeCannotCancelPaid      = "cannot_cancel_paid"
	CodeOrderExpired          = "order_expired"
	CodeInvalidPrecision      = "invalid_precision_window"
	CodeSameDayIneligible     = "same_day_ineligible"
	CodeInvalidRequest        = "invalid_request"
	CodeBusy                  = "busy"
	CodeInternal              = "internal"
)

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{slots.ErrSlotNotFound, http.StatusNotFound, CodeNotFound},
	{schedule.ErrBookingNotFound, http.StatusNotFound, CodeNotFound},
	{inventory.ErrOrderNotFound, http.StatusNotFound, CodeNotFound},
	{inventory.ErrProductNotFound, http.StatusNotFound, CodeNotFound},
	{schedule.ErrSlotFull, http.StatusConflict, CodeSlotFull},
	{schedule.ErrDuplicateBooking, http.StatusConflict, CodeDuplicateBooking},
	{schedule.ErrSameDayIneligible, http.StatusConflict, CodeSameDayIneligible},
	{inventory.ErrInsufficientInventory, http.StatusConflict, CodeInsufficientInventory},
	{inventory.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition},
	{inventory.ErrCannotCancelPaid, http.StatusConflict, CodeCannotCancelPaid},
	{inventory.ErrOrderExpired, http.StatusConflict, CodeOrderExpired},
	{schedule.ErrInvalidPrecisionWindow, http.StatusUnprocessableEntity, CodeInvalidPrecision},
	{schedule.ErrInvalidBooking, http.StatusBadRequest, CodeInvalidRequest},
	{schedule.ErrInvalidDate, http.StatusBadRequest, CodeInvalidRequest},
	{inventory.ErrInvalidItem, http.StatusBadRequest, CodeInvalidRequest},
	{orders.ErrInvalidDelivery, http.StatusBadRequest, CodeInvalidRequest},
	{geo.ErrInvalidPoint, http.StatusBadRequest, CodeInvalidRequest},
	{inventory.ErrLockTimeout, http.StatusServiceUnavailable, CodeBusy},
}

// statusFor returns the HTTP status and code for a domain error.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	body := errorBody{Error: err.Error(), Code: code}

	var insufficient *inventory.InsufficientInventoryError
	if errors.As(err, &insufficient) {
		body.Details = insufficient.Details
	}
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		body.Error = "internal server error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	utils.RespondWithJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	utils.RespondWithJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: CodeInvalidRequest})
}
