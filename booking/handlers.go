package booking

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bulkhaul/availability"
	"bulkhaul/manifest"
	"bulkhaul/models"
	"bulkhaul/mq"
	"bulkhaul/utils"

	"github.com/julienschmidt/httprouter"
)

// GET /api/availability?date=&truckType=&lat=&lng=
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	coords, err := coordsFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.schedule.Today()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	view, err := h.avail.ForDate(ctx, availability.Query{
		Date:      date,
		TruckType: r.URL.Query().Get("truckType"),
		Coords:    coords,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, view)
}

// GET /api/availability/range?start=&days=&truckType=&lat=&lng=
func (h *Handler) GetAvailabilityRange(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	coords, err := coordsFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	start := q.Get("start")
	if start == "" {
		start = h.schedule.Today()
	}
	days := 5
	if s := q.Get("days"); s != "" {
		days, err = strconv.Atoi(s)
		if err != nil {
			badRequest(w, "days must be an integer")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	views, err := h.avail.ForRange(ctx, start, days, q.Get("truckType"), coords)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"days": views})
}

// GET /api/schedule/:date
func (h *Handler) GetDaySchedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	day, err := h.schedule.Day(r.Context(), ps.ByName("date"))
	if err != nil {
		writeError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, day)
}

// POST /api/schedule/:date/slots/:slotId/reservations
func (h *Handler) ReserveSlot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var b models.Booking
	if err := utils.DecodeJSON(r, &b); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	date, slotID := ps.ByName("date"), ps.ByName("slotId")

	res, err := h.schedule.Reserve(r.Context(), date, slotID, b)
	if err != nil {
		writeError(w, err)
		return
	}
	h.emit(r.Context(), mq.SlotReserved, date, slotID, b.OrderID)
	utils.RespondWithJSON(w, http.StatusCreated, res)
}

// PUT /api/schedule/:date/slots/:slotId/reservations/:orderId
func (h *Handler) UpdateReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var patch models.BookingPatch
	if err := utils.DecodeJSON(r, &patch); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	date, slotID, orderID := ps.ByName("date"), ps.ByName("slotId"), ps.ByName("orderId")

	b, err := h.schedule.Update(r.Context(), date, slotID, orderID, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	if !patch.IsEmpty() {
		h.emit(r.Context(), mq.SlotUpdated, date, slotID, orderID)
	}
	utils.RespondWithJSON(w, http.StatusOK, b)
}

// DELETE /api/schedule/:date/reservations/:orderId?slotId=
func (h *Handler) ReleaseReservation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	date, orderID := ps.ByName("date"), ps.ByName("orderId")

	slotID, err := h.schedule.Release(r.Context(), date, orderID, r.URL.Query().Get("slotId"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.emit(r.Context(), mq.SlotReleased, date, slotID, orderID)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"released": true, "date": date, "slotId": slotID, "orderId": orderID})
}

// GET /api/schedule/:date/manifest
func (h *Handler) GetManifest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	date := ps.ByName("date")
	day, err := h.schedule.Day(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}

	pdf, err := manifest.Render(day, h.schedule.Calendar(), h.signer, h.schedule.Now())
	if err != nil {
		writeError(w, fmt.Errorf("manifest for %s: %w", date, err))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=manifest-"+date+".pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// POST /api/checkin {"payload": "..."}
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Payload string `json:"payload"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil || body.Payload == "" {
		badRequest(w, "payload is required")
		return
	}
	date, slotID, orderID, err := h.signer.Verify(body.Payload)
	if err != nil {
		utils.RespondWithJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error(), Code: CodeInvalidRequest})
		return
	}

	status := models.BookingDispatched
	b, err := h.schedule.Update(r.Context(), date, slotID, orderID, models.BookingPatch{Status: &status})
	if err != nil {
		writeError(w, err)
		return
	}
	h.emit(r.Context(), mq.SlotUpdated, date, slotID, orderID)
	utils.RespondWithJSON(w, http.StatusOK, b)
}

func (h *Handler) emit(ctx context.Context, typ, date, slotID, orderID string) {
	h.events.Emit(ctx, mq.Event{Type: typ, Date: date, SlotID: slotID, OrderID: orderID, At: h.clock.Now()})
}
