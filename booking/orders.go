package booking

import (
	"net/http"

	"bulkhaul/globals"
	"bulkhaul/inventory"
	"bulkhaul/models"
	"bulkhaul/orders"
	"bulkhaul/utils"

	"github.com/julienschmidt/httprouter"
)

// GET /api/inventory/:productId
func (h *Handler) GetProductAvailability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	av, err := h.avail.ProductAvailability(r.Context(), ps.ByName("productId"))
	if err != nil {
		writeError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, av)
}

// POST /api/inventory/reservations
func (h *Handler) ReserveInventory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req inventory.ReserveRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.CustomerID == "" {
		req.CustomerID = utils.GetUserIDFromRequest(r)
	}

	order, err := h.ledger.CheckAndReserve(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, order)
}

// POST /api/orders
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req orders.PlaceRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Customer.ID == "" {
		req.Customer.ID = utils.GetUserIDFromRequest(r)
	}

	p, err := h.orders.Place(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, p)
}

// GET /api/orders/:orderId
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	o, err := h.orders.Get(r.Context(), ps.ByName("orderId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !canSeeOrder(r, o) {
		writeError(w, inventory.ErrOrderNotFound)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, o)
}

type transitionRequest struct {
	Status   models.OrderStatus `json:"status"`
	Override bool               `json:"override,omitempty"`
}

// POST /api/orders/:orderId/transition
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req transitionRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Override && !utils.HasRole(r, globals.RoleAdmin) {
		utils.RespondWithJSON(w, http.StatusForbidden, errorBody{Error: "override requires admin role", Code: "forbidden"})
		return
	}

	o, err := h.orders.Transition(r.Context(), ps.ByName("orderId"), req.Status, req.Override)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, o)
}

// canSeeOrder lets staff read any order and customers only their own.
func canSeeOrder(r *http.Request, o models.PendingOrder) bool {
	if utils.HasRole(r, globals.RoleDispatcher, globals.RoleAdmin) {
		return true
	}
	uid := utils.GetUserIDFromRequest(r)
	return uid != "" && uid == o.CustomerID
}
