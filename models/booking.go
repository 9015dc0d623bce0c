package models

import "time"

// Booking statuses a dispatcher moves a reservation through.
const (
	BookingScheduled  = "scheduled"
	BookingAssigned   = "assigned"
	BookingDispatched = "dispatched"
	BookingDelivered  = "delivered"
)

var BookingStatuses = []string{BookingScheduled, BookingAssigned, BookingDispatched, BookingDelivered}

// Customer is a snapshot taken at reservation time; later profile edits do not rewrite it.
type Customer struct {
	ID      string   `json:"id" bson:"id"`
	Name    string   `json:"name" bson:"name"`
	Phone   string   `json:"phone,omitempty" bson:"phone,omitempty"`
	Address string   `json:"address,omitempty" bson:"address,omitempty"`
	Lat     *float64 `json:"lat,omitempty" bson:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty" bson:"lng,omitempty"`
}

// Booking is one truck delivery held in a slot of a DaySchedule.
type Booking struct {
	OrderID           string    `json:"orderId" bson:"orderId"`
	Customer          Customer  `json:"customer" bson:"customer"`
	TruckType         string    `json:"truckType" bson:"truckType"`
	RequiredTons      float64   `json:"requiredTons" bson:"requiredTons"`
	PrecisionWindowID string    `json:"precisionWindowId,omitempty" bson:"precisionWindowId,omitempty"`
	ReservedAt        time.Time `json:"reservedAt" bson:"reservedAt"`

	AssignedTruckID  string    `json:"assignedTruckId,omitempty" bson:"assignedTruckId,omitempty"`
	AssignedDriverID string    `json:"assignedDriverId,omitempty" bson:"assignedDriverId,omitempty"`
	Status           string    `json:"status" bson:"status"`
	Notes            string    `json:"notes,omitempty" bson:"notes,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt,omitempty" bson:"updatedAt,omitempty"`
}

// BookingPatch holds the mutable booking fields; nil means "leave as is".
type BookingPatch struct {
	AssignedTruckID  *string `json:"assignedTruckId,omitempty"`
	AssignedDriverID *string `json:"assignedDriverId,omitempty"`
	Status           *string `json:"status,omitempty"`
	Notes            *string `json:"notes,omitempty"`
}

func (p BookingPatch) IsEmpty() bool {
	return p.AssignedTruckID == nil && p.AssignedDriverID == nil && p.Status == nil && p.Notes == nil
}

// Apply copies the set fields of the patch onto b.
func (p BookingPatch) Apply(b *Booking, now time.Time) {
	if p.AssignedTruckID != nil {
		b.AssignedTruckID = *p.AssignedTruckID
	}
	if p.AssignedDriverID != nil {
		b.AssignedDriverID = *p.AssignedDriverID
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.Notes != nil {
		b.Notes = *p.Notes
	}
	b.UpdatedAt = now
}

// DaySchedule is the per-date document; Slots maps slot id to its bookings in reservation order.
type DaySchedule struct {
	Date      string               `json:"date" bson:"date"`
	Slots     map[string][]Booking `json:"slots" bson:"slots"`
	CreatedAt time.Time            `json:"createdAt,omitempty" bson:"createdAt,omitempty"`
	UpdatedAt time.Time            `json:"updatedAt,omitempty" bson:"updatedAt,omitempty"`
}

func (d DaySchedule) Count(slotID string) int {
	return len(d.Slots[slotID])
}

// CountTruckType counts bookings in a slot that use the given truck type.
func (d DaySchedule) CountTruckType(slotID, truckType string) int {
	n := 0
	for _, b := range d.Slots[slotID] {
		if b.TruckType == truckType {
			n++
		}
	}
	return n
}
