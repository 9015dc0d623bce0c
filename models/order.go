package models

import "time"

type OrderStatus string

const (
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusPaid           OrderStatus = "paid"
	StatusConverted      OrderStatus = "converted"
	StatusCancelled      OrderStatus = "cancelled"
	StatusDelivered      OrderStatus = "delivered"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusPaid, StatusConverted, StatusCancelled, StatusDelivered:
		return true
	}
	return false
}

// Units a quantity can be ordered in.
const (
	UnitTon  = "ton"
	UnitYard = "yard"
)

type OrderItem struct {
	ProductID string  `json:"productId" bson:"productId"`
	Quantity  float64 `json:"quantity" bson:"quantity"`
	Unit      string  `json:"unit" bson:"unit"`
	Tons      float64 `json:"tons" bson:"tons"`
}

// DeliveryRef points at the slot reserved for an order, if any.
type DeliveryRef struct {
	Date   string `json:"date" bson:"date"`
	SlotID string `json:"slotId" bson:"slotId"`
}

// PendingOrder holds inventory from creation until it is fulfilled, cancelled or expires.
type PendingOrder struct {
	ID           string       `json:"id" bson:"_id"`
	CustomerID   string       `json:"customerId" bson:"customerId"`
	Status       OrderStatus  `json:"status" bson:"status"`
	Items        []OrderItem  `json:"items" bson:"items"`
	Delivery     *DeliveryRef `json:"delivery,omitempty" bson:"delivery,omitempty"`
	Total        float64      `json:"total,omitempty" bson:"total,omitempty"`
	CreatedAt    time.Time    `json:"createdAt" bson:"createdAt"`
	ExpiresAt    time.Time    `json:"expiresAt" bson:"expiresAt"`
	UpdatedAt    time.Time    `json:"updatedAt" bson:"updatedAt"`
	CancelReason string       `json:"cancelReason,omitempty" bson:"cancelReason,omitempty"`

	// SlotReleasedAt is set once a cancelled order's booking is gone.
	SlotReleasedAt *time.Time `json:"slotReleasedAt,omitempty" bson:"slotReleasedAt,omitempty"`
}

// Committing reports whether the order still holds inventory at now. Stock
// is only drawn down by delivery, so converted orders keep their hold.
func (o PendingOrder) Committing(now time.Time) bool {
	switch o.Status {
	case StatusPaid, StatusConverted:
		return true
	case StatusPendingPayment:
		return now.Before(o.ExpiresAt)
	}
	return false
}

// HoldsSlot reports whether a cancelled order may still have a booking to free.
func (o PendingOrder) HoldsSlot() bool {
	return o.Status == StatusCancelled && o.Delivery != nil && o.SlotReleasedAt == nil
}

func (o PendingOrder) TotalTons() float64 {
	var sum float64
	for _, it := range o.Items {
		sum += it.Tons
	}
	return sum
}
