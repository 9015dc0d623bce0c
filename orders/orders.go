// Package orders ties inventory reservation and slot booking together so an
// order either holds both or neither.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"bulkhaul/inventory"
	"bulkhaul/models"
	"bulkhaul/mq"
	"bulkhaul/schedule"
)

var ErrInvalidDelivery = errors.New("invalid delivery request")

// cleanupTimeout bounds compensation and slot release, which must finish
// even when the request that triggered them is gone.
const cleanupTimeout = 10 * time.Second

// DeliveryRequest asks for a slot alongside the inventory.
type DeliveryRequest struct {
	Date              string `json:"date"`
	SlotID            string `json:"slotId"`
	TruckType         string `json:"truckType"`
	PrecisionWindowID string `json:"precisionWindowId,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

type PlaceRequest struct {
	Customer models.Customer         `json:"customer"`
	Items    []inventory.ItemRequest `json:"items"`
	Total    float64                 `json:"total,omitempty"`
	Delivery *DeliveryRequest        `json:"delivery,omitempty"`
}

type Placement struct {
	Order       models.PendingOrder   `json:"order"`
	Reservation *schedule.Reservation `json:"reservation,omitempty"`
}

type Service struct {
	ledger   *inventory.Ledger
	schedule *schedule.Service
	events   mq.Emitter
}

func NewService(ledger *inventory.Ledger, sched *schedule.Service, events mq.Emitter) *Service {
	if events == nil {
		events = mq.Discard{}
	}
	return &Service{ledger: ledger, schedule: sched, events: events}
}

// Place reserves inventory and then, when a delivery is requested, a slot.
// A slot failure cancels the just-created order and returns the slot error.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (Placement, error) {
	var ref *models.DeliveryRef
	if d := req.Delivery; d != nil {
		if err := s.checkDelivery(d, req.Customer); err != nil {
			return Placement{}, err
		}
		ref = &models.DeliveryRef{Date: d.Date, SlotID: d.SlotID}
	}

	order, err := s.ledger.CheckAndReserve(ctx, inventory.ReserveRequest{
		CustomerID: req.Customer.ID,
		Items:      req.Items,
		Delivery:   ref,
		Total:      req.Total,
	})
	if err != nil {
		return Placement{}, err
	}
	s.emitOrder(ctx, order)

	if req.Delivery == nil {
		return Placement{Order: order}, nil
	}

	res, err := s.schedule.Reserve(ctx, req.Delivery.Date, req.Delivery.SlotID, models.Booking{
		OrderID:           order.ID,
		Customer:          req.Customer,
		TruckType:         req.Delivery.TruckType,
		RequiredTons:      order.TotalTons(),
		PrecisionWindowID: req.Delivery.PrecisionWindowID,
		Notes:             req.Delivery.Notes,
	})
	if err != nil {
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		cancelled, cerr := s.ledger.Cancel(cctx, order.ID, inventory.ReasonSlotUnavailable, false)
		if cerr != nil {
			log.Printf("[Orders] compensation failed for %s: %v", order.ID, cerr)
		} else {
			s.emitOrder(cctx, cancelled)
			// a write that landed before the error still has to come out
			if rerr := s.releaseSlot(cctx, cancelled); rerr != nil {
				log.Printf("[Orders] release slot for %s: %v", order.ID, rerr)
			}
		}
		return Placement{}, err
	}

	s.events.Emit(ctx, mq.Event{
		Type:    mq.SlotReserved,
		Date:    res.Date,
		SlotID:  res.SlotID,
		OrderID: order.ID,
		At:      s.schedule.Now(),
	})
	return Placement{Order: order, Reservation: &res}, nil
}

// checkDelivery rejects slot requests that cannot succeed before any
// inventory is committed. Reserve repeats the date and same-day checks.
func (s *Service) checkDelivery(d *DeliveryRequest, c models.Customer) error {
	if _, err := s.schedule.CheckDelivery(d.Date, d.SlotID, c); err != nil {
		return err
	}
	if strings.TrimSpace(d.TruckType) == "" {
		return fmt.Errorf("%w: truckType is required", ErrInvalidDelivery)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, orderID string) (models.PendingOrder, error) {
	return s.ledger.Get(ctx, orderID)
}

// Transition applies a status change and its side effects on the slot.
func (s *Service) Transition(ctx context.Context, orderID string, to models.OrderStatus, override bool) (models.PendingOrder, error) {
	o, err := s.ledger.Transition(ctx, orderID, to, override)
	if err != nil {
		return models.PendingOrder{}, err
	}
	switch o.Status {
	case models.StatusCancelled:
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		if err := s.releaseSlot(cctx, o); err != nil {
			// the sweeper retries through UnreleasedSlots
			log.Printf("[Orders] release slot for %s: %v", o.ID, err)
		}
	case models.StatusDelivered:
		s.markBookingDelivered(ctx, o)
	}
	s.emitOrder(ctx, o)
	return o, nil
}

func (s *Service) MarkPaid(ctx context.Context, orderID string) (models.PendingOrder, error) {
	return s.Transition(ctx, orderID, models.StatusPaid, false)
}

func (s *Service) Convert(ctx context.Context, orderID string) (models.PendingOrder, error) {
	return s.Transition(ctx, orderID, models.StatusConverted, false)
}

func (s *Service) Deliver(ctx context.Context, orderID string) (models.PendingOrder, error) {
	return s.Transition(ctx, orderID, models.StatusDelivered, false)
}

func (s *Service) Cancel(ctx context.Context, orderID string, override bool) (models.PendingOrder, error) {
	return s.Transition(ctx, orderID, models.StatusCancelled, override)
}

// SweepExpired cancels pending orders past their hold window and frees their
// slots. Cancelled orders whose slot release failed earlier are retried on
// every sweep. It returns how many orders were expired.
func (s *Service) SweepExpired(ctx context.Context, batch int) (int, error) {
	expired, err := s.ledger.ExpireStale(ctx, batch)
	for _, o := range expired {
		s.emitOrder(ctx, o)
	}
	if err != nil {
		return len(expired), err
	}

	leaked, err := s.ledger.UnreleasedSlots(ctx, batch)
	if err != nil {
		return len(expired), err
	}
	for _, o := range leaked {
		if rerr := s.releaseSlot(ctx, o); rerr != nil {
			log.Printf("[Orders] release slot for %s: %v", o.ID, rerr)
		}
	}
	return len(expired), nil
}

// releaseSlot removes a cancelled order's booking and records that it is
// gone. A booking that is already missing counts as released.
func (s *Service) releaseSlot(ctx context.Context, o models.PendingOrder) error {
	if o.Delivery == nil {
		return nil
	}
	slotID, err := s.schedule.Release(ctx, o.Delivery.Date, o.ID, o.Delivery.SlotID)
	switch {
	case errors.Is(err, schedule.ErrBookingNotFound):
	case err != nil:
		return err
	default:
		s.events.Emit(ctx, mq.Event{
			Type:    mq.SlotReleased,
			Date:    o.Delivery.Date,
			SlotID:  slotID,
			OrderID: o.ID,
			At:      s.schedule.Now(),
		})
	}
	return s.ledger.MarkSlotReleased(ctx, o.ID)
}

func (s *Service) markBookingDelivered(ctx context.Context, o models.PendingOrder) {
	if o.Delivery == nil {
		return
	}
	status := models.BookingDelivered
	_, err := s.schedule.Update(ctx, o.Delivery.Date, o.Delivery.SlotID, o.ID, models.BookingPatch{Status: &status})
	if err != nil && !errors.Is(err, schedule.ErrBookingNotFound) {
		log.Printf("[Orders] mark booking delivered for %s: %v", o.ID, err)
		return
	}
	if err == nil {
		s.events.Emit(ctx, mq.Event{
			Type:    mq.SlotUpdated,
			Date:    o.Delivery.Date,
			SlotID:  o.Delivery.SlotID,
			OrderID: o.ID,
			At:      s.schedule.Now(),
		})
	}
}

func (s *Service) emitOrder(ctx context.Context, o models.PendingOrder) {
	s.events.Emit(ctx, mq.Event{
		Type:    mq.OrderPrefix + string(o.Status),
		OrderID: o.ID,
		Status:  string(o.Status),
		At:      o.UpdatedAt,
	})
}

func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}
