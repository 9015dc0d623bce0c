package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"bulkhaul/clock"
	"bulkhaul/geo"
	"bulkhaul/models"
	"bulkhaul/slots"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

var (
	ErrSlotNotFound           = slots.ErrSlotNotFound
	ErrSlotFull               = errors.New("slot is full")
	ErrDuplicateBooking       = errors.New("order already booked in slot")
	ErrInvalidPrecisionWindow = errors.New("invalid precision window")
	ErrBookingNotFound        = errors.New("booking not found")
	ErrInvalidBooking         = errors.New("invalid booking")
	ErrInvalidDate            = errors.New("invalid date")
	ErrSameDayIneligible      = errors.New("slot is not available for same-day delivery")
)

// Store is the persistence driver. Append must perform the capacity check,
// the duplicate check and the insert as one atomic step.
type Store interface {
	Day(ctx context.Context, date string) (models.DaySchedule, error)
	Append(ctx context.Context, date, slotID string, capacity int, b models.Booking) (models.DaySchedule, error)
	Pull(ctx context.Context, date, slotID, orderID string, now time.Time) (bool, error)
	Patch(ctx context.Context, date, slotID, orderID string, patch models.BookingPatch, now time.Time) (models.Booking, error)
}

// Reservation is the result of a successful reserve.
type Reservation struct {
	Date              string           `json:"date"`
	SlotID            string           `json:"slotId"`
	OrderID           string           `json:"orderId"`
	Position          int              `json:"position"`
	Capacity          int              `json:"capacity"`
	Remaining         int              `json:"remaining"`
	PrecisionWindowID string           `json:"precisionWindowId,omitempty"`
	PrecisionFee      *decimal.Decimal `json:"precisionFee,omitempty"`
}

// SlotAvailability is the advisory per-slot view for one date.
type SlotAvailability struct {
	SlotID             string `json:"slotId"`
	BookedCount        int    `json:"bookedCount"`
	BookedForTruckType int    `json:"bookedForTruckType,omitempty"`
	Capacity           int    `json:"capacity"`
	Remaining          int    `json:"remaining"`
	SameDayEligible    bool   `json:"sameDayEligible"`
	Available          bool   `json:"available"`
}

// Service validates requests against the slot calendar and delegates the
// atomic mutations to a Store.
type Service struct {
	store Store
	cal   *slots.Calendar
	rules geo.Rules
	clock clock.Clock
	loc   *time.Location
	depot *geo.Depot
}

type Option func(*Service)

// WithDepot lets same-day reservations check the customer's distance.
// Without it only the lead time is enforced.
func WithDepot(d geo.Depot) Option {
	return func(s *Service) { s.depot = &d }
}

func NewService(store Store, cal *slots.Calendar, rules geo.Rules, clk clock.Clock, loc *time.Location, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{store: store, cal: cal, rules: rules, clock: clk, loc: loc}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Calendar() *slots.Calendar { return s.cal }

func (s *Service) Rules() geo.Rules { return s.rules }

func (s *Service) Location() *time.Location { return s.loc }

// Now returns the current time in the business time zone.
func (s *Service) Now() time.Time {
	return s.clock.Now().In(s.loc)
}

func (s *Service) Today() string {
	return s.Now().Format(DateLayout)
}

// ParseDate validates a YYYY-MM-DD date in the business time zone.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, nil
}

// CheckDelivery rejects deliveries that cannot be booked: past dates,
// unknown slots and, for today, slots failing the same-day rules.
func (s *Service) CheckDelivery(date, slotID string, c models.Customer) (slots.DeliverySlot, error) {
	day, err := ParseDate(date, s.loc)
	if err != nil {
		return slots.DeliverySlot{}, err
	}
	slot, err := s.cal.Slot(slotID)
	if err != nil {
		return slots.DeliverySlot{}, err
	}

	now := s.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	if day.Before(today) {
		return slots.DeliverySlot{}, fmt.Errorf("%w: %s is in the past", ErrInvalidDate, date)
	}
	if !day.Equal(today) {
		return slot, nil
	}

	var dist *float64
	if s.depot != nil && c.Lat != nil && c.Lng != nil {
		dist, err = s.depot.DistanceFrom(&geo.Point{Lat: *c.Lat, Lng: *c.Lng})
		if err != nil {
			return slots.DeliverySlot{}, err
		}
	}
	if !s.rules.IsSameDaySlotAvailable(slot.StartHour, now.Hour(), dist) {
		return slots.DeliverySlot{}, fmt.Errorf("%w: %s/%s", ErrSameDayIneligible, date, slotID)
	}
	return slot, nil
}

func (s *Service) Day(ctx context.Context, date string) (models.DaySchedule, error) {
	if _, err := ParseDate(date, s.loc); err != nil {
		return models.DaySchedule{}, err
	}
	return s.store.Day(ctx, date)
}

// GetAvailability reports every slot on date. distanceMiles is only
// consulted when date is today.
func (s *Service) GetAvailability(ctx context.Context, date, truckType string, distanceMiles *float64) ([]SlotAvailability, error) {
	if _, err := ParseDate(date, s.loc); err != nil {
		return nil, err
	}
	day, err := s.store.Day(ctx, date)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	isToday := date == now.Format(DateLayout)

	out := make([]SlotAvailability, 0, len(s.cal.Slots()))
	for _, slot := range s.cal.Slots() {
		booked := day.Count(slot.ID)
		sameDay := true
		if isToday {
			sameDay = s.rules.IsSameDaySlotAvailable(slot.StartHour, now.Hour(), distanceMiles)
		}
		av := SlotAvailability{
			SlotID:          slot.ID,
			BookedCount:     booked,
			Capacity:        slot.Capacity,
			Remaining:       max(slot.Capacity-booked, 0),
			SameDayEligible: sameDay,
			Available:       booked < slot.Capacity && sameDay,
		}
		if truckType != "" {
			av.BookedForTruckType = day.CountTruckType(slot.ID, truckType)
		}
		out = append(out, av)
	}
	return out, nil
}

// Reserve appends b to the slot if the slot has room and does not already
// hold b.OrderID. Capacity is re-validated by the store, never trusted from
// an earlier availability read.
func (s *Service) Reserve(ctx context.Context, date, slotID string, b models.Booking) (Reservation, error) {
	slot, err := s.CheckDelivery(date, slotID, b.Customer)
	if err != nil {
		return Reservation{}, err
	}

	var fee *decimal.Decimal
	if b.PrecisionWindowID != "" {
		w, err := s.cal.PrecisionWindow(slotID, b.PrecisionWindowID)
		if err != nil {
			if errors.Is(err, slots.ErrPrecisionWindowMismatch) {
				return Reservation{}, fmt.Errorf("%w: %q is not a window of %q", ErrInvalidPrecisionWindow, b.PrecisionWindowID, slotID)
			}
			return Reservation{}, err
		}
		fee = &w.Fee
	}
	if err := validateBooking(b); err != nil {
		return Reservation{}, err
	}

	b.ReservedAt = s.clock.Now()
	b.UpdatedAt = time.Time{}
	if b.Status == "" {
		b.Status = models.BookingScheduled
	}

	day, err := s.store.Append(ctx, date, slotID, slot.Capacity, b)
	if err != nil {
		return Reservation{}, err
	}

	pos := slices.IndexFunc(day.Slots[slotID], func(x models.Booking) bool { return x.OrderID == b.OrderID }) + 1
	return Reservation{
		Date:              date,
		SlotID:            slotID,
		OrderID:           b.OrderID,
		Position:          pos,
		Capacity:          slot.Capacity,
		Remaining:         max(slot.Capacity-day.Count(slotID), 0),
		PrecisionWindowID: b.PrecisionWindowID,
		PrecisionFee:      fee,
	}, nil
}

// Release removes the order's booking. With an empty slotID the slots are
// searched in calendar order and the first match is removed. It returns the
// slot the booking was removed from.
func (s *Service) Release(ctx context.Context, date, orderID, slotID string) (string, error) {
	if _, err := ParseDate(date, s.loc); err != nil {
		return "", err
	}
	if orderID == "" {
		return "", fmt.Errorf("%w: orderId is required", ErrInvalidBooking)
	}

	if slotID != "" {
		if _, err := s.cal.Slot(slotID); err != nil {
			return "", err
		}
		ok, err := s.store.Pull(ctx, date, slotID, orderID, s.clock.Now())
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("%w: order %s in %s/%s", ErrBookingNotFound, orderID, date, slotID)
		}
		return slotID, nil
	}

	day, err := s.store.Day(ctx, date)
	if err != nil {
		return "", err
	}
	for _, slot := range s.cal.Slots() {
		if !slices.ContainsFunc(day.Slots[slot.ID], func(x models.Booking) bool { return x.OrderID == orderID }) {
			continue
		}
		ok, err := s.store.Pull(ctx, date, slot.ID, orderID, s.clock.Now())
		if err != nil {
			return "", err
		}
		if ok {
			return slot.ID, nil
		}
	}
	return "", fmt.Errorf("%w: order %s on %s", ErrBookingNotFound, orderID, date)
}

// Update patches the mutable fields of one booking. An empty patch is a no-op
// that still confirms the booking exists.
func (s *Service) Update(ctx context.Context, date, slotID, orderID string, patch models.BookingPatch) (models.Booking, error) {
	if _, err := ParseDate(date, s.loc); err != nil {
		return models.Booking{}, err
	}
	if _, err := s.cal.Slot(slotID); err != nil {
		return models.Booking{}, err
	}
	if patch.Status != nil && !slices.Contains(models.BookingStatuses, *patch.Status) {
		return models.Booking{}, fmt.Errorf("%w: unknown status %q", ErrInvalidBooking, *patch.Status)
	}

	if patch.IsEmpty() {
		day, err := s.store.Day(ctx, date)
		if err != nil {
			return models.Booking{}, err
		}
		for _, b := range day.Slots[slotID] {
			if b.OrderID == orderID {
				return b, nil
			}
		}
		return models.Booking{}, fmt.Errorf("%w: order %s in %s/%s", ErrBookingNotFound, orderID, date, slotID)
	}

	return s.store.Patch(ctx, date, slotID, orderID, patch, s.clock.Now())
}

func validateBooking(b models.Booking) error {
	var missing []string
	if strings.TrimSpace(b.OrderID) == "" {
		missing = append(missing, "orderId")
	}
	if strings.TrimSpace(b.TruckType) == "" {
		missing = append(missing, "truckType")
	}
	if b.RequiredTons <= 0 {
		missing = append(missing, "requiredTons")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidBooking, strings.Join(missing, ", "))
	}
	if b.Status != "" && !slices.Contains(models.BookingStatuses, b.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidBooking, b.Status)
	}
	return nil
}
