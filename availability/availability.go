// Package availability answers "what can this customer book" questions by
// combining the slot calendar, same-day rules, the day's bookings and the
// inventory ledger. Every answer is advisory; reserve re-validates.
package availability

import (
	"context"
	"fmt"
	"time"

	"bulkhaul/geo"
	"bulkhaul/inventory"
	"bulkhaul/schedule"

	"github.com/shopspring/decimal"
)

// MaxRangeDays bounds ForRange.
const MaxRangeDays = 30

type Query struct {
	Date      string
	TruckType string
	Coords    *geo.Point
}

type WindowView struct {
	ID        string          `json:"id"`
	StartHour int             `json:"startHour"`
	EndHour   int             `json:"endHour"`
	Range     string          `json:"range"`
	Fee       decimal.Decimal `json:"fee"`
	Available bool            `json:"available"`
}

type SlotView struct {
	ID                 string       `json:"id"`
	Label              string       `json:"label"`
	StartHour          int          `json:"startHour"`
	EndHour            int          `json:"endHour"`
	Range              string       `json:"range"`
	BookedCount        int          `json:"bookedCount"`
	BookedForTruckType int          `json:"bookedForTruckType,omitempty"`
	Capacity           int          `json:"capacity"`
	Remaining          int          `json:"remaining"`
	SameDayEligible    bool         `json:"sameDayEligible"`
	Available          bool         `json:"available"`
	PrecisionWindows   []WindowView `json:"precisionWindows"`
}

type DayView struct {
	Date              string          `json:"date"`
	Weekday           string          `json:"weekday"`
	IsToday           bool            `json:"isToday"`
	DistanceMiles     *float64        `json:"distanceMiles,omitempty"`
	SameDayDistanceOK bool            `json:"sameDayDistanceOk"`
	PrecisionFee      decimal.Decimal `json:"precisionFee"`
	Slots             []SlotView      `json:"slots"`
	FullyBooked       bool            `json:"fullyBooked"`
}

type Service struct {
	schedule *schedule.Service
	ledger   *inventory.Ledger
	depot    geo.Depot
}

func NewService(sched *schedule.Service, ledger *inventory.Ledger, depot geo.Depot) *Service {
	return &Service{schedule: sched, ledger: ledger, depot: depot}
}

// ForDate builds the view of one date. Coordinates, when given, are only
// used for the same-day distance rule.
func (s *Service) ForDate(ctx context.Context, q Query) (DayView, error) {
	distance, err := s.depot.DistanceFrom(q.Coords)
	if err != nil {
		return DayView{}, err
	}
	return s.forDate(ctx, q.Date, q.TruckType, distance)
}

func (s *Service) forDate(ctx context.Context, date, truckType string, distance *float64) (DayView, error) {
	day, err := schedule.ParseDate(date, s.schedule.Location())
	if err != nil {
		return DayView{}, err
	}
	avail, err := s.schedule.GetAvailability(ctx, date, truckType, distance)
	if err != nil {
		return DayView{}, err
	}

	cal := s.schedule.Calendar()
	rules := s.schedule.Rules()
	now := s.schedule.Now()
	isToday := date == now.Format(schedule.DateLayout)

	view := DayView{
		Date:              date,
		Weekday:           day.Weekday().String(),
		IsToday:           isToday,
		DistanceMiles:     distance,
		SameDayDistanceOK: rules.WithinSameDayRadius(distance),
		PrecisionFee:      cal.PrecisionFee(),
		FullyBooked:       true,
	}

	for i, slot := range cal.Slots() {
		a := avail[i]
		sv := SlotView{
			ID:                 slot.ID,
			Label:              slot.Label,
			StartHour:          slot.StartHour,
			EndHour:            slot.EndHour,
			Range:              slot.Range(),
			BookedCount:        a.BookedCount,
			BookedForTruckType: a.BookedForTruckType,
			Capacity:           a.Capacity,
			Remaining:          a.Remaining,
			SameDayEligible:    a.SameDayEligible,
			Available:          a.Available,
		}
		windows, err := cal.PrecisionWindows(slot.ID)
		if err != nil {
			return DayView{}, err
		}
		for _, w := range windows {
			ok := a.Available
			if ok && isToday {
				ok = rules.IsSameDaySlotAvailable(w.StartHour, now.Hour(), distance)
			}
			sv.PrecisionWindows = append(sv.PrecisionWindows, WindowView{
				ID:        w.ID,
				StartHour: w.StartHour,
				EndHour:   w.EndHour,
				Range:     w.Range(),
				Fee:       w.Fee,
				Available: ok,
			})
		}
		if sv.Available {
			view.FullyBooked = false
		}
		view.Slots = append(view.Slots, sv)
	}
	return view, nil
}

// ForRange returns views for businessDays weekdays starting at start.
// Saturdays and Sundays are skipped and do not count towards the total.
func (s *Service) ForRange(ctx context.Context, start string, businessDays int, truckType string, coords *geo.Point) ([]DayView, error) {
	if businessDays <= 0 || businessDays > MaxRangeDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", schedule.ErrInvalidDate, MaxRangeDays)
	}
	day, err := schedule.ParseDate(start, s.schedule.Location())
	if err != nil {
		return nil, err
	}
	distance, err := s.depot.DistanceFrom(coords)
	if err != nil {
		return nil, err
	}

	views := make([]DayView, 0, businessDays)
	for len(views) < businessDays {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			v, err := s.forDate(ctx, day.Format(schedule.DateLayout), truckType, distance)
			if err != nil {
				return nil, err
			}
			views = append(views, v)
		}
		day = day.AddDate(0, 0, 1)
	}
	return views, nil
}

func (s *Service) ProductAvailability(ctx context.Context, productID string) (inventory.Availability, error) {
	return s.ledger.Available(ctx, productID)
}
