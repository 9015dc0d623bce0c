// Package slots holds the fixed catalog of daily delivery windows.
//
// The catalog is built once at startup; changing windows is a deploy, not a
// runtime operation.
package slots

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrSlotNotFound            = errors.New("slot not found")
	ErrPrecisionWindowMismatch = errors.New("precision window does not belong to slot")
)

const DefaultCapacity = 4

// DeliverySlot is a three-hour delivery window.
type DeliverySlot struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	StartHour int    `json:"startHour"`
	EndHour   int    `json:"endHour"`
	Capacity  int    `json:"capacity"`
}

// PrecisionWindow is a one-hour upgrade inside a slot.
type PrecisionWindow struct {
	ID        string          `json:"id"`
	SlotID    string          `json:"slotId"`
	StartHour int             `json:"startHour"`
	EndHour   int             `json:"endHour"`
	Fee       decimal.Decimal `json:"fee"`
}

func (s DeliverySlot) Range() string {
	return fmt.Sprintf("%02d:00-%02d:00", s.StartHour, s.EndHour)
}

func (w PrecisionWindow) Range() string {
	return fmt.Sprintf("%02d:00-%02d:00", w.StartHour, w.EndHour)
}

type slotDef struct {
	id    string
	label string
	start int
}

var dayLayout = []slotDef{
	{"early", "Early Morning", 6},
	{"morning", "Morning", 9},
	{"midday", "Midday", 12},
	{"afternoon", "Afternoon", 15},
	{"evening", "Evening", 18},
}

const slotHours = 3

// Calendar is an immutable lookup over the day's slots and their precision windows.
type Calendar struct {
	slots   []DeliverySlot
	byID    map[string]int
	windows map[string][]PrecisionWindow
	fee     decimal.Decimal
}

// NewCalendar builds the five-slot day with the given per-slot capacity and precision fee.
func NewCalendar(capacity int, precisionFee decimal.Decimal) *Calendar {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Calendar{
		byID:    make(map[string]int, len(dayLayout)),
		windows: make(map[string][]PrecisionWindow, len(dayLayout)),
		fee:     precisionFee,
	}
	for i, def := range dayLayout {
		s := DeliverySlot{
			ID:        def.id,
			Label:     def.label,
			StartHour: def.start,
			EndHour:   def.start + slotHours,
			Capacity:  capacity,
		}
		c.slots = append(c.slots, s)
		c.byID[s.ID] = i
		for h := s.StartHour; h < s.EndHour; h++ {
			c.windows[s.ID] = append(c.windows[s.ID], PrecisionWindow{
				ID:        fmt.Sprintf("%s_%02d", s.ID, h),
				SlotID:    s.ID,
				StartHour: h,
				EndHour:   h + 1,
				Fee:       precisionFee,
			})
		}
	}
	return c
}

func DefaultCalendar() *Calendar {
	return NewCalendar(DefaultCapacity, decimal.NewFromInt(75))
}

// Slots returns the day's slots ordered by start hour.
func (c *Calendar) Slots() []DeliverySlot {
	out := make([]DeliverySlot, len(c.slots))
	copy(out, c.slots)
	return out
}

func (c *Calendar) Slot(id string) (DeliverySlot, error) {
	i, ok := c.byID[id]
	if !ok {
		return DeliverySlot{}, fmt.Errorf("%w: %q", ErrSlotNotFound, id)
	}
	return c.slots[i], nil
}

func (c *Calendar) Capacity(id string) (int, error) {
	s, err := c.Slot(id)
	if err != nil {
		return 0, err
	}
	return s.Capacity, nil
}

func (c *Calendar) PrecisionWindows(slotID string) ([]PrecisionWindow, error) {
	if _, err := c.Slot(slotID); err != nil {
		return nil, err
	}
	ws := c.windows[slotID]
	out := make([]PrecisionWindow, len(ws))
	copy(out, ws)
	return out, nil
}

// PrecisionWindow looks up windowID under slotID only.
func (c *Calendar) PrecisionWindow(slotID, windowID string) (PrecisionWindow, error) {
	if _, err := c.Slot(slotID); err != nil {
		return PrecisionWindow{}, err
	}
	for _, w := range c.windows[slotID] {
		if w.ID == windowID {
			return w, nil
		}
	}
	return PrecisionWindow{}, fmt.Errorf("%w: %q not in %q", ErrPrecisionWindowMismatch, windowID, slotID)
}

func (c *Calendar) PrecisionFee() decimal.Decimal {
	return c.fee
}
