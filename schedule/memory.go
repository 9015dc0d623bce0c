package schedule

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"bulkhaul/models"
)

// MemoryStore keeps day schedules in process. One mutex covers every date,
// which makes Append trivially atomic.
type MemoryStore struct {
	mu   sync.Mutex
	days map[string]*models.DaySchedule
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{days: make(map[string]*models.DaySchedule)}
}

func (m *MemoryStore) Day(_ context.Context, date string) (models.DaySchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.days[date]
	if !ok {
		return models.DaySchedule{Date: date, Slots: map[string][]models.Booking{}}, nil
	}
	return cloneDay(d), nil
}

func (m *MemoryStore) Append(_ context.Context, date, slotID string, capacity int, b models.Booking) (models.DaySchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.days[date]
	if !ok {
		d = &models.DaySchedule{Date: date, Slots: map[string][]models.Booking{}, CreatedAt: b.ReservedAt}
		m.days[date] = d
	}
	list := d.Slots[slotID]
	if slices.ContainsFunc(list, func(x models.Booking) bool { return x.OrderID == b.OrderID }) {
		return models.DaySchedule{}, fmt.Errorf("%w: order %s in %s/%s", ErrDuplicateBooking, b.OrderID, date, slotID)
	}
	if len(list) >= capacity {
		return models.DaySchedule{}, fmt.Errorf("%w: %s/%s holds %d of %d", ErrSlotFull, date, slotID, len(list), capacity)
	}
	d.Slots[slotID] = append(list, b)
	d.UpdatedAt = b.ReservedAt
	return cloneDay(d), nil
}

func (m *MemoryStore) Pull(_ context.Context, date, slotID, orderID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.days[date]
	if !ok {
		return false, nil
	}
	list := d.Slots[slotID]
	i := slices.IndexFunc(list, func(x models.Booking) bool { return x.OrderID == orderID })
	if i < 0 {
		return false, nil
	}
	d.Slots[slotID] = slices.Delete(list, i, i+1)
	d.UpdatedAt = now
	return true, nil
}

func (m *MemoryStore) Patch(_ context.Context, date, slotID, orderID string, patch models.BookingPatch, now time.Time) (models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.days[date]; ok {
		list := d.Slots[slotID]
		for i := range list {
			if list[i].OrderID == orderID {
				patch.Apply(&list[i], now)
				d.UpdatedAt = now
				return list[i], nil
			}
		}
	}
	return models.Booking{}, fmt.Errorf("%w: order %s in %s/%s", ErrBookingNotFound, orderID, date, slotID)
}

func cloneDay(d *models.DaySchedule) models.DaySchedule {
	out := *d
	out.Slots = make(map[string][]models.Booking, len(d.Slots))
	for k, v := range d.Slots {
		out.Slots[k] = slices.Clone(v)
	}
	return out
}
