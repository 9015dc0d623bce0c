package availability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bulkhaul/clock"
	"bulkhaul/geo"
	"bulkhaul/inventory"
	"bulkhaul/models"
	"bulkhaul/schedule"
	"bulkhaul/slots"

	"github.com/shopspring/decimal"
)

var chicago, _ = time.LoadLocation("America/Chicago")

var depot = geo.Depot{Origin: geo.Point{Lat: 41.8781, Lng: -87.6298}}

func newTestService(now time.Time) (*Service, *schedule.Service) {
	clk := clock.NewManual(now)
	sched := schedule.NewService(schedule.NewMemoryStore(), slots.NewCalendar(4, decimal.NewFromInt(75)), geo.DefaultRules(), clk, chicago)
	ledger := inventory.NewLedger(
		inventory.NewStaticCatalog(models.Product{ID: "sand", Unit: models.UnitTon, StockTons: 20}),
		inventory.NewMemoryOrderStore(),
		inventory.NewLocalLocker(time.Second),
		clk,
	)
	return NewService(sched, ledger, depot), sched
}

func fill(t *testing.T, sched *schedule.Service, date, slotID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := sched.Reserve(context.Background(), date, slotID, models.Booking{
			OrderID:      fmt.Sprintf("%s-%s-%d", date, slotID, i),
			TruckType:    "tri-axle",
			RequiredTons: 10,
		})
		if err != nil {
			t.Fatalf("fill %s/%s: %v", date, slotID, err)
		}
	}
}

func TestForDateEmptyDay(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 3, 2, 8, 0, 0, 0, chicago))

	v, err := svc.ForDate(context.Background(), Query{Date: "2026-03-04"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.IsToday || v.FullyBooked || v.DistanceMiles != nil {
		t.Fatalf("unexpected view %+v", v)
	}
	if v.Weekday != "Wednesday" {
		t.Errorf("expected Wednesday, got %s", v.Weekday)
	}
	if len(v.Slots) != 5 {
		t.Fatalf("expected 5 slots, got %d", len(v.Slots))
	}
	for _, s := range v.Slots {
		if s.BookedCount != 0 || s.Remaining != 4 || !s.Available {
			t.Errorf("slot %s not empty: %+v", s.ID, s)
		}
		if len(s.PrecisionWindows) != 3 {
			t.Errorf("slot %s has %d precision windows", s.ID, len(s.PrecisionWindows))
		}
		for _, w := range s.PrecisionWindows {
			if !w.Fee.Equal(decimal.NewFromInt(75)) {
				t.Errorf("window %s fee %s", w.ID, w.Fee)
			}
		}
	}
}

func TestForDateFullSlotAndFullyBooked(t *testing.T) {
	ctx := context.Background()
	svc, sched := newTestService(time.Date(2026, 3, 2, 8, 0, 0, 0, chicago))

	fill(t, sched, "2026-03-05", "morning", 4)
	v, err := svc.ForDate(ctx, Query{Date: "2026-03-05", TruckType: "tri-axle"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	morning := v.Slots[1]
	if morning.Available || morning.Remaining != 0 || morning.BookedForTruckType != 4 {
		t.Fatalf("unexpected morning view %+v", morning)
	}
	for _, w := range morning.PrecisionWindows {
		if w.Available {
			t.Errorf("window %s of a full slot reported available", w.ID)
		}
	}
	if v.FullyBooked {
		t.Fatal("day with open slots reported fully booked")
	}

	for _, id := range []string{"early", "midday", "afternoon", "evening"} {
		fill(t, sched, "2026-03-05", id, 4)
	}
	v, _ = svc.ForDate(ctx, Query{Date: "2026-03-05"})
	if !v.FullyBooked {
		t.Fatal("expected fully booked day")
	}
}

func TestForDateToday(t *testing.T) {
	ctx := context.Background()
	// 13:30 local: only afternoon (15:00) and evening (18:00) clear the 2h lead time.
	svc, _ := newTestService(time.Date(2026, 3, 2, 13, 30, 0, 0, chicago))

	t.Run("near customer", func(t *testing.T) {
		near := &geo.Point{Lat: 41.95, Lng: -87.65}
		v, err := svc.ForDate(ctx, Query{Date: "2026-03-02", Coords: near})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !v.IsToday || !v.SameDayDistanceOK || v.DistanceMiles == nil {
			t.Fatalf("unexpected view header %+v", v)
		}
		want := map[string]bool{"early": false, "morning": false, "midday": false, "afternoon": true, "evening": true}
		for _, s := range v.Slots {
			if s.Available != want[s.ID] {
				t.Errorf("slot %s available=%v, expected %v", s.ID, s.Available, want[s.ID])
			}
		}
		for _, w := range v.Slots[3].PrecisionWindows {
			if !w.Available {
				t.Errorf("window %s should be available", w.ID)
			}
		}
	})

	t.Run("far customer", func(t *testing.T) {
		far := &geo.Point{Lat: 43.0389, Lng: -87.9065}
		v, err := svc.ForDate(ctx, Query{Date: "2026-03-02", Coords: far})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.SameDayDistanceOK {
			t.Fatal("Milwaukee should be beyond the same-day radius")
		}
		if !v.FullyBooked {
			t.Fatal("no slot should be offered same-day beyond the radius")
		}
	})

	t.Run("invalid coordinates", func(t *testing.T) {
		_, err := svc.ForDate(ctx, Query{Date: "2026-03-02", Coords: &geo.Point{Lat: 120}})
		if !errors.Is(err, geo.ErrInvalidPoint) {
			t.Fatalf("expected ErrInvalidPoint, got %v", err)
		}
	})
}

func TestForDateInvalidDate(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 3, 2, 8, 0, 0, 0, chicago))
	if _, err := svc.ForDate(context.Background(), Query{Date: "2026-13-01"}); !errors.Is(err, schedule.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestForRangeSkipsWeekends(t *testing.T) {
	// 2026-03-06 is a Friday.
	svc, _ := newTestService(time.Date(2026, 3, 2, 8, 0, 0, 0, chicago))

	views, err := svc.ForRange(context.Background(), "2026-03-06", 3, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"2026-03-06", "2026-03-09", "2026-03-10"}
	if len(views) != len(want) {
		t.Fatalf("expected %d days, got %d", len(want), len(views))
	}
	for i, v := range views {
		if v.Date != want[i] {
			t.Errorf("day %d: expected %s, got %s", i, want[i], v.Date)
		}
	}

	for _, n := range []int{0, MaxRangeDays + 1} {
		if _, err := svc.ForRange(context.Background(), "2026-03-06", n, "", nil); err == nil {
			t.Errorf("expected error for %d days", n)
		}
	}
}

func TestProductAvailability(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 3, 2, 8, 0, 0, 0, chicago))

	av, err := svc.ProductAvailability(context.Background(), "sand")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !av.AvailableTons.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected 20 t available, got %s", av.AvailableTons)
	}
	if _, err := svc.ProductAvailability(context.Background(), "clay"); !errors.Is(err, inventory.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}
