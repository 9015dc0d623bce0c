package geo

import (
	"errors"
	"math"
	"testing"
)

func TestDistanceMiles(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want float64
	}{
		{"same point", Point{41.8781, -87.6298}, Point{41.8781, -87.6298}, 0},
		{"one degree of longitude at the equator", Point{0, 0}, Point{0, 1}, 69.094},
		{"chicago to milwaukee", Point{41.8781, -87.6298}, Point{43.0389, -87.9065}, 81.435},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMiles(tt.a, tt.b)
			if math.Abs(got-tt.want) > 0.01 {
				t.Fatalf("expected %.3f mi, got %.3f", tt.want, got)
			}
			if back := DistanceMiles(tt.b, tt.a); math.Abs(back-got) > 1e-9 {
				t.Fatalf("distance is not symmetric: %v vs %v", got, back)
			}
		})
	}
}

func TestSameDayEligibility(t *testing.T) {
	rules := DefaultRules()
	starts := []int{6, 9, 12, 15, 18}
	far := 25.0
	near := 5.0

	t.Run("beyond radius rejects every slot", func(t *testing.T) {
		for _, s := range starts {
			if rules.IsSameDaySlotAvailable(s, 14, &far) {
				t.Errorf("slot starting %d should be ineligible at 25 mi", s)
			}
			if rules.IsSameDaySlotAvailable(s, 0, &far) {
				t.Errorf("slot starting %d should be ineligible at 25 mi even with lead time", s)
			}
		}
	})

	t.Run("within radius applies lead time", func(t *testing.T) {
		for _, s := range starts {
			want := s >= 16
			if got := rules.IsSameDaySlotAvailable(s, 14, &near); got != want {
				t.Errorf("slot starting %d at 14:00: expected %v, got %v", s, want, got)
			}
		}
	})

	t.Run("no coordinates falls back to lead time", func(t *testing.T) {
		if !rules.IsSameDaySlotAvailable(18, 14, nil) {
			t.Error("18:00 slot should be eligible at 14:00 without coordinates")
		}
		if rules.IsSameDaySlotAvailable(15, 14, nil) {
			t.Error("15:00 slot should be ineligible at 14:00")
		}
	})

	t.Run("boundary distance is allowed", func(t *testing.T) {
		edge := 20.0
		if !rules.IsSameDaySlotAvailable(18, 14, &edge) {
			t.Error("exactly 20 miles should be within the cap")
		}
	})
}

func TestDepotDistanceFrom(t *testing.T) {
	depot := Depot{Origin: Point{41.8781, -87.6298}}

	d, err := depot.DistanceFrom(nil)
	if err != nil || d != nil {
		t.Fatalf("expected nil distance without coordinates, got %v, %v", d, err)
	}

	d, err = depot.DistanceFrom(&Point{41.8781 + 0.0725, -87.6298})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(*d-5.009) > 0.01 {
		t.Fatalf("expected ~5 mi, got %v", *d)
	}

	if _, err := depot.DistanceFrom(&Point{95, 10}); !errors.Is(err, ErrInvalidPoint) {
		t.Fatalf("expected ErrInvalidPoint, got %v", err)
	}
}
