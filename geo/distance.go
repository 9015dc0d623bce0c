package geo

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidPoint = errors.New("invalid coordinates")

const earthRadiusMiles = 3958.8

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidPoint, p.Lat, p.Lng)
	}
	return nil
}

// DistanceMiles is the haversine great-circle distance between a and b.
func DistanceMiles(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMiles * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Rules are the same-day eligibility thresholds.
type Rules struct {
	MaxSameDayMiles  float64
	MinLeadTimeHours int
}

func DefaultRules() Rules {
	return Rules{MaxSameDayMiles: 20, MinLeadTimeHours: 2}
}

// IsSameDaySlotAvailable applies only to today's slots. A nil distance means
// the customer gave no coordinates; only the lead time is checked then.
func (r Rules) IsSameDaySlotAvailable(slotStartHour, nowHour int, distanceMiles *float64) bool {
	if distanceMiles != nil && *distanceMiles > r.MaxSameDayMiles {
		return false
	}
	return slotStartHour >= nowHour+r.MinLeadTimeHours
}

// WithinSameDayRadius reports whether a known distance passes the distance cap.
func (r Rules) WithinSameDayRadius(distanceMiles *float64) bool {
	return distanceMiles == nil || *distanceMiles <= r.MaxSameDayMiles
}

// Depot measures customer distances from a fixed origin.
type Depot struct {
	Origin Point
}

// DistanceFrom returns nil when no customer point is given.
func (d Depot) DistanceFrom(p *Point) (*float64, error) {
	if p == nil {
		return nil, nil
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	miles := DistanceMiles(d.Origin, *p)
	return &miles, nil
}
