// Package booking exposes scheduling, inventory and order operations over HTTP.
package booking

import (
	"fmt"
	"net/http"
	"strconv"

	"bulkhaul/availability"
	"bulkhaul/clock"
	"bulkhaul/geo"
	"bulkhaul/inventory"
	"bulkhaul/manifest"
	"bulkhaul/mq"
	"bulkhaul/orders"
	"bulkhaul/schedule"
)

type Handler struct {
	avail    *availability.Service
	schedule *schedule.Service
	ledger   *inventory.Ledger
	orders   *orders.Service
	signer   manifest.Signer
	events   mq.Emitter
	clock    clock.Clock
}

type Deps struct {
	Availability *availability.Service
	Schedule     *schedule.Service
	Ledger       *inventory.Ledger
	Orders       *orders.Service
	Signer       manifest.Signer
	Events       mq.Emitter
	Clock        clock.Clock
}

func NewHandler(d Deps) *Handler {
	if d.Events == nil {
		d.Events = mq.Discard{}
	}
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	return &Handler{
		avail:    d.Availability,
		schedule: d.Schedule,
		ledger:   d.Ledger,
		orders:   d.Orders,
		signer:   d.Signer,
		events:   d.Events,
		clock:    d.Clock,
	}
}

// coordsFromQuery reads optional lat/lng. Both or neither must be present.
func coordsFromQuery(r *http.Request) (*geo.Point, error) {
	q := r.URL.Query()
	latStr, lngStr := q.Get("lat"), q.Get("lng")
	if latStr == "" && lngStr == "" {
		return nil, nil
	}
	if latStr == "" || lngStr == "" {
		return nil, fmt.Errorf("%w: lat and lng must be given together", geo.ErrInvalidPoint)
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: lat %q", geo.ErrInvalidPoint, latStr)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: lng %q", geo.ErrInvalidPoint, lngStr)
	}
	p := &geo.Point{Lat: lat, Lng: lng}
	return p, p.Validate()
}
