package inventory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"bulkhaul/clock"
	"bulkhaul/models"
	"bulkhaul/utils"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrProductNotFound       = errors.New("product not found")
	ErrInvalidItem           = errors.New("invalid item")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrCannotCancelPaid      = errors.New("cannot cancel a paid order without override")
	ErrOrderExpired          = errors.New("pending order has expired")
	ErrLockTimeout           = errors.New("inventory is busy, retry")
)

const DefaultPendingTTL = 48 * time.Hour

// Cancel reasons recorded on orders.
const (
	ReasonExpired         = "expired"
	ReasonSlotUnavailable = "slot_unavailable"
	ReasonRequested       = "requested"
)

// Shortfall describes one product that cannot cover the requested tons.
type Shortfall struct {
	ProductID     string          `json:"productId"`
	RequestedTons decimal.Decimal `json:"requestedTons"`
	AvailableTons decimal.Decimal `json:"availableTons"`
	ShortfallTons decimal.Decimal `json:"shortfallTons"`
}

// InsufficientInventoryError lists every short product of a rejected request.
type InsufficientInventoryError struct {
	Details []Shortfall
}

func (e *InsufficientInventoryError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, fmt.Sprintf("%s short %s t", d.ProductID, d.ShortfallTons.String()))
	}
	return "insufficient inventory: " + strings.Join(parts, ", ")
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}

// Catalog is the product collaborator.
type Catalog interface {
	Product(ctx context.Context, id string) (models.Product, error)
}

// OrderStore persists pending orders. CommittedTons must only count orders
// that are paid, or pending_payment with expiresAt after now.
type OrderStore interface {
	Insert(ctx context.Context, o models.PendingOrder) error
	Get(ctx context.Context, id string) (models.PendingOrder, error)
	CommittedTons(ctx context.Context, productIDs []string, now time.Time) (map[string]float64, error)
	CompareAndSetStatus(ctx context.Context, id string, from, to models.OrderStatus, reason string, now time.Time) (models.PendingOrder, bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.PendingOrder, error)
	// ListUnreleased returns cancelled orders whose booking has not been
	// confirmed gone yet.
	ListUnreleased(ctx context.Context, limit int) ([]models.PendingOrder, error)
	MarkSlotReleased(ctx context.Context, id string, now time.Time) error
}

// Locker serialises reservations touching the same products. Locks must
// expire on their own and the returned unlock must be safe to call once.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

type ItemRequest struct {
	ProductID string  `json:"productId"`
	Quantity  float64 `json:"quantity"`
	Unit      string  `json:"unit,omitempty"`
}

type ReserveRequest struct {
	CustomerID string              `json:"customerId"`
	Items      []ItemRequest       `json:"items"`
	Delivery   *models.DeliveryRef `json:"delivery,omitempty"`
	Total      float64             `json:"total,omitempty"`
}

type Availability struct {
	ProductID     string          `json:"productId"`
	StockTons     decimal.Decimal `json:"stockTons"`
	CommittedTons decimal.Decimal `json:"committedTons"`
	AvailableTons decimal.Decimal `json:"availableTons"`
}

type Ledger struct {
	catalog Catalog
	orders  OrderStore
	locker  Locker
	clock   clock.Clock
	ttl     time.Duration
}

type Option func(*Ledger)

// WithPendingTTL overrides how long an unpaid order holds inventory.
func WithPendingTTL(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.ttl = d
		}
	}
}

func NewLedger(catalog Catalog, orders OrderStore, locker Locker, clk clock.Clock, opts ...Option) *Ledger {
	l := &Ledger{
		catalog: catalog,
		orders:  orders,
		locker:  locker,
		clock:   clk,
		ttl:     DefaultPendingTTL,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Committed(ctx context.Context, productID string) (decimal.Decimal, error) {
	sums, err := l.orders.CommittedTons(ctx, []string{productID}, l.clock.Now())
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(sums[productID]), nil
}

func (l *Ledger) Available(ctx context.Context, productID string) (Availability, error) {
	p, err := l.catalog.Product(ctx, productID)
	if err != nil {
		return Availability{}, err
	}
	committed, err := l.Committed(ctx, productID)
	if err != nil {
		return Availability{}, err
	}
	stock := decimal.NewFromFloat(p.StockTons)
	return Availability{
		ProductID:     productID,
		StockTons:     stock,
		CommittedTons: committed,
		AvailableTons: stock.Sub(committed),
	}, nil
}

// CheckAndReserve creates a pending_payment order when every item fits in
// available stock. Otherwise it returns *InsufficientInventoryError with a
// shortfall for each product that does not fit, and creates nothing.
func (l *Ledger) CheckAndReserve(ctx context.Context, req ReserveRequest) (models.PendingOrder, error) {
	if len(req.Items) == 0 {
		return models.PendingOrder{}, fmt.Errorf("%w: no items", ErrInvalidItem)
	}
	for i, it := range req.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return models.PendingOrder{}, fmt.Errorf("%w: item %d has no productId", ErrInvalidItem, i)
		}
		if it.Quantity <= 0 {
			return models.PendingOrder{}, fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidItem, i)
		}
		if it.Unit != "" && it.Unit != models.UnitTon && it.Unit != models.UnitYard {
			return models.PendingOrder{}, fmt.Errorf("%w: item %d unknown unit %q", ErrInvalidItem, i, it.Unit)
		}
	}

	ids := productIDs(req.Items)
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = "inventory:" + id
	}
	unlock, err := l.locker.Lock(ctx, keys...)
	if err != nil {
		return models.PendingOrder{}, fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	defer unlock()

	products := make(map[string]models.Product, len(ids))
	for _, id := range ids {
		p, err := l.catalog.Product(ctx, id)
		if err != nil {
			return models.PendingOrder{}, err
		}
		products[id] = p
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	requested := make(map[string]decimal.Decimal, len(ids))
	for i, it := range req.Items {
		tons, unit, err := toTons(it, products[it.ProductID])
		if err != nil {
			return models.PendingOrder{}, fmt.Errorf("item %d: %w", i, err)
		}
		requested[it.ProductID] = requested[it.ProductID].Add(tons)
		items = append(items, models.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Unit:      unit,
			Tons:      tons.InexactFloat64(),
		})
	}

	now := l.clock.Now()
	committed, err := l.orders.CommittedTons(ctx, ids, now)
	if err != nil {
		return models.PendingOrder{}, err
	}

	var shortfalls []Shortfall
	for _, id := range ids {
		available := decimal.NewFromFloat(products[id].StockTons).Sub(decimal.NewFromFloat(committed[id]))
		if requested[id].GreaterThan(available) {
			shortfalls = append(shortfalls, Shortfall{
				ProductID:     id,
				RequestedTons: requested[id],
				AvailableTons: decimal.Max(available, decimal.Zero),
				ShortfallTons: requested[id].Sub(decimal.Max(available, decimal.Zero)),
			})
		}
	}
	if len(shortfalls) > 0 {
		return models.PendingOrder{}, &InsufficientInventoryError{Details: shortfalls}
	}

	order := models.PendingOrder{
		ID:         utils.NewOrderID(),
		CustomerID: req.CustomerID,
		Status:     models.StatusPendingPayment,
		Items:      items,
		Delivery:   req.Delivery,
		Total:      req.Total,
		CreatedAt:  now,
		ExpiresAt:  now.Add(l.ttl),
		UpdatedAt:  now,
	}
	if err := l.orders.Insert(ctx, order); err != nil {
		return models.PendingOrder{}, err
	}
	return order, nil
}

func (l *Ledger) Get(ctx context.Context, orderID string) (models.PendingOrder, error) {
	return l.orders.Get(ctx, orderID)
}

// Transition moves an order forward through its lifecycle.
func (l *Ledger) Transition(ctx context.Context, orderID string, to models.OrderStatus, override bool) (models.PendingOrder, error) {
	reason := ""
	if to == models.StatusCancelled {
		reason = ReasonRequested
	}
	return l.transition(ctx, orderID, to, override, reason)
}

// Cancel cancels with a recorded reason.
func (l *Ledger) Cancel(ctx context.Context, orderID, reason string, override bool) (models.PendingOrder, error) {
	return l.transition(ctx, orderID, models.StatusCancelled, override, reason)
}

func (l *Ledger) transition(ctx context.Context, orderID string, to models.OrderStatus, override bool, reason string) (models.PendingOrder, error) {
	o, err := l.orders.Get(ctx, orderID)
	if err != nil {
		return models.PendingOrder{}, err
	}
	now := l.clock.Now()
	if err := checkTransition(o, to, override, now); err != nil {
		return models.PendingOrder{}, err
	}

	updated, ok, err := l.orders.CompareAndSetStatus(ctx, orderID, o.Status, to, reason, now)
	if err != nil {
		return models.PendingOrder{}, err
	}
	if !ok {
		current, err := l.orders.Get(ctx, orderID)
		if err != nil {
			return models.PendingOrder{}, err
		}
		return models.PendingOrder{}, fmt.Errorf("%w: %s is now %s", ErrInvalidTransition, orderID, current.Status)
	}
	return updated, nil
}

// ExpireStale cancels pending_payment orders whose hold window has passed and
// returns the ones it cancelled.
func (l *Ledger) ExpireStale(ctx context.Context, limit int) ([]models.PendingOrder, error) {
	now := l.clock.Now()
	stale, err := l.orders.ListExpired(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	var expired []models.PendingOrder
	for _, o := range stale {
		updated, ok, err := l.orders.CompareAndSetStatus(ctx, o.ID, models.StatusPendingPayment, models.StatusCancelled, ReasonExpired, now)
		if err != nil {
			return expired, err
		}
		if ok {
			expired = append(expired, updated)
		}
	}
	return expired, nil
}

// UnreleasedSlots lists cancelled orders that may still occupy a slot.
func (l *Ledger) UnreleasedSlots(ctx context.Context, limit int) ([]models.PendingOrder, error) {
	return l.orders.ListUnreleased(ctx, limit)
}

// MarkSlotReleased records that the order no longer occupies a slot.
func (l *Ledger) MarkSlotReleased(ctx context.Context, orderID string) error {
	return l.orders.MarkSlotReleased(ctx, orderID, l.clock.Now())
}

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPendingPayment: {models.StatusPaid, models.StatusCancelled},
	models.StatusPaid:           {models.StatusConverted, models.StatusCancelled},
	models.StatusConverted:      {models.StatusDelivered},
}

// CanTransition reports whether from -> to is an edge of the order lifecycle.
func CanTransition(from, to models.OrderStatus) bool {
	return slices.Contains(transitions[from], to)
}

func checkTransition(o models.PendingOrder, to models.OrderStatus, override bool, now time.Time) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	if o.Status == models.StatusPaid && to == models.StatusCancelled && !override {
		return ErrCannotCancelPaid
	}
	if o.Status == models.StatusPendingPayment && to == models.StatusPaid && !now.Before(o.ExpiresAt) {
		return fmt.Errorf("%w: %s expired at %s", ErrOrderExpired, o.ID, o.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func toTons(it ItemRequest, p models.Product) (decimal.Decimal, string, error) {
	unit := it.Unit
	if unit == "" {
		unit = p.Unit
	}
	if unit == "" {
		unit = models.UnitTon
	}
	qty := decimal.NewFromFloat(it.Quantity)
	switch unit {
	case models.UnitTon:
		return qty, unit, nil
	case models.UnitYard:
		if p.WeightPerUnit <= 0 {
			return decimal.Zero, "", fmt.Errorf("%w: product %s has no weight per yard", ErrInvalidItem, p.ID)
		}
		return qty.Mul(decimal.NewFromFloat(p.WeightPerUnit)).Round(3), unit, nil
	}
	return decimal.Zero, "", fmt.Errorf("%w: unknown unit %q", ErrInvalidItem, unit)
}

func productIDs(items []ItemRequest) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
