package inventory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"bulkhaul/models"
)

// StaticCatalog serves a fixed product list, used in memory mode and tests.
type StaticCatalog struct {
	mu       sync.RWMutex
	products map[string]models.Product
}

func NewStaticCatalog(products ...models.Product) *StaticCatalog {
	c := &StaticCatalog{products: make(map[string]models.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *StaticCatalog) Product(_ context.Context, id string) (models.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return models.Product{}, fmt.Errorf("%w: %q", ErrProductNotFound, id)
	}
	return p, nil
}

func (c *StaticCatalog) List(_ context.Context) ([]models.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetStock replaces a product's physical stock.
func (c *StaticCatalog) SetStock(id string, tons float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.products[id]; ok {
		p.StockTons = tons
		c.products[id] = p
	}
}

type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]models.PendingOrder
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string]models.PendingOrder)}
}

func (m *MemoryOrderStore) Insert(_ context.Context, o models.PendingOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	o.Items = slices.Clone(o.Items)
	m.orders[o.ID] = o
	return nil
}

func (m *MemoryOrderStore) Get(_ context.Context, id string) (models.PendingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return models.PendingOrder{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return o, nil
}

func (m *MemoryOrderStore) CommittedTons(_ context.Context, productIDs []string, now time.Time) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sums := make(map[string]float64, len(productIDs))
	for _, o := range m.orders {
		if !o.Committing(now) {
			continue
		}
		for _, it := range o.Items {
			if slices.Contains(productIDs, it.ProductID) {
				sums[it.ProductID] += it.Tons
			}
		}
	}
	return sums, nil
}

func (m *MemoryOrderStore) CompareAndSetStatus(_ context.Context, id string, from, to models.OrderStatus, reason string, now time.Time) (models.PendingOrder, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return models.PendingOrder{}, false, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if o.Status != from {
		return models.PendingOrder{}, false, nil
	}
	o.Status = to
	o.UpdatedAt = now
	if reason != "" {
		o.CancelReason = reason
	}
	m.orders[id] = o
	return o, true, nil
}

func (m *MemoryOrderStore) ListExpired(_ context.Context, now time.Time, limit int) ([]models.PendingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PendingOrder
	for _, o := range m.orders {
		if o.Status == models.StatusPendingPayment && !now.Before(o.ExpiresAt) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryOrderStore) ListUnreleased(_ context.Context, limit int) ([]models.PendingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PendingOrder
	for _, o := range m.orders {
		if o.HoldsSlot() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryOrderStore) MarkSlotReleased(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	o.SlotReleasedAt = &now
	m.orders[id] = o
	return nil
}

var errLockWait = errors.New("timed out waiting for lock")

// LocalLocker is an in-process Locker built on one-slot channels so that
// waiting respects a deadline. Keys are taken in sorted order.
type LocalLocker struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
	wait time.Duration
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &LocalLocker{sems: make(map[string]chan struct{}), wait: wait}
}

func (l *LocalLocker) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.sems[key] = s
	}
	return s
}

func (l *LocalLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	held := make([]chan struct{}, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}
	for _, k := range keys {
		s := l.sem(k)
		select {
		case s <- struct{}{}:
			held = append(held, s)
		case <-ctx.Done():
			release()
			return nil, fmt.Errorf("%w: %s", errLockWait, k)
		}
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}
