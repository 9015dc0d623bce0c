package orders

import (
	"context"
	"log"
	"time"
)

const sweepBatch = 200

// Sweeper expires stale pending orders on a fixed interval.
type Sweeper struct {
	orders   *Service
	interval time.Duration
}

func NewSweeper(orders *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{orders: orders, interval: interval}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("[Sweeper] expiring pending orders every %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("[Sweeper] stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	for {
		n, err := s.orders.SweepExpired(ctx, sweepBatch)
		if err != nil {
			log.Printf("[Sweeper] sweep failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("[Sweeper] expired %d pending orders", n)
		}
		if n < sweepBatch {
			return
		}
	}
}
