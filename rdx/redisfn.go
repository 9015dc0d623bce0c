package rdx

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockWait = errors.New("timed out waiting for redis lock")

// Connect opens a client and pings it.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	conn := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := conn.Ping(ctx).Err(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Printf("Connected to Redis at %s", addr)
	return conn, nil
}

// compare-and-delete so a lock that already expired and was re-taken by
// someone else is never released by us.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const lockRetry = 25 * time.Millisecond

// Locker takes SET NX PX locks. Each lock expires after ttl even if the
// holder dies; Lock gives up after wait.
type Locker struct {
	conn redis.Cmdable
	ttl  time.Duration
	wait time.Duration
}

func NewLocker(conn redis.Cmdable, ttl, wait time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &Locker{conn: conn, ttl: ttl, wait: wait}
}

func lockKey(k string) string {
	return "lock:" + k
}

// Lock acquires every key in sorted order, or none of them.
func (l *Locker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	token := uuid.NewString()
	var held []string
	release := func() {
		for _, k := range held {
			if err := unlockScript.Run(context.Background(), l.conn, []string{lockKey(k)}, token).Err(); err != nil {
				log.Printf("[Lock] release %s: %v", k, err)
			}
		}
	}

	for _, k := range keys {
		if err := l.acquire(ctx, lockKey(k), token); err != nil {
			release()
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		held = append(held, k)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *Locker) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(lockRetry)
	defer ticker.Stop()
	for {
		ok, err := l.conn.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrLockWait
		case <-ticker.C:
		}
	}
}
