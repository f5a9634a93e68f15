package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/webcrawler/internal/logger"
)

// RunLockKey is the coordinator-store key guarding against two crawler
// processes running concurrently against the same coordinator store, which
// would otherwise race on frontier dispatch and double-count stats.
const RunLockKey = "crawler:run_lock"

// DefaultRunLockTTL bounds how long a crashed holder's lock lingers before
// another process can acquire it.
const DefaultRunLockTTL = 60 * time.Second

var (
	// ErrRunLockHeld is returned when another process already holds the run lock.
	ErrRunLockHeld = errors.New("coordinator: run lock held by another process")
	// ErrRunLockLost is returned by Release when the lock was not held by
	// this token, e.g. it already expired and was claimed by another process.
	ErrRunLockLost = errors.New("coordinator: run lock was not held by this process")
)

// RunLock is a single-holder lease identifying the process currently driving
// a crawl against a shared coordinator store: a SETNX-acquired token
// released (or extended) only by the holder via a check-and-delete Lua
// script.
type RunLock struct {
	client *redis.Client
	token  string
	ttl    time.Duration
}

// NewRunLock constructs a RunLock with a fresh random token, identifying
// this process's run for as long as it holds the lease.
func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = DefaultRunLockTTL
	}
	return &RunLock{client: client, token: uuid.NewString(), ttl: ttl}
}

// Token returns this lock's run identifier, used as a correlation ID in
// stats-reporter log lines.
func (l *RunLock) Token() string {
	return l.token
}

// Acquire claims the run lock, returning ErrRunLockHeld if another process
// already holds it.
func (l *RunLock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, RunLockKey, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquiring run lock: %w", err)
	}
	if !ok {
		return ErrRunLockHeld
	}
	return nil
}

// Extend renews the lease TTL, as long as it is still held by this token.
func (l *RunLock) Extend(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
	result, err := script.Run(ctx, l.client, []string{RunLockKey}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extending run lock: %w", err)
	}
	if result == 0 {
		return ErrRunLockLost
	}
	return nil
}

// Heartbeat renews the lease every ttl/3 until ctx is canceled, keeping
// the lock held for crawls that outlive the TTL. If the lease is lost to
// another process, renewal stops; the eventual Release will report
// ErrRunLockLost.
func (l *RunLock) Heartbeat(ctx context.Context, log logger.Interface) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := l.Extend(ctx)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrRunLockLost) {
				log.Error("run lock lost, another process may have claimed it", "error", err)
				return
			}
			log.Warn("failed to extend run lock", "error", err)
		}
	}
}

// Release drops the lease if this token still holds it.
func (l *RunLock) Release(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	result, err := script.Run(ctx, l.client, []string{RunLockKey}, l.token).Int()
	if err != nil {
		return fmt.Errorf("releasing run lock: %w", err)
	}
	if result == 0 {
		return ErrRunLockLost
	}
	return nil
}
