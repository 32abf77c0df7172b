package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PeriodCloseLockKey builds redis keys for the period close critical section.
func PeriodCloseLockKey(periodID int64) string {
	return fmt.Sprintf("ledger:period:%d:close", periodID)
}

// ReconLockKey builds redis keys guarding one-in-progress reconciliation
// per bank account.
func ReconLockKey(bankAccountID int64) string {
	return fmt.Sprintf("ledger:recon:%d", bankAccountID)
}

// AdvisoryLock is a best-effort cross-process mutex on redis SETNX.
type AdvisoryLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAdvisoryLock constructs AdvisoryLock with the given lease TTL.
func NewAdvisoryLock(client *redis.Client, ttl time.Duration) *AdvisoryLock {
	return &AdvisoryLock{client: client, ttl: ttl}
}

// Acquire takes the named lock. Returns false when it is already held.
func (l *AdvisoryLock) Acquire(ctx context.Context, key string) (bool, error) {
	if l == nil || l.client == nil {
		// No redis configured; fall back to storage-level constraints alone.
		return true, nil
	}
	return l.client.SetNX(ctx, key, "1", l.ttl).Result()
}

// Release drops the named lock.
func (l *AdvisoryLock) Release(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Del(ctx, key).Err()
}
