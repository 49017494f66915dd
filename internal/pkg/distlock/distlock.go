// Package distlock guards campaign runs against concurrent launches.
// Two schedulers pointed at the same campaign service must not both
// create and monitor the monthly campaign.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunLock is a distributed mutual-exclusion primitive keyed by campaign
// name. Implementations are meant for single-goroutine use; take a
// separate lock instance per goroutine.
type RunLock interface {
	// Acquire tries to take the lock without blocking. Returns true on
	// success.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock back if this instance still owns it.
	Release(ctx context.Context) error
}

// New picks the best available backend. Redis is preferred for
// cross-host locking; PostgreSQL advisory locks serve when only the
// run-history database is configured.
func New(redisClient *redis.Client, db *sql.DB, campaignName string, ttl time.Duration) RunLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, campaignName, ttl)
	}
	return NewPGAdvisoryLock(db, campaignName)
}

// PGAdvisoryLock implements RunLock on pg_try_advisory_lock. The lock
// is session-scoped, so a crashed holder releases it when its
// connection drops.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewPGAdvisoryLock derives a deterministic advisory lock ID from the
// campaign name.
func NewPGAdvisoryLock(db *sql.DB, campaignName string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(campaignName))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
