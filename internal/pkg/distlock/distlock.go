// Package distlock provides the locks that keep a job from being processed
// by two workers at once. Redis is preferred; PostgreSQL advisory locks are
// the fallback when no Redis is configured.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dashboard/internal/pkg/logger"
)

// ErrNotAcquired is returned by WithLock when another holder owns the lock.
var ErrNotAcquired = errors.New("distlock: lock held elsewhere")

// DistLock is a single-owner lock. One instance must not be shared across
// goroutines.
type DistLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Factory creates a lock for a key.
type Factory func(key string) DistLock

// NewFactory returns a Factory backed by Redis when redisClient is non-nil
// and by PostgreSQL advisory locks otherwise.
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Factory {
	return func(key string) DistLock {
		return NewLock(redisClient, db, key, ttl)
	}
}

// NewLock creates a lock on the best available backend.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// JobKey is the lock key for processing a job.
func JobKey(jobID string) string {
	return "sms-job:" + jobID
}

// WithLock runs fn while holding lock. It returns ErrNotAcquired without
// calling fn when the lock is taken. Release uses a fresh context so a
// canceled ctx still frees the lock.
func WithLock(ctx context.Context, lock DistLock, fn func(ctx context.Context) error) error {
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrNotAcquired
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			logger.Warn("release lock failed", "error", err)
		}
	}()
	return fn(ctx)
}

// PGAdvisoryLock uses pg_try_advisory_lock. The lock is session-scoped, so
// it goes away if the connection drops.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives a stable lock ID from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries the advisory lock without blocking. The lock and unlock
// must run on the same connection, so one is pinned until Release.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("pin connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
