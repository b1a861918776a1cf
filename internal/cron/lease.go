package cron

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	pkgredis "github.com/cornman/cornman-backend/pkg/redis"
)

// LeaseName is the redis key suffix shared by every cron worker replica.
const LeaseName = "cron-worker"

const defaultLeaseTTL = 30 * time.Minute

// ErrLeaseLost is returned by Renew when another worker owns the lease or it expired.
var ErrLeaseLost = errors.New("cron lease lost")

// Lease keeps one cron worker running jobs at a time. The holder renews it between jobs so
// a long cycle does not outlive the TTL.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
	Holder(ctx context.Context) (string, error)
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLease stores the holder token under a single key with a TTL. Tokens carry the host
// and pid so a skipped replica can log who is busy.
type RedisLease struct {
	client leaseStore
	key    string
	ttl    time.Duration
	token  func() string
	held   string
}

func NewRedisLease(client leaseStore, key string, ttl time.Duration) (*RedisLease, error) {
	if client == nil {
		return nil, errors.New("redis client required for cron lease")
	}
	if key == "" {
		return nil, errors.New("cron lease key is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLease{client: client, key: key, ttl: ttl, token: holderToken}, nil
}

func holderToken() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%d/%s", host, os.Getpid(), uuid.NewString())
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	token := l.token()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("claim cron lease: %w", err)
	}
	if ok {
		l.held = token
	}
	return ok, nil
}

// Renew pushes the expiry out by another TTL while this worker still holds the lease.
func (l *RedisLease) Renew(ctx context.Context) error {
	if l.held == "" {
		return ErrLeaseLost
	}
	holder, err := l.Holder(ctx)
	if err != nil {
		return err
	}
	if holder != l.held {
		l.held = ""
		return ErrLeaseLost
	}
	alive, err := l.client.Expire(ctx, l.key, l.ttl)
	if err != nil {
		return fmt.Errorf("extend cron lease: %w", err)
	}
	if !alive {
		l.held = ""
		return ErrLeaseLost
	}
	return nil
}

// Release drops the key if this worker still holds it. Releasing a lease that expired or
// moved to another worker is not an error.
func (l *RedisLease) Release(ctx context.Context) error {
	if l.held == "" {
		return nil
	}
	holder, err := l.Holder(ctx)
	if err != nil {
		return err
	}
	token := l.held
	l.held = ""
	if holder != token {
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("drop cron lease: %w", err)
	}
	return nil
}

// Holder returns the current holder token, or "" when nobody holds the lease.
func (l *RedisLease) Holder(ctx context.Context) (string, error) {
	value, err := l.client.Get(ctx, l.key)
	if pkgredis.IsNil(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cron lease: %w", err)
	}
	return value, nil
}
