package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const leaseNamespace = "tabledesk:lease:"

// KEYS[1] lease key, ARGV[1] owner token.
const leaseDropScript = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`

// KEYS[1] lease key, ARGV[1] owner token, ARGV[2] ttl in milliseconds.
const leaseExtendScript = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("PEXPIRE", KEYS[1], ARGV[2])
`

var (
	ErrLockNotConfigured = errors.New("lock client not configured")
	ErrLeaseLost         = errors.New("lease no longer held")
)

// Locker hands out short-lived named leases so that a background job runs on
// one replica at a time.
type Locker struct {
	client *redis.Client
	drop   *redis.Script
	extend *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		drop:   redis.NewScript(leaseDropScript),
		extend: redis.NewScript(leaseExtendScript),
	}
}

// Lease is a held lock. The zero value holds nothing.
type Lease struct {
	Name  string
	key   string
	token string
	owner *Locker
}

// Acquire returns nil without error when another holder owns name.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrLockNotConfigured
	}
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return nil, errors.New("lease name is empty")
	case ttl <= 0:
		return nil, errors.New("lease ttl must be positive")
	}

	lease := &Lease{Name: name, key: leaseNamespace + name, token: uuid.NewString(), owner: l}
	acquired, err := l.client.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, nil
	}
	return lease, nil
}

// Extend pushes the expiry out to ttl from now. ErrLeaseLost means the lease
// expired and may already belong to someone else.
func (le *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	if le == nil || le.owner == nil {
		return ErrLeaseLost
	}
	n, err := le.owner.extend.Run(ctx, le.owner.client, []string{le.key}, le.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release is a no-op for a nil lease or one that has already expired.
func (le *Lease) Release(ctx context.Context) error {
	if le == nil || le.owner == nil {
		return nil
	}
	return le.owner.drop.Run(ctx, le.owner.client, []string{le.key}, le.token).Err()
}
