// Package ratelimit provides redis-backed fixed-window counters gating the
// authentication endpoints. Counters are best-effort: approximate under
// concurrent bursts and not persisted beyond their redis TTLs.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRedisUnavailable = errors.New("rate limit redis unavailable")

// Policy describes one endpoint class. Key material differs per class and
// is supplied by the caller via Key.
type Policy struct {
	Name   string
	Max    int
	Window time.Duration
}

var (
	// GenericAPI is the high-ceiling per-IP gate on all traffic.
	GenericAPI = Policy{Name: "api", Max: 1000, Window: time.Minute}

	// AdminLogin throttles super-admin key guessing per IP.
	AdminLogin = Policy{Name: "admin_login", Max: 5, Window: 15 * time.Minute}

	// AdminPinReset is keyed by (IP, tenant) to bound per-tenant blast
	// radius independent of attacker IP rotation.
	AdminPinReset = Policy{Name: "admin_pin_reset", Max: 3, Window: 15 * time.Minute}

	// OwnerLogin is keyed by the submitted tenant code itself, which blocks
	// distributed brute force that rotates source IPs against one tenant.
	OwnerLogin = Policy{Name: "owner_login", Max: 20, Window: time.Hour}

	// ForgotPin is keyed by (IP, code), matching the pin-reset tier.
	ForgotPin = Policy{Name: "forgot_pin", Max: 3, Window: 15 * time.Minute}
)

// Key builds the counter key for this policy from its parts.
func (p Policy) Key(parts ...string) string {
	return "rl:" + p.Name + ":" + strings.Join(parts, ":")
}

type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

type Limiter struct {
	redis redis.UniversalClient
}

func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{redis: redisClient}
}

// Check increments the window counter for key and reports whether the call
// is within budget. The window TTL is set on the first hit; once the budget
// is spent the remaining TTL is returned as the retry-after hint.
func (l *Limiter) Check(ctx context.Context, p Policy, key string) (Result, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, p.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(p.Max) {
		ttl, err := l.redis.PTTL(ctx, key).Result()
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if ttl <= 0 {
			ttl = p.Window
		}
		return Result{Allowed: false, RetryAfter: ttl}, nil
	}

	return Result{Allowed: true}, nil
}

// Reset clears the counter for key. Called after a successful login so a
// legitimate owner is not locked out by their own typos.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
