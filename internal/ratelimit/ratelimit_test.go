package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client), mr
}

func TestCheckWindowBudget(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	p := Policy{Name: "test", Max: 3, Window: time.Second}
	key := p.Key("1.2.3.4")

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, p, key)
		require.NoError(t, err)
		require.True(t, res.Allowed, "call %d should be allowed", i+1)
	}

	res, err := l.Check(ctx, p, key)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))

	// After the window elapses the counter expires and calls pass again.
	mr.FastForward(1100 * time.Millisecond)

	res, err = l.Check(ctx, p, key)
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestCheckIndependentKeys(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	p := Policy{Name: "test", Max: 1, Window: time.Minute}

	res, err := l.Check(ctx, p, p.Key("AAAAAA"))
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = l.Check(ctx, p, p.Key("AAAAAA"))
	require.NoError(t, err)
	require.False(t, res.Allowed)

	// A different tenant code is unaffected.
	res, err = l.Check(ctx, p, p.Key("BBBBBB"))
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	p := Policy{Name: "test", Max: 1, Window: time.Minute}
	key := p.Key("AAAAAA")

	_, err := l.Check(ctx, p, key)
	require.NoError(t, err)
	res, err := l.Check(ctx, p, key)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	require.NoError(t, l.Reset(ctx, key))

	res, err = l.Check(ctx, p, key)
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestCheckRedisDown(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()

	_, err := l.Check(context.Background(), GenericAPI, GenericAPI.Key("1.2.3.4"))
	require.ErrorIs(t, err, ErrRedisUnavailable)
}
