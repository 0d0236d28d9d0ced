package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	return c, mr
}

func TestGetMissingKey(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	got, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty value for missing key, got %q", got)
	}
}

func TestSetGetWithTTL(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Fatalf("Get: %q, %v", got, err)
	}

	mr.FastForward(2 * time.Minute)
	got, err = c.Get(ctx, "k")
	if err != nil || got != "" {
		t.Fatalf("expected expired key to read empty, got %q, %v", got, err)
	}
}

func TestSetNX(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock", "a", 0)
	if err != nil || !ok {
		t.Fatalf("first SetNX: %v %v", ok, err)
	}
	ok, err = c.SetNX(ctx, "lock", "b", 0)
	if err != nil {
		t.Fatalf("second SetNX: %v", err)
	}
	if ok {
		t.Fatal("second SetNX must not overwrite")
	}
}

func TestZSetOps(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	ctx := context.Background()

	for _, step := range []struct {
		member string
		incr   float64
	}{
		{"alice", 10}, {"bob", 20}, {"alice", 10}, {"carol", 5},
	} {
		if _, err := c.ZIncrBy(ctx, "rank", step.incr, step.member); err != nil {
			t.Fatalf("ZIncrBy: %v", err)
		}
	}

	score, err := c.ZScore(ctx, "rank", "alice")
	if err != nil || score != 20 {
		t.Fatalf("ZScore alice: %v, %v", score, err)
	}

	score, err = c.ZScore(ctx, "rank", "nobody")
	if err != nil || score != 0 {
		t.Fatalf("expected zero score for missing member, got %v, %v", score, err)
	}

	card, err := c.ZCard(ctx, "rank")
	if err != nil || card != 3 {
		t.Fatalf("ZCard: %v, %v", card, err)
	}

	members, err := c.ZRevRangeWithScores(ctx, "rank", 0, 1)
	if err != nil {
		t.Fatalf("ZRevRangeWithScores: %v", err)
	}
	if len(members) != 2 || members[0].Member != "bob" || members[1].Member != "alice" {
		t.Fatalf("unexpected ranking: %+v", members)
	}
}

func TestDelAndExists(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "a", "1", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	n, err := c.Exists(ctx, "a", "b")
	if err != nil || n != 1 {
		t.Fatalf("Exists: %v, %v", n, err)
	}
	if err := c.Del(ctx, "a"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	n, err = c.Exists(ctx, "a")
	if err != nil || n != 0 {
		t.Fatalf("expected key gone, got %v, %v", n, err)
	}
}
