package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gavel/internal/common/cache"
	appErr "gavel/pkg/errors"
)

type fakeCreditStore struct {
	credited map[string]bool
	err      error
	failures int
	calls    int
}

func (f *fakeCreditStore) CreditOnce(_ context.Context, submissionID, _ string, _ int64) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if f.failures > 0 {
		f.failures--
		return false, errors.New("store temporarily down")
	}
	if f.credited == nil {
		f.credited = make(map[string]bool)
	}
	if f.credited[submissionID] {
		return false, nil
	}
	f.credited[submissionID] = true
	return true, nil
}

func newTestCache(t *testing.T) (cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	return c, mr
}

func TestCreditAwardsOnce(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	store := &fakeCreditStore{}
	accrual, err := NewAccrual(store, c, 0, "")
	if err != nil {
		t.Fatalf("NewAccrual: %v", err)
	}

	applied, err := accrual.Credit(context.Background(), "s1", "u1")
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if !applied {
		t.Fatal("expected first credit to apply")
	}

	score, err := c.ZScore(context.Background(), DefaultRankKey, "u1")
	if err != nil {
		t.Fatalf("ZScore: %v", err)
	}
	if score != float64(DefaultAcceptedPoints) {
		t.Fatalf("expected rank score %d, got %v", DefaultAcceptedPoints, score)
	}
}

func TestCreditIdempotent(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	store := &fakeCreditStore{}
	accrual, _ := NewAccrual(store, c, 10, "rank:test")

	for i := 0; i < 3; i++ {
		applied, err := accrual.Credit(context.Background(), "s1", "u1")
		if err != nil {
			t.Fatalf("Credit %d: %v", i, err)
		}
		if applied != (i == 0) {
			t.Fatalf("call %d: applied=%v", i, applied)
		}
	}

	score, err := c.ZScore(context.Background(), "rank:test", "u1")
	if err != nil {
		t.Fatalf("ZScore: %v", err)
	}
	if score != 10 {
		t.Fatalf("expected score 10 after repeated credits, got %v", score)
	}
}

func TestCreditAccumulatesAcrossSubmissions(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	accrual, _ := NewAccrual(&fakeCreditStore{}, c, 10, "rank:test")

	for _, id := range []string{"s1", "s2", "s3"} {
		if _, err := accrual.Credit(context.Background(), id, "u1"); err != nil {
			t.Fatalf("Credit %s: %v", id, err)
		}
	}

	score, _ := c.ZScore(context.Background(), "rank:test", "u1")
	if score != 30 {
		t.Fatalf("expected accumulated score 30, got %v", score)
	}
}

func TestCreditStoreError(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	store := &fakeCreditStore{err: errors.New("db down")}
	accrual, _ := NewAccrual(store, c, 10, "rank:test")

	applied, err := accrual.Credit(context.Background(), "s1", "u1")
	if applied {
		t.Fatal("credit must not apply on store failure")
	}
	if appErr.GetCode(err) != appErr.CreditFailed {
		t.Fatalf("expected credit failure code, got %v", err)
	}
}

func TestCreditRetriesAfterStoreFailure(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	store := &fakeCreditStore{failures: 1}
	accrual, _ := NewAccrual(store, c, 10, "rank:test")
	ctx := context.Background()

	if _, err := accrual.Credit(ctx, "s1", "u1"); appErr.GetCode(err) != appErr.CreditFailed {
		t.Fatalf("expected credit failure, got %v", err)
	}

	// A failed credit must not leave a marker behind, or retries would be
	// suppressed and the credit lost for the marker's lifetime.
	n, err := c.Exists(ctx, creditedKeyPrefix+"s1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if n != 0 {
		t.Fatal("marker present after failed credit")
	}

	applied, err := accrual.Credit(ctx, "s1", "u1")
	if err != nil {
		t.Fatalf("retry Credit: %v", err)
	}
	if !applied {
		t.Fatal("retry after store recovery must apply the credit")
	}
	if store.calls != 2 {
		t.Fatalf("expected the retry to reach the store, got %d calls", store.calls)
	}

	score, _ := c.ZScore(ctx, "rank:test", "u1")
	if score != 10 {
		t.Fatalf("expected score 10 after recovery, got %v", score)
	}
}

func TestCreditMarkerShortCircuitsStore(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	store := &fakeCreditStore{}
	accrual, _ := NewAccrual(store, c, 10, "rank:test")
	ctx := context.Background()

	if _, err := accrual.Credit(ctx, "s1", "u1"); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, err := accrual.Credit(ctx, "s1", "u1"); err != nil {
		t.Fatalf("repeat Credit: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected the marker to absorb the repeat, got %d store calls", store.calls)
	}
}

func TestCreditSurvivesCacheOutage(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	accrual, _ := NewAccrual(&fakeCreditStore{}, c, 10, "rank:test")
	mr.Close()

	applied, err := accrual.Credit(context.Background(), "s1", "u1")
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if !applied {
		t.Fatal("credit must apply even when the rank mirror is down")
	}
}
