// Package scoring awards points for accepted submissions exactly once.
package scoring

import (
	"context"
	"fmt"
	"time"

	"gavel/internal/common/cache"
	appErr "gavel/pkg/errors"
	"gavel/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	// DefaultAcceptedPoints is awarded per accepted submission.
	DefaultAcceptedPoints int64 = 10
	// DefaultRankKey is the sorted set mirroring cumulative scores.
	DefaultRankKey = "leaderboard:rank"

	creditedKeyPrefix = "judge:credited:"
	creditedKeyTTL    = 24 * time.Hour
)

// CreditStore records one credit per submission atomically.
// CreditOnce returns false without error when the submission was already
// credited; the caller must not retry in that case.
type CreditStore interface {
	CreditOnce(ctx context.Context, submissionID, userID string, points int64) (bool, error)
}

// Accrual awards points through the store of record and mirrors the running
// totals into the cache rank set.
type Accrual struct {
	store   CreditStore
	cache   cache.Cache
	points  int64
	rankKey string
}

// NewAccrual creates an accrual service. points <= 0 falls back to the
// default award; an empty rankKey falls back to the default key.
func NewAccrual(store CreditStore, c cache.Cache, points int64, rankKey string) (*Accrual, error) {
	if store == nil {
		return nil, fmt.Errorf("credit store is required")
	}
	if c == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if points <= 0 {
		points = DefaultAcceptedPoints
	}
	if rankKey == "" {
		rankKey = DefaultRankKey
	}
	return &Accrual{store: store, cache: c, points: points, rankKey: rankKey}, nil
}

// Points returns the award per accepted submission.
func (a *Accrual) Points() int64 {
	return a.points
}

// RankKey returns the cache key of the rank mirror.
func (a *Accrual) RankKey() string {
	return a.rankKey
}

// Credit awards the points for one accepted submission. The store's
// check-and-record makes the call idempotent: a second call for the same
// submission returns false and changes nothing. The rank mirror is updated
// best effort; the store stays the source of truth.
func (a *Accrual) Credit(ctx context.Context, submissionID, userID string) (bool, error) {
	if submissionID == "" || userID == "" {
		return false, appErr.New(appErr.InvalidParams).WithMessage("submission id and user id are required")
	}

	// Read-only fast path: the marker is written only after the store has
	// durably recorded the credit, so its presence proves the record exists.
	// A marker must never exist without a store record; the reverse (record
	// without marker) only costs one extra store round trip.
	marker := creditedKeyPrefix + submissionID
	if n, err := a.cache.Exists(ctx, marker); err == nil && n > 0 {
		logger.Debug(ctx, "credit marker present, skipping store",
			zap.String("submission_id", submissionID))
		return false, nil
	}

	applied, err := a.store.CreditOnce(ctx, submissionID, userID, a.points)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.CreditFailed, "credit submission %s failed", submissionID)
	}
	a.setCreditedMarker(ctx, marker)
	if !applied {
		logger.Debug(ctx, "submission already credited",
			zap.String("submission_id", submissionID),
			zap.String("user_id", userID))
		return false, nil
	}

	if _, err := a.cache.ZIncrBy(ctx, a.rankKey, float64(a.points), userID); err != nil {
		logger.Warn(ctx, "rank mirror update failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}

	logger.Info(ctx, "score credited",
		zap.String("submission_id", submissionID),
		zap.String("user_id", userID),
		zap.Int64("points", a.points))
	return true, nil
}

// setCreditedMarker records the fast-path marker best effort. It runs only
// after CreditOnce has committed.
func (a *Accrual) setCreditedMarker(ctx context.Context, marker string) {
	if err := a.cache.Set(ctx, marker, "1", creditedKeyTTL); err != nil {
		logger.Warn(ctx, "credit marker write failed",
			zap.String("key", marker), zap.Error(err))
	}
}
