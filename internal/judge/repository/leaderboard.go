package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"gavel/internal/common/cache"
	"gavel/internal/common/db"
	"gavel/internal/judge/model"
	appErr "gavel/pkg/errors"
	"gavel/pkg/utils/logger"

	"go.uber.org/zap"
)

const mysqlErrDuplicateEntry = 1062

// LeaderboardRepository persists cumulative scores and the per-submission
// credit records backing idempotent accrual. It satisfies scoring.CreditStore.
type LeaderboardRepository interface {
	CreditOnce(ctx context.Context, submissionID, userID string, points int64) (bool, error)
	GetScore(ctx context.Context, userID string) (int64, error)
	TopN(ctx context.Context, n int64) ([]model.LeaderboardEntry, error)
}

type leaderboardRepo struct {
	db      db.Database
	cache   cache.Cache
	rankKey string
}

// NewLeaderboardRepository creates a MySQL-backed leaderboard repository.
// The cache rank set at rankKey serves top-N reads when populated.
func NewLeaderboardRepository(database db.Database, c cache.Cache, rankKey string) (LeaderboardRepository, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if c == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if rankKey == "" {
		return nil, fmt.Errorf("rank key is required")
	}
	return &leaderboardRepo{db: database, cache: c, rankKey: rankKey}, nil
}

// CreditOnce records the credit and bumps the user's score in one
// transaction. The credit table's primary key on submission_id makes the
// insert the idempotency check: a duplicate key means the submission was
// already credited and the score is left alone.
func (r *leaderboardRepo) CreditOnce(ctx context.Context, submissionID, userID string, points int64) (bool, error) {
	if submissionID == "" || userID == "" {
		return false, appErr.New(appErr.InvalidParams).WithMessage("submission id and user id are required")
	}

	applied := false
	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO leaderboard_credits (submission_id, user_id, points) VALUES (?, ?, ?)`,
			submissionID, userID, points)
		if isDuplicateEntry(err) {
			return nil
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO leaderboard_scores (user_id, score) VALUES (?, ?)
			 ON DUPLICATE KEY UPDATE score = score + VALUES(score)`,
			userID, points)
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "credit transaction for submission %s failed", submissionID)
	}
	return applied, nil
}

func (r *leaderboardRepo) GetScore(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, appErr.New(appErr.InvalidParams).WithMessage("user id is required")
	}

	var score int64
	row := r.db.QueryRow(ctx, `SELECT score FROM leaderboard_scores WHERE user_id = ?`, userID)
	err := row.Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.ScoreQueryFailed, "query score of user %s failed", userID)
	}
	return score, nil
}

// TopN serves the ranking from the cache rank set and falls back to the
// store of record when the set is empty or unavailable.
func (r *leaderboardRepo) TopN(ctx context.Context, n int64) ([]model.LeaderboardEntry, error) {
	if n <= 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("n must be positive")
	}

	members, err := r.cache.ZRevRangeWithScores(ctx, r.rankKey, 0, n-1)
	if err != nil {
		logger.Warn(ctx, "rank set read failed, falling back to database", zap.Error(err))
	} else if len(members) > 0 {
		entries := make([]model.LeaderboardEntry, 0, len(members))
		for _, m := range members {
			entries = append(entries, model.LeaderboardEntry{UserID: m.Member, Score: int64(m.Score)})
		}
		return entries, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT user_id, score FROM leaderboard_scores ORDER BY score DESC, user_id ASC LIMIT ?`, n)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.LeaderboardFailed, "query leaderboard failed")
	}
	defer func() { _ = rows.Close() }()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Score); err != nil {
			return nil, appErr.Wrapf(err, appErr.LeaderboardFailed, "scan leaderboard row failed")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.LeaderboardFailed, "iterate leaderboard rows failed")
	}
	return entries, nil
}

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}
