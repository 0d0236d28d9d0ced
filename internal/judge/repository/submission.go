// Package repository implements MySQL persistence with a Redis read cache.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gavel/internal/common/cache"
	"gavel/internal/common/db"
	"gavel/internal/judge/model"
	appErr "gavel/pkg/errors"
	"gavel/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	statusCachePrefix = "judge:status:"
	statusCacheTTL    = 10 * time.Minute
)

// SubmissionRepository persists submissions and their terminal results.
type SubmissionRepository interface {
	Create(ctx context.Context, sub *model.Submission) error
	Get(ctx context.Context, id string) (*model.Submission, error)
	GetStatus(ctx context.Context, id string) (model.Status, error)

	// FinalizeResult atomically moves a pending submission to a terminal
	// status together with its per-case results. Returns false when the
	// submission was already terminal; the stored verdict is untouched then.
	FinalizeResult(ctx context.Context, id string, status model.Status, results []model.TestResult) (bool, error)
}

type submissionRepo struct {
	db    db.Database
	cache cache.Cache
}

// NewSubmissionRepository creates a MySQL-backed submission repository.
func NewSubmissionRepository(database db.Database, c cache.Cache) (SubmissionRepository, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if c == nil {
		return nil, fmt.Errorf("cache is required")
	}
	return &submissionRepo{db: database, cache: c}, nil
}

func (r *submissionRepo) Create(ctx context.Context, sub *model.Submission) error {
	if sub == nil || sub.ID == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("submission id is required")
	}
	if sub.Status == "" {
		sub.Status = model.StatusPending
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO submissions (id, problem_id, user_id, code, language, status, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ProblemID, sub.UserID, sub.Code, sub.Language, string(sub.Status), sub.SubmittedAt)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "insert submission %s failed", sub.ID)
	}
	return nil
}

func (r *submissionRepo) Get(ctx context.Context, id string) (*model.Submission, error) {
	if id == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("submission id is required")
	}

	var (
		sub        model.Submission
		status     string
		resultsRaw sql.NullString
	)
	row := r.db.QueryRow(ctx,
		`SELECT id, problem_id, user_id, code, language, status, results, submitted_at
		 FROM submissions WHERE id = ?`, id)
	err := row.Scan(&sub.ID, &sub.ProblemID, &sub.UserID, &sub.Code, &sub.Language,
		&status, &resultsRaw, &sub.SubmittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErr.Newf(appErr.SubmissionNotFound, "submission %s not found", id)
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "query submission %s failed", id)
	}

	sub.Status = model.Status(status)
	if resultsRaw.Valid && resultsRaw.String != "" {
		if err := json.Unmarshal([]byte(resultsRaw.String), &sub.Results); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "decode results of submission %s failed", id)
		}
	}
	return &sub, nil
}

// GetStatus serves terminal statuses from the cache when possible.
// Pending is never cached; it is the only status that can still change.
func (r *submissionRepo) GetStatus(ctx context.Context, id string) (model.Status, error) {
	if id == "" {
		return "", appErr.New(appErr.InvalidParams).WithMessage("submission id is required")
	}

	key := statusCachePrefix + id
	if cached, err := r.cache.Get(ctx, key); err == nil && cached != "" {
		return model.Status(cached), nil
	}

	var status string
	row := r.db.QueryRow(ctx, `SELECT status FROM submissions WHERE id = ?`, id)
	err := row.Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", appErr.Newf(appErr.SubmissionNotFound, "submission %s not found", id)
	}
	if err != nil {
		return "", appErr.Wrapf(err, appErr.DatabaseError, "query submission status %s failed", id)
	}

	st := model.Status(status)
	if st.Terminal() {
		r.cacheStatus(ctx, id, st)
	}
	return st, nil
}

func (r *submissionRepo) FinalizeResult(ctx context.Context, id string, status model.Status, results []model.TestResult) (bool, error) {
	if id == "" {
		return false, appErr.New(appErr.InvalidParams).WithMessage("submission id is required")
	}
	if !status.Terminal() {
		return false, appErr.Newf(appErr.InvalidParams, "status %q is not terminal", status)
	}

	payload, err := json.Marshal(results)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.InternalServerError, "encode results of submission %s failed", id)
	}

	res, err := r.db.Exec(ctx,
		`UPDATE submissions SET status = ?, results = ? WHERE id = ? AND status = ?`,
		string(status), string(payload), id, string(model.StatusPending))
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "finalize submission %s failed", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "finalize submission %s failed", id)
	}
	if affected == 0 {
		return false, nil
	}

	r.cacheStatus(ctx, id, status)
	return true, nil
}

func (r *submissionRepo) cacheStatus(ctx context.Context, id string, status model.Status) {
	if err := r.cache.Set(ctx, statusCachePrefix+id, string(status), statusCacheTTL); err != nil {
		logger.Warn(ctx, "status cache update failed",
			zap.String("submission_id", id), zap.Error(err))
	}
}
