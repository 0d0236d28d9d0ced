// Package coordinator drives one submission through evaluation, result
// persistence and score accrual.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gavel/internal/common/mq"
	"gavel/internal/judge/harness"
	"gavel/internal/judge/model"
	"gavel/internal/judge/repository"
	"gavel/internal/judge/sandbox"
	"gavel/internal/judge/scoring"
	appErr "gavel/pkg/errors"
	"gavel/pkg/utils/contextkey"
	"gavel/pkg/utils/logger"

	"go.uber.org/zap"
)

// Config bounds the coordinator.
type Config struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

const reclaimTimeout = 5 * time.Second

// Coordinator owns the judging pipeline for single submissions.
// Judge is safe to call concurrently and to call again for the same
// submission; a submission is judged at most once.
type Coordinator struct {
	submissions repository.SubmissionRepository
	problems    repository.ProblemRepository
	harness     harness.Harness
	accrual     *scoring.Accrual
	executor    sandbox.Executor
	slots       chan struct{}
}

// New creates a coordinator. MaxConcurrent <= 0 defaults to 4 concurrent
// evaluations.
func New(
	submissions repository.SubmissionRepository,
	problems repository.ProblemRepository,
	h harness.Harness,
	accrual *scoring.Accrual,
	executor sandbox.Executor,
	cfg Config,
) (*Coordinator, error) {
	if submissions == nil || problems == nil || h == nil || accrual == nil || executor == nil {
		return nil, fmt.Errorf("all coordinator dependencies are required")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Coordinator{
		submissions: submissions,
		problems:    problems,
		harness:     h,
		accrual:     accrual,
		executor:    executor,
		slots:       make(chan struct{}, cfg.MaxConcurrent),
	}, nil
}

// Judge evaluates one pending submission end to end. Infrastructure faults
// return an error and leave the submission pending so the trigger can retry;
// verdicts about the submitted code always reach a terminal status.
func (c *Coordinator) Judge(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("submission id is required")
	}
	ctx = context.WithValue(ctx, contextkey.SubmissionID, submissionID)

	sub, err := c.submissions.Get(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.Status.Terminal() {
		// A crash between finalize and credit leaves an accepted submission
		// uncredited. Credit here is idempotent, so re-running repairs that.
		if sub.Status == model.StatusAccepted {
			if _, err := c.accrual.Credit(ctx, sub.ID, sub.UserID); err != nil {
				return err
			}
		}
		logger.Debug(ctx, "submission already terminal", zap.String("status", string(sub.Status)))
		return nil
	}

	if err := c.acquireSlot(ctx); err != nil {
		return err
	}
	defer c.releaseSlot()

	prob, err := c.problems.Get(ctx, sub.ProblemID)
	if err != nil {
		if isDataFault(err) {
			return c.rejectInvalid(ctx, sub, err)
		}
		return err
	}

	verdict, err := c.harness.Evaluate(ctx, sub, prob)
	if err != nil {
		if appErr.Is(err, appErr.JudgeCancelled) {
			c.reclaim(sub.ID)
			return err
		}
		if isDataFault(err) {
			return c.rejectInvalid(ctx, sub, err)
		}
		return err
	}

	status := model.StatusRejected
	if verdict.Passed {
		status = model.StatusAccepted
	}
	applied, err := c.submissions.FinalizeResult(ctx, sub.ID, status, verdict.Results)
	if err != nil {
		return err
	}
	if !applied {
		logger.Info(ctx, "submission finalized concurrently, verdict discarded")
		return nil
	}

	if status == model.StatusAccepted {
		if _, err := c.accrual.Credit(ctx, sub.ID, sub.UserID); err != nil {
			return err
		}
	}

	logger.Info(ctx, "submission judged",
		zap.String("user_id", sub.UserID),
		zap.String("problem_id", sub.ProblemID),
		zap.String("status", string(status)))
	return nil
}

// Handler adapts Judge to the message queue. Malformed payloads and unknown
// submissions are dropped rather than retried; everything else propagates so
// the queue's retry and dead-letter policy applies.
func (c *Coordinator) Handler() mq.HandlerFunc {
	return func(ctx context.Context, message *mq.Message) error {
		var jm model.JudgeMessage
		if err := json.Unmarshal(message.Body, &jm); err != nil {
			logger.Error(ctx, "undecodable judge message dropped",
				zap.String("message_id", message.ID), zap.Error(err))
			return nil
		}
		err := c.Judge(ctx, jm.SubmissionID)
		switch appErr.GetCode(err) {
		case appErr.Success:
			return nil
		case appErr.InvalidParams, appErr.SubmissionNotFound:
			logger.Error(ctx, "unjudgeable message dropped",
				zap.String("submission_id", jm.SubmissionID), zap.Error(err))
			return nil
		default:
			return err
		}
	}
}

func (c *Coordinator) acquireSlot(ctx context.Context) error {
	select {
	case c.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return appErr.Wrap(ctx.Err(), appErr.JudgeCancelled)
	}
}

func (c *Coordinator) releaseSlot() {
	<-c.slots
}

// rejectInvalid finalizes a submission whose problem data cannot be judged.
// The single diagnostic result names the fault so the author can see it.
func (c *Coordinator) rejectInvalid(ctx context.Context, sub *model.Submission, cause error) error {
	logger.Warn(ctx, "rejecting submission with unjudgeable data",
		zap.String("problem_id", sub.ProblemID), zap.Error(cause))

	diagnostic := []model.TestResult{{
		Error:  model.ErrTagInvalid,
		Actual: cause.Error(),
	}}
	if _, err := c.submissions.FinalizeResult(ctx, sub.ID, model.StatusRejected, diagnostic); err != nil {
		return err
	}
	return nil
}

// reclaim kills any sandbox still running for the submission. Uses a fresh
// bounded context: the caller's one is already cancelled, and shutdown must
// not hang on a wedged kill.
func (c *Coordinator) reclaim(submissionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), reclaimTimeout)
	defer cancel()
	if err := c.executor.Kill(ctx, submissionID); err != nil {
		logger.Warn(ctx, "sandbox reclaim failed",
			zap.String("submission_id", submissionID), zap.Error(err))
	}
}

func isDataFault(err error) bool {
	switch appErr.GetCode(err) {
	case appErr.ProblemNotFound, appErr.TestCaseDataInvalid, appErr.RequiredFieldEmpty, appErr.UnsupportedLanguage:
		return true
	default:
		return false
	}
}
