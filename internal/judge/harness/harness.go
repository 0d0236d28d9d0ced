// Package harness runs a submission against a problem's test cases and
// produces the verdict.
package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gavel/internal/judge/model"
	"gavel/internal/judge/sandbox"
	"gavel/internal/judge/sandbox/outcome"
	"gavel/internal/judge/sandbox/spec"
	appErr "gavel/pkg/errors"
	"gavel/pkg/utils/logger"

	"go.uber.org/zap"
)

// Config bounds one evaluation.
// MaxFailures <= 0 and TotalTimeBudgetMs <= 0 mean unbounded.
type Config struct {
	MaxFailures       int   `yaml:"max_failures"`
	TotalTimeBudgetMs int64 `yaml:"total_time_budget_ms"`
}

// Harness evaluates one submission against one problem.
// An error return is an infrastructure fault; a failing submission is a
// verdict, not an error.
type Harness interface {
	Evaluate(ctx context.Context, sub *model.Submission, prob *model.Problem) (model.Verdict, error)
}

type caseHarness struct {
	executor sandbox.Executor
	limits   spec.ResourceLimit
	cfg      Config
}

// New creates a harness that executes each case through the given executor
// under the given per-case limits.
func New(executor sandbox.Executor, limits spec.ResourceLimit, cfg Config) (Harness, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	return &caseHarness{executor: executor, limits: limits.Normalize(), cfg: cfg}, nil
}

// Evaluate runs every test case in problem order and aggregates the results.
// Cases are never short-circuited on failure; every case gets a fixed-shape
// result so the report is complete. Cases past a budget are marked skipped,
// and a skipped case fails the submission.
func (h *caseHarness) Evaluate(ctx context.Context, sub *model.Submission, prob *model.Problem) (model.Verdict, error) {
	if sub == nil || prob == nil {
		return model.Verdict{}, appErr.New(appErr.InvalidParams).WithMessage("submission and problem are required")
	}
	if err := prob.Validate(); err != nil {
		return model.Verdict{}, err
	}

	start := time.Now()
	results := make([]model.TestResult, 0, len(prob.TestCases))
	failures := 0
	passed := true

	for i, tc := range prob.TestCases {
		if err := ctx.Err(); err != nil {
			return model.Verdict{}, appErr.Wrap(err, appErr.JudgeCancelled)
		}
		if h.budgetExhausted(failures, start) {
			results = append(results, skippedResult(tc))
			passed = false
			continue
		}

		out, err := h.executor.Execute(ctx, sandbox.ExecRequest{
			SubmissionID: sub.ID,
			TaskID:       fmt.Sprintf("case-%d", i),
			Code:         sub.Code,
			Language:     sub.Language,
			Input:        tc.Input,
			Limits:       h.limits,
		})
		if err != nil {
			return model.Verdict{}, err
		}

		result := resultFromOutcome(tc, out)
		results = append(results, result)
		if !result.Passed {
			passed = false
			failures++
		}

		// The same code cannot compile for a later case. Skip the rest.
		if out.Stage == outcome.StageCompile {
			for _, rest := range prob.TestCases[i+1:] {
				results = append(results, skippedResult(rest))
			}
			break
		}
	}

	logger.Info(ctx, "evaluation finished",
		zap.String("submission_id", sub.ID),
		zap.String("problem_id", prob.ID),
		zap.Bool("passed", passed),
		zap.Int("cases", len(results)),
		zap.Int("failures", failures),
		zap.Duration("elapsed", time.Since(start)))

	return model.Verdict{Passed: passed, Results: results}, nil
}

func (h *caseHarness) budgetExhausted(failures int, start time.Time) bool {
	if h.cfg.MaxFailures > 0 && failures >= h.cfg.MaxFailures {
		return true
	}
	if h.cfg.TotalTimeBudgetMs > 0 && time.Since(start).Milliseconds() >= h.cfg.TotalTimeBudgetMs {
		return true
	}
	return false
}

// resultFromOutcome maps one execution outcome to the per-case record.
// Output is compared exactly after trimming leading and trailing whitespace;
// stderr never participates in the comparison.
func resultFromOutcome(tc model.TestCase, out outcome.Outcome) model.TestResult {
	result := model.TestResult{
		Input:    tc.Input,
		Expected: tc.Output,
		TimeMs:   out.TimeMs,
		MemoryKB: out.MemoryKB,
	}
	switch out.Kind {
	case outcome.KindOutput:
		result.Actual = out.Stdout
		result.Passed = strings.TrimSpace(out.Stdout) == strings.TrimSpace(tc.Output)
	case outcome.KindTimedOut:
		result.Error = model.ErrTagTimeout
	case outcome.KindResourceExceeded:
		result.Error = model.ErrTagResource
	case outcome.KindRuntimeError:
		if out.Stage == outcome.StageCompile {
			result.Error = model.ErrTagCompile
		} else {
			result.Error = model.ErrTagRuntime
		}
	default:
		result.Error = model.ErrTagRuntime
	}
	return result
}

func skippedResult(tc model.TestCase) model.TestResult {
	return model.TestResult{
		Input:    tc.Input,
		Expected: tc.Output,
		Error:    model.ErrTagSkipped,
	}
}
