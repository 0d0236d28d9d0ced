package engine

import (
	"context"

	"gavel/internal/judge/sandbox/outcome"
	"gavel/internal/judge/sandbox/spec"
)

// Engine executes a RunSpec inside an isolated sandbox.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (outcome.RunResult, error)
	KillSubmission(ctx context.Context, submissionID string) error
}
