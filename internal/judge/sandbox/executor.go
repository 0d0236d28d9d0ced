// Package sandbox provides the execution capability used by the test harness.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gavel/internal/judge/sandbox/engine"
	"gavel/internal/judge/sandbox/outcome"
	"gavel/internal/judge/sandbox/profile"
	"gavel/internal/judge/sandbox/spec"
	appErr "gavel/pkg/errors"
	"gavel/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	inputFileName   = "input.txt"
	stdoutFileName  = "stdout.txt"
	stderrFileName  = "stderr.txt"
	compileLogName  = "compile.log"
	compileWallMs   = 20000
	compileMemoryMB = 512
	// Grace added to the caller-side deadline so the engine's own wall timer
	// fires first and the timeout is classified precisely.
	callerGrace = time.Second
)

// ExecRequest describes one execution of submitted code against one input.
type ExecRequest struct {
	SubmissionID string
	TaskID       string
	Code         string
	Language     string
	Input        string
	Limits       spec.ResourceLimit
}

// Executor runs submitted code in isolation and returns a typed outcome.
// An error return is reserved for infrastructure faults; failures of the
// submitted program itself are outcome values.
type Executor interface {
	Execute(ctx context.Context, req ExecRequest) (outcome.Outcome, error)
	Kill(ctx context.Context, submissionID string) error
}

type engineExecutor struct {
	engine   engine.Engine
	registry profile.Registry
	workRoot string
}

// NewExecutor creates an engine-backed executor.
func NewExecutor(eng engine.Engine, registry profile.Registry, workRoot string) (Executor, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("language registry is required")
	}
	if workRoot == "" {
		return nil, fmt.Errorf("work root is required")
	}
	return &engineExecutor{engine: eng, registry: registry, workRoot: workRoot}, nil
}

// Execute prepares an isolated workspace, compiles if the language needs it,
// runs the program with the test input on stdin and classifies the result.
// The workspace is torn down on every exit path.
func (e *engineExecutor) Execute(ctx context.Context, req ExecRequest) (outcome.Outcome, error) {
	if req.SubmissionID == "" || req.TaskID == "" {
		return outcome.Outcome{}, appErr.New(appErr.InvalidParams).WithMessage("submission id and task id are required")
	}
	lang, err := e.registry.GetLanguageSpec(req.Language)
	if err != nil {
		return outcome.Outcome{}, appErr.Wrap(err, appErr.UnsupportedLanguage)
	}
	limits := req.Limits.Normalize()

	workDir := filepath.Join(e.workRoot, req.SubmissionID, req.TaskID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return outcome.Outcome{}, appErr.Wrapf(err, appErr.SandboxUnavailable, "create workspace failed")
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			logger.Warn(ctx, "workspace teardown failed", zap.String("dir", workDir), zap.Error(rmErr))
		}
	}()

	sourcePath := filepath.Join(workDir, lang.SourceFile)
	if err := os.WriteFile(sourcePath, []byte(req.Code), 0644); err != nil {
		return outcome.Outcome{}, appErr.Wrapf(err, appErr.SandboxUnavailable, "write source failed")
	}
	inputPath := filepath.Join(workDir, inputFileName)
	if err := os.WriteFile(inputPath, []byte(req.Input), 0644); err != nil {
		return outcome.Outcome{}, appErr.Wrapf(err, appErr.SandboxUnavailable, "write input failed")
	}

	if lang.CompileEnabled {
		compileOutcome, err := e.compile(ctx, req, lang, workDir)
		if err != nil {
			return outcome.Outcome{}, err
		}
		if compileOutcome != nil {
			return *compileOutcome, nil
		}
	}

	runSpec := spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TaskID:       req.TaskID,
		WorkDir:      workDir,
		Cmd:          profile.ExpandCmd(lang.RunCmdTpl, lang.SourceFile, lang.BinaryFile, workDir),
		Env:          lang.Env,
		StdinPath:    inputPath,
		StdoutPath:   filepath.Join(workDir, stdoutFileName),
		StderrPath:   filepath.Join(workDir, stderrFileName),
		Limits:       limits,
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(limits.WallTimeMs)*time.Millisecond+callerGrace)
	defer cancel()

	res, err := e.engine.Run(runCtx, runSpec)
	if err != nil {
		return outcome.Outcome{}, appErr.Wrapf(err, appErr.SandboxUnavailable, "sandbox run failed")
	}
	return classify(res), nil
}

// compile returns a non-nil outcome when compilation fails, nil on success.
func (e *engineExecutor) compile(ctx context.Context, req ExecRequest, lang profile.LanguageSpec, workDir string) (*outcome.Outcome, error) {
	compileSpec := spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TaskID:       req.TaskID + "-compile",
		WorkDir:      workDir,
		Cmd:          profile.ExpandCmd(lang.CompileCmdTpl, lang.SourceFile, lang.BinaryFile, workDir),
		Env:          lang.Env,
		StdoutPath:   filepath.Join(workDir, compileLogName),
		StderrPath:   filepath.Join(workDir, compileLogName),
		Limits: spec.ResourceLimit{
			WallTimeMs: compileWallMs,
			MemoryMB:   compileMemoryMB,
		}.Normalize(),
	}

	compileCtx, cancel := context.WithTimeout(ctx, compileWallMs*time.Millisecond+callerGrace)
	defer cancel()

	res, err := e.engine.Run(compileCtx, compileSpec)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxUnavailable, "sandbox compile failed")
	}
	if res.TimedOut || res.ExitCode != 0 {
		out := outcome.CompileError(res.Stderr, res.ExitCode)
		return &out, nil
	}
	return nil, nil
}

// Kill reclaims all sandbox resources belonging to a submission.
func (e *engineExecutor) Kill(ctx context.Context, submissionID string) error {
	return e.engine.KillSubmission(ctx, submissionID)
}

// classify maps a raw run result to a typed outcome.
// Timeouts win over exit codes: a killed process also exits non-zero.
func classify(res outcome.RunResult) outcome.Outcome {
	switch {
	case res.TimedOut:
		out := outcome.TimedOut(res.WallTimeMs)
		out.MemoryKB = res.MemoryKB
		return out
	case res.OomKilled:
		return outcome.ResourceExceeded("memory limit exceeded", res.MemoryKB)
	case res.ExitCode != 0:
		out := outcome.RuntimeError(fmt.Sprintf("exited with code %d", res.ExitCode), res.Stderr, res.ExitCode)
		out.TimeMs = res.TimeMs
		out.MemoryKB = res.MemoryKB
		return out
	default:
		return outcome.Output(res.Stdout, res.Stderr, res.TimeMs, res.MemoryKB)
	}
}
