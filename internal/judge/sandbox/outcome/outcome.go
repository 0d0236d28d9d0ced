// Package outcome defines the typed result of one sandboxed execution.
//
// Failures of the submitted program are values, never errors: a crashing or
// runaway submission must not look like a judge fault to callers.
package outcome

// Kind discriminates the execution outcome.
type Kind string

const (
	// KindOutput means the program ran to completion and produced output.
	KindOutput Kind = "output"
	// KindTimedOut means the wall-clock limit was exceeded.
	KindTimedOut Kind = "timed_out"
	// KindResourceExceeded means the memory ceiling or CPU cap was breached.
	KindResourceExceeded Kind = "resource_exceeded"
	// KindRuntimeError means the program crashed or exited non-zero.
	KindRuntimeError Kind = "runtime_error"
)

// Stage names the execution phase an outcome belongs to.
const (
	StageCompile = "compile"
	StageRun     = "run"
)

// Outcome captures one sandboxed execution.
// Stderr is diagnostic only and is never compared against expected output.
type Outcome struct {
	Kind     Kind
	Stage    string
	Stdout   string
	Stderr   string
	Message  string
	ExitCode int
	TimeMs   int64
	MemoryKB int64
}

// Output builds a successful outcome.
func Output(stdout, stderr string, timeMs, memoryKB int64) Outcome {
	return Outcome{Kind: KindOutput, Stage: StageRun, Stdout: stdout, Stderr: stderr, TimeMs: timeMs, MemoryKB: memoryKB}
}

// TimedOut builds a wall-clock timeout outcome.
func TimedOut(timeMs int64) Outcome {
	return Outcome{Kind: KindTimedOut, Stage: StageRun, Message: "wall clock limit exceeded", TimeMs: timeMs}
}

// ResourceExceeded builds a resource-limit outcome.
func ResourceExceeded(message string, memoryKB int64) Outcome {
	return Outcome{Kind: KindResourceExceeded, Stage: StageRun, Message: message, MemoryKB: memoryKB}
}

// RuntimeError builds a crash outcome.
func RuntimeError(message, stderr string, exitCode int) Outcome {
	return Outcome{Kind: KindRuntimeError, Stage: StageRun, Message: message, Stderr: stderr, ExitCode: exitCode}
}

// CompileError builds a compile-stage failure outcome.
func CompileError(log string, exitCode int) Outcome {
	return Outcome{Kind: KindRuntimeError, Stage: StageCompile, Message: "compilation failed", Stderr: log, ExitCode: exitCode}
}

// RunResult captures raw sandbox execution data before classification.
type RunResult struct {
	ExitCode   int
	TimeMs     int64
	WallTimeMs int64
	MemoryKB   int64
	OutputKB   int64
	Stdout     string
	Stderr     string
	TimedOut   bool
	OomKilled  bool
}
