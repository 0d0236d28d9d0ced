package model

import (
	"fmt"
	"time"

	appErr "gavel/pkg/errors"
)

// Status represents the lifecycle state of a submission.
// The only legal transition is pending -> accepted | rejected; both are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// ErrorTag classifies why a test case failed for reasons other than wrong output.
type ErrorTag string

const (
	// ErrTagNone marks a case that produced comparable output.
	ErrTagNone ErrorTag = ""
	// ErrTagTimeout marks a case killed at the wall-clock limit.
	ErrTagTimeout ErrorTag = "timeout"
	// ErrTagResource marks a case that breached the memory or CPU cap.
	ErrTagResource ErrorTag = "resource_exceeded"
	// ErrTagRuntime marks a case whose process crashed or exited non-zero.
	ErrTagRuntime ErrorTag = "runtime_error"
	// ErrTagCompile marks a submission whose code failed to compile.
	ErrTagCompile ErrorTag = "compile_error"
	// ErrTagSkipped marks a case not run because an evaluation budget was hit.
	ErrTagSkipped ErrorTag = "skipped"
	// ErrTagInvalid marks a diagnostic entry for malformed problem data.
	ErrTagInvalid ErrorTag = "invalid_data"
)

// TestResult is the fixed-shape outcome record for one test case.
type TestResult struct {
	Input    string   `json:"input"`
	Expected string   `json:"expected"`
	Actual   string   `json:"actual"`
	Error    ErrorTag `json:"error,omitempty"`
	Passed   bool     `json:"passed"`
	TimeMs   int64    `json:"time_ms"`
	MemoryKB int64    `json:"memory_kb"`
}

// Verdict is the harness determination for one submission.
type Verdict struct {
	Passed  bool         `json:"passed"`
	Results []TestResult `json:"results"`
}

// Submission is one user's code attempt against one problem.
// Immutable after creation; re-judging creates a new submission.
type Submission struct {
	ID          string       `json:"id"`
	ProblemID   string       `json:"problem_id"`
	UserID      string       `json:"user_id"`
	Code        string       `json:"code"`
	Language    string       `json:"language"`
	Status      Status       `json:"status"`
	Results     []TestResult `json:"results,omitempty"`
	SubmittedAt time.Time    `json:"submitted_at"`
}

// LeaderboardEntry holds one user's cumulative score.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	Score  int64  `json:"score"`
}

// JudgeMessage is the queue payload that triggers judging of one submission.
type JudgeMessage struct {
	SubmissionID string `json:"submission_id"`
}

func errRequired(field string) error {
	return appErr.New(appErr.RequiredFieldEmpty).WithMessagef("%s is required", field)
}

func errMalformedCase(index int) error {
	return appErr.New(appErr.TestCaseDataInvalid).
		WithMessage(fmt.Sprintf("test case %d has neither input nor output", index)).
		WithDetail("index", index)
}
