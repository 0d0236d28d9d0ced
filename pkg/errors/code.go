package errors

import "net/http"

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13999: Submission & Judge errors
// 14000-14999: Leaderboard & Scoring errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	RecordNotFound    ErrorCode = 10101
	TransactionFailed ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	CacheMiss  ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Submission & Judge Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound    ErrorCode = 13000
	SubmissionTerminal    ErrorCode = 13001
	UnsupportedLanguage   ErrorCode = 13002
	ProblemNotFound       ErrorCode = 13003
	TestCaseDataInvalid   ErrorCode = 13004
	SubmissionSaveFailed  ErrorCode = 13005
	SubmissionDataInvalid ErrorCode = 13006

	// Judge execution (13100-13199)
	JudgeSystemError   ErrorCode = 13100
	JudgeQueueFull     ErrorCode = 13101
	SandboxUnavailable ErrorCode = 13102
	JudgeCancelled     ErrorCode = 13103

	// ========== Leaderboard & Scoring Errors (14000-14999) ==========

	CreditFailed      ErrorCode = 14000
	ScoreQueryFailed  ErrorCode = 14001
	LeaderboardFailed ErrorCode = 14002
)

var codeMessages = map[ErrorCode]string{
	Success:             "success",
	InternalServerError: "internal server error",
	InvalidParams:       "invalid parameters",
	NotFound:            "resource not found",
	TooManyRequests:     "too many requests",
	ServiceUnavailable:  "service unavailable",
	Timeout:             "operation timed out",

	DatabaseError:     "database error",
	RecordNotFound:    "record not found",
	TransactionFailed: "transaction failed",

	CacheError: "cache error",
	CacheMiss:  "cache miss",

	ValidationFailed:   "validation failed",
	RequiredFieldEmpty: "required field is empty",

	SubmissionNotFound:    "submission not found",
	SubmissionTerminal:    "submission already judged",
	UnsupportedLanguage:   "unsupported language",
	ProblemNotFound:       "problem not found",
	TestCaseDataInvalid:   "test case data is invalid",
	SubmissionSaveFailed:  "submission save failed",
	SubmissionDataInvalid: "submission data is invalid",

	JudgeSystemError:   "judge system error",
	JudgeQueueFull:     "judge queue is full",
	SandboxUnavailable: "sandbox is unavailable",
	JudgeCancelled:     "judging was cancelled",

	CreditFailed:      "score credit failed",
	ScoreQueryFailed:  "score query failed",
	LeaderboardFailed: "leaderboard query failed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "unknown error"
}

// HTTPStatus maps the error code to an HTTP status code
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case Success:
		return http.StatusOK
	case InvalidParams, ValidationFailed, RequiredFieldEmpty, UnsupportedLanguage, SubmissionDataInvalid:
		return http.StatusBadRequest
	case NotFound, RecordNotFound, SubmissionNotFound, ProblemNotFound:
		return http.StatusNotFound
	case TooManyRequests, JudgeQueueFull:
		return http.StatusTooManyRequests
	case ServiceUnavailable, SandboxUnavailable:
		return http.StatusServiceUnavailable
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
