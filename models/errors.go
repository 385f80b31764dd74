package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeTimeout      = "SCRAPE_TIMEOUT"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeStore        = "STORE_FAILURE"

	// Data-integrity errors: the user must restart the flow, no retry.
	ErrCodeSessionNotFound  = "SESSION_NOT_FOUND"
	ErrCodeTabNotFound      = "TAB_NOT_FOUND"
	ErrCodeQuestionNotFound = "QUESTION_NOT_FOUND"

	// Completion-collaborator error codes.
	ErrCodeCompletionFailure     = "COMPLETION_FAILURE"
	ErrCodeCompletionAuthFailure = "COMPLETION_AUTH_FAILURE"
	ErrCodeCompletionRateLimited = "COMPLETION_RATE_LIMITED"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QuizError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type QuizError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *QuizError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *QuizError) Unwrap() error {
	return e.Err
}

// NewQuizError creates a new QuizError.
func NewQuizError(code, message string, err error) *QuizError {
	return &QuizError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *QuizError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}
