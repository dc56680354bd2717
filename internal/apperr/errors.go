package apperr

import "fmt"

// AppError is the structured error type every component raises instead of
// a bare error: it carries enough context for the HTTP layer to decide a
// status code and for the logger to decide how loud to be, without either
// one parsing a message string.
type AppError struct {
	Code     string
	Message  string
	Category Category
	Severity Severity

	Details map[string]string
	Cause   error

	Retryable bool
	// Suggestion is surfaced verbatim to the caller, e.g. a pullCommand
	// for a NotReady error.
	Suggestion string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is enables errors.Is(err, &AppError{Code: ...}) comparisons by code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithSuggestion(suggestion string) *AppError {
	e.Suggestion = suggestion
	return e
}

// New creates an AppError with category/severity/retryable derived from the code.
func New(code, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap attaches a code to an existing error. Returns nil if err is nil, so
// callers can write `return apperr.Wrap(apperr.ErrCodeInternal, err)` inline.
func Wrap(code string, err error) *AppError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

func InputValidation(message string, cause error) *AppError {
	return New(ErrCodeInvalidCollection, message, cause)
}

func NotReady(message string, cause error) *AppError {
	return New(ErrCodeStoreNotLoaded, message, cause)
}

func UpstreamUnavailable(message string, cause error) *AppError {
	return New(ErrCodeUpstreamUnavailable, message, cause)
}

func UpstreamError(message string, cause error) *AppError {
	return New(ErrCodeUpstreamError, message, cause)
}

func ModelMismatch(message string) *AppError {
	return New(ErrCodeModelMismatch, message, nil)
}

func DimensionMismatch(expected, got int) *AppError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got))
}

func StoreCorrupt(message string, cause error) *AppError {
	return New(ErrCodeStoreCorrupt, message, cause)
}

func Cancelled() *AppError {
	return New(ErrCodeCancelled, "operation cancelled", nil)
}

func Internal(message string, cause error) *AppError {
	return New(ErrCodeInternal, message, cause)
}

// As extracts an *AppError from err, or nil if it isn't one.
func As(err error) *AppError {
	ae, _ := err.(*AppError)
	return ae
}

func IsRetryable(err error) bool {
	ae := As(err)
	return ae != nil && ae.Retryable
}

func GetCategory(err error) Category {
	ae := As(err)
	if ae == nil {
		return ""
	}
	return ae.Category
}
