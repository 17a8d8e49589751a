package cdpcontrol

import (
	"context"
	"fmt"
)

const (
	CodeValidation     = "VALIDATION"
	CodeTabNotFound    = "TAB_NOT_FOUND"
	CodeEvalFailure    = "EVAL_FAILURE"
	CodeEvalTimeout    = "EVAL_TIMEOUT"
	CodeCDPUnavailable = "CDP_UNAVAILABLE"
	CodeNotFound       = "NOT_FOUND"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// NewError builds a CodedError for callers outside this package.
func NewError(code, msg string, cause error) error {
	return newError(code, msg, cause)
}

// Evaluator runs a JS body inside the history page. The body must return
// JSON.stringify of the {ok,data,error_code,error_message} envelope; out
// receives the decoded data field.
type Evaluator interface {
	Eval(ctx context.Context, body string, out any) error
}

// Clicker dispatches a trusted mouse click at page coordinates.
type Clicker interface {
	Click(ctx context.Context, x, y float64) error
}

// BindingSource delivers page-side binding calls (window.<name>(payload)).
type BindingSource interface {
	AddBinding(ctx context.Context, name string) error
	OnBinding(name string, fn func(payload string)) (unregister func())
}

// TabInfo describes the exchange history tab mapped from a browser target.
type TabInfo struct {
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}
