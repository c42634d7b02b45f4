// Package stage defines the typed failure modes shared by the external
// processing stage clients (OCR and invoice extraction).
package stage

import "fmt"

type Reason string

const (
	ReasonTimeout    Reason = "timeout"
	ReasonUpstream   Reason = "upstream_error"
	ReasonMalformed  Reason = "malformed_response"
	ReasonUnexpected Reason = "unexpected"
)

// Error is a stage failure the pipeline can switch on. Status is only set
// for ReasonUpstream and carries the upstream HTTP status code.
type Error struct {
	Stage  string
	Reason Reason
	Status int
	Err    error
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonTimeout:
		return e.Stage + " timeout"
	case ReasonUpstream:
		return fmt.Sprintf("%s error: %d", e.Stage, e.Status)
	case ReasonMalformed:
		return fmt.Sprintf("%s returned malformed response: %v", e.Stage, e.Err)
	default:
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func Timeout(stage string, err error) *Error {
	return &Error{Stage: stage, Reason: ReasonTimeout, Err: err}
}

func Upstream(stage string, status int, err error) *Error {
	return &Error{Stage: stage, Reason: ReasonUpstream, Status: status, Err: err}
}

func Malformed(stage string, err error) *Error {
	return &Error{Stage: stage, Reason: ReasonMalformed, Err: err}
}

func Unexpected(stage string, err error) *Error {
	return &Error{Stage: stage, Reason: ReasonUnexpected, Err: err}
}
