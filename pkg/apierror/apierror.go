// Package apierror implements the request-facing error envelope named by
// SPEC_FULL.md §7/§10.3: a closed error-kind taxonomy plus a mode-aware
// response shape, grounded on original_source/app/api/core/error_handling.py
// and app_mode.py.
package apierror

import (
	"fmt"
	"runtime"
)

// Mode controls how much detail an Error's response exposes.
type Mode int

const (
	ModeProduction Mode = iota
	ModeDevelopment
)

// Kind is the closed taxonomy of SPEC_FULL.md §7. It names a category of
// failure, not a concrete Go type: every Error carries exactly one Kind.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindPermission        Kind = "permission"
	KindDeadline          Kind = "deadline"
	KindTransientExternal Kind = "transient_external"
	KindDoomLoop          Kind = "doom_loop"
	KindInvalidDAG        Kind = "invalid_dag"
	KindParse             Kind = "parse"
	KindInternal          Kind = "internal"
)

// Code is a stable, cross-referenceable identifier distinct from Kind: Kind
// groups error-handling behavior, Code is what support/logs key on.
type Code string

const (
	CodeValidationError   Code = "E1001"
	CodeNotFound          Code = "E1002"
	CodePermissionDenied  Code = "E1003"
	CodeDeadlineExceeded  Code = "E1004"
	CodeTransientExternal Code = "E4000"
	CodeDoomLoop          Code = "E3001"
	CodeInvalidDAG        Code = "E3002"
	CodeParseError        Code = "E3003"
	CodeInternalError     Code = "E1000"
)

var userMessages = map[Code]string{
	CodeValidationError:   "The request contains invalid data.",
	CodeNotFound:          "The requested resource was not found.",
	CodePermissionDenied:  "You do not have permission to perform this action.",
	CodeDeadlineExceeded:  "The request took too long to complete.",
	CodeTransientExternal: "A dependent service is temporarily unavailable. Please retry.",
	CodeDoomLoop:          "The assistant could not make progress on this request.",
	CodeInvalidDAG:        "The request could not be decomposed into subtasks; it was run as a single task.",
	CodeParseError:        "A response from an internal service could not be parsed.",
	CodeInternalError:     "An internal error occurred. Please try again later.",
}

var kindCodes = map[Kind]Code{
	KindValidation:        CodeValidationError,
	KindPermission:        CodePermissionDenied,
	KindDeadline:          CodeDeadlineExceeded,
	KindTransientExternal: CodeTransientExternal,
	KindDoomLoop:          CodeDoomLoop,
	KindInvalidDAG:        CodeInvalidDAG,
	KindParse:             CodeParseError,
	KindInternal:          CodeInternalError,
}

var kindStatus = map[Kind]int{
	KindValidation:        400,
	KindPermission:        403,
	KindDeadline:          504,
	KindTransientExternal: 503,
	KindDoomLoop:          200, // surfaced as a finalized answer, not a request failure
	KindInvalidDAG:        200, // surfaced as a single-task fallback, not a request failure
	KindParse:             502,
	KindInternal:          500,
}

// DeveloperDetail is populated only when Mode is ModeDevelopment.
type DeveloperDetail struct {
	Location    string
	StackTrace  []string
	Suggestions []string
}

// Error is the envelope every HTTP-facing failure is translated into before
// leaving the orchestrator.
type Error struct {
	Kind      Kind
	Code      Code
	Message   string // internal, logged message
	RequestID string
	Err       error
	dev       *DeveloperDetail
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("apierror: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("apierror: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode is the HTTP status the error taxonomy maps to for this Kind.
func (e *Error) StatusCode() int { return kindStatus[e.Kind] }

// New builds an Error of kind, wrapping err (may be nil) with an internal
// message. code defaults from the kind's table entry.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Code: kindCodes[kind], Message: message, Err: err}
}

// Developer attaches stack-trace/location/suggestion detail, captured at the
// call site, for ModeDevelopment responses. skip is the number of
// runtime.Caller frames to skip past this helper.
func (e *Error) Developer(suggestions []string, skip int) *Error {
	_, file, line, ok := runtime.Caller(skip + 1)
	location := "unknown"
	if ok {
		location = fmt.Sprintf("%s:%d", file, line)
	}
	e.dev = &DeveloperDetail{Location: location, Suggestions: suggestions, StackTrace: captureStack()}
	return e
}

func captureStack() []string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return splitLines(string(buf[:n]))
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// Response is the serializable body, shaped differently by mode via
// ToResponse.
type Response struct {
	Success   bool          `json:"success"`
	Error     ResponseError `json:"error"`
	RequestID string        `json:"request_id,omitempty"`
}

type ResponseError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	ReferenceID string   `json:"reference_id,omitempty"`
	Location    string   `json:"location,omitempty"`
	StackTrace  []string `json:"stack_trace,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ToResponse renders e according to mode: development mode includes
// location/stack trace/suggestions, production mode exposes only a stable
// code, user-friendly message, and reference id.
func ToResponse(e *Error, mode Mode) Response {
	if mode == ModeDevelopment {
		resp := ResponseError{Code: string(e.Code), Message: e.Message}
		if e.dev != nil {
			resp.Location = e.dev.Location
			resp.StackTrace = e.dev.StackTrace
			resp.Suggestions = e.dev.Suggestions
		}
		return Response{Success: false, Error: resp, RequestID: e.RequestID}
	}

	message := userMessages[e.Code]
	if message == "" {
		message = "An error occurred. Please try again."
	}
	return Response{
		Success: false,
		Error: ResponseError{
			Code:        string(e.Code),
			Message:     message,
			ReferenceID: referenceID(e.RequestID),
		},
		RequestID: e.RequestID,
	}
}

func referenceID(requestID string) string {
	if requestID == "" {
		return "unknown"
	}
	return requestID
}
