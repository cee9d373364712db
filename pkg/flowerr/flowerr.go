// Package flowerr defines the error taxonomy of spec.md §7: a Kind per
// taxonomy row and three error structs that carry one (FlowError,
// InfraError, CommandError), following the teacher SDK's provider/errors
// pattern. FlowError and InfraError have Unwrap() and an
// IsFlowError/IsInfraError helper backed by errors.As that can match a
// specific Kind.
package flowerr

import (
	"errors"
	"fmt"
)

// Kind is one row of the error taxonomy table in spec.md §7.
type Kind string

const (
	KindNetwork            Kind = "network"
	KindTimeout            Kind = "timeout"
	KindAuthentication     Kind = "authentication"
	KindRateLimit          Kind = "rate_limit"
	KindContentFilter      Kind = "content_filter"
	KindServerError        Kind = "server_error"
	KindBadRequest         Kind = "bad_request"
	KindModelUnavailable   Kind = "model_unavailable"
	KindTokenLimitExceeded Kind = "token_limit_exceeded"
	KindParseError         Kind = "parse_error"
	KindIndexCorrupt       Kind = "index_corrupt"
	KindWriteDropped       Kind = "write_dropped"
	KindCommandFailed      Kind = "command_failed"
)

// FlowError is recorded on a specific Flow (network/timeout/auth/rate
// limit/content filter/server/bad request/model unavailable/token
// limit). Errors about a specific Flow never halt the pipeline.
type FlowError struct {
	Kind       Kind
	Message    string
	StatusCode *int
	Cause      error
}

func (e *FlowError) Error() string {
	if e.StatusCode != nil {
		return fmt.Sprintf("flow error [%s] (status %d): %s", e.Kind, *e.StatusCode, e.Message)
	}
	return fmt.Sprintf("flow error [%s]: %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error { return e.Cause }

// NewFlowError constructs a FlowError of the given kind.
func NewFlowError(kind Kind, message string, statusCode *int, cause error) *FlowError {
	return &FlowError{Kind: kind, Message: message, StatusCode: statusCode, Cause: cause}
}

// IsFlowError reports whether err is a FlowError, optionally of a
// specific kind (pass "" to match any kind).
func IsFlowError(err error, kind Kind) bool {
	var fe *FlowError
	if !errors.As(err, &fe) {
		return false
	}
	return kind == "" || fe.Kind == kind
}

// InfraError describes a fault in the core's own machinery rather than
// in one Flow (ParseError, IndexCorrupt, WriteDropped); it never
// terminates the core.
type InfraError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("infra error [%s]: %s", e.Kind, e.Message)
}

func (e *InfraError) Unwrap() error { return e.Cause }

// NewInfraError constructs an InfraError of the given kind.
func NewInfraError(kind Kind, message string, cause error) *InfraError {
	return &InfraError{Kind: kind, Message: message, Cause: cause}
}

// IsInfraError reports whether err is an InfraError of kind (or any
// InfraError, if kind is "").
func IsInfraError(err error, kind Kind) bool {
	var ie *InfraError
	if !errors.As(err, &ie) {
		return false
	}
	return kind == "" || ie.Kind == kind
}

// CommandError is the structured failure reply returned on the
// command surface (§6). The UI decides how to display it.
type CommandError struct {
	Kind    Kind
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command failed [%s]: %s", e.Kind, e.Message)
}

// NewCommandError constructs a CommandError, defaulting Kind to
// KindCommandFailed when the caller has no more specific taxonomy row.
func NewCommandError(message string) *CommandError {
	return &CommandError{Kind: KindCommandFailed, Message: message}
}

// StatusToKind maps an upstream HTTP status code to the taxonomy row
// spec.md §7 assigns it.
func StatusToKind(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuthentication
	case status == 429:
		return KindRateLimit
	case status >= 500:
		return KindServerError
	case status >= 400:
		return KindBadRequest
	default:
		return ""
	}
}
