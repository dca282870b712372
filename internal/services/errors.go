package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for terminal job failures. Exactly one of these ends up
// wrapped into every error the engine surfaces to callers.
var (
	ErrInputInvalid      = errors.New("input invalid")
	ErrWorkspaceCreate   = errors.New("workspace create failed")
	ErrInputWrite        = errors.New("input write failed")
	ErrDisplayProvision  = errors.New("display provision failed")
	ErrTimeout           = errors.New("conversion timeout")
	ErrCrashed           = errors.New("converter crashed")
	ErrOutputMissing     = errors.New("output missing")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrConfiguration     = errors.New("configuration error")
)

// Classification codes exposed on the wire (HTTP JSON errors, IPC, job registry).
const (
	CodeInputInvalid      = "InputInvalid"
	CodeWorkspaceCreate   = "WorkspaceCreateFailed"
	CodeInputWrite        = "InputWriteFailed"
	CodeDisplayProvision  = "DisplayProvisionFailed"
	CodeTimeout           = "ConversionTimeout"
	CodeCrashed           = "ConverterCrashed"
	CodeOutputMissing     = "OutputMissing"
	CodeResourceExhausted = "ResourceExhausted"
	CodeConfiguration     = "ConfigurationError"
	CodeInternal          = "Internal"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrCrashed
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classification maps an engine error to its wire code.
func Classification(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInputInvalid):
		return CodeInputInvalid
	case errors.Is(err, ErrWorkspaceCreate):
		return CodeWorkspaceCreate
	case errors.Is(err, ErrInputWrite):
		return CodeInputWrite
	case errors.Is(err, ErrDisplayProvision):
		return CodeDisplayProvision
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrCrashed):
		return CodeCrashed
	case errors.Is(err, ErrOutputMissing):
		return CodeOutputMissing
	case errors.Is(err, ErrResourceExhausted):
		return CodeResourceExhausted
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	default:
		return CodeInternal
	}
}

// Retryable reports whether the failure signals transient load rather than a
// permanent input problem, so callers can retry with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrResourceExhausted) || errors.Is(err, ErrDisplayProvision)
}

// Details carries the user-facing portion of a classified error.
type ErrorDetails struct {
	Code    string
	Message string
}

// Details extracts the classification code and a human-readable message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	return ErrorDetails{
		Code:    Classification(err),
		Message: strings.TrimSpace(err.Error()),
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
