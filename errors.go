package loom

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ToolErrorKind classifies a recoverable tool failure. Every kind listed
// here is reported back to the model as a structured message instead of
// failing the sample.
type ToolErrorKind string

const (
	// ToolErrorParsing indicates the arguments could not be parsed or did
	// not validate against the tool's parameter schema.
	ToolErrorParsing ToolErrorKind = "parsing"

	// ToolErrorTimeout indicates the call exceeded its timeout.
	ToolErrorTimeout ToolErrorKind = "timeout"

	// ToolErrorUnicodeDecode indicates the tool produced binary output that
	// is not valid UTF-8.
	ToolErrorUnicodeDecode ToolErrorKind = "unicode_decode"

	// ToolErrorPermission indicates the operation was denied.
	ToolErrorPermission ToolErrorKind = "permission"

	// ToolErrorFileNotFound indicates a referenced file or command does not
	// exist.
	ToolErrorFileNotFound ToolErrorKind = "file_not_found"

	// ToolErrorIsADirectory indicates a file operation hit a directory.
	ToolErrorIsADirectory ToolErrorKind = "is_a_directory"

	// ToolErrorOutputLimit indicates the tool's output exceeded the
	// configured size ceiling.
	ToolErrorOutputLimit ToolErrorKind = "output_limit"

	// ToolErrorApproval indicates the call was rejected by an approval
	// policy.
	ToolErrorApproval ToolErrorKind = "approval"

	// ToolErrorUnknown marks failures recorded for history when an
	// unexpected error unwinds past the dispatcher.
	ToolErrorUnknown ToolErrorKind = "unknown"
)

// ToolError is a tool failure that the model is allowed to see and recover
// from. Tools return it directly for business-logic failures ("order not
// found"); the dispatcher synthesizes it for expected infrastructure
// failures (timeout, permission denial, undecodable output, output limit).
//
// Any error that is not a ToolError (and not classifiable as one) is treated
// as fatal and fails the enclosing sample.
type ToolError struct {
	Kind    ToolErrorKind `json:"kind"`
	Message string        `json:"message"`
}

// NewToolError creates a ToolError with a formatted message.
func NewToolError(kind ToolErrorKind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool error (%s): %s", e.Kind, e.Message)
}

// FatalError wraps an error that must fail the sample even if the underlying
// condition would normally be classified as recoverable. Tools use it to
// re-raise an expected failure they judge unrecoverable.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal marks err as fatal. Returns nil if err is nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// ClassifyToolError maps err onto the recoverable taxonomy.
//
// It returns the ToolError to report to the model and true when err is
// recoverable: a ToolError returned by the tool itself, or a recognized
// expected infrastructure failure. It returns nil and false when err is
// fatal — either wrapped with Fatal or simply unrecognized — in which case
// the caller must propagate err unchanged.
func ClassifyToolError(err error) (*ToolError, bool) {
	if err == nil {
		return nil, false
	}

	// Fatal wrapping wins over everything, including an inner ToolError.
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return nil, false
	}

	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewToolError(ToolErrorTimeout, "%v", err), true
	}
	if errors.Is(err, os.ErrPermission) {
		return NewToolError(ToolErrorPermission, "%v", err), true
	}
	if errors.Is(err, os.ErrNotExist) {
		return NewToolError(ToolErrorFileNotFound, "%v", err), true
	}

	return nil, false
}
