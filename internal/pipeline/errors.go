// Package pipeline defines the error taxonomy shared by every pipeline
// stage (resolver, header gate, codec, transform, router, commit) and the
// DLQ funnel that catches it. Errors are surfaced by Kind, not by Go
// type identity, so the DLQ funnel can catalogue them independently of
// which package raised them.
package pipeline

import (
	"errors"
	"fmt"
)

// Kind enumerates the recognized failure modes from spec §7. Any error
// that does not carry one of these kinds is treated as a programming
// error: the DLQ funnel panics on it instead of absorbing it, and the
// dispatcher recovers that panic, logs it and cancels its whole run (see
// DESIGN.md's Open Question decision).
type Kind string

const (
	KindMissingMessageSchema  Kind = "MissingMessageSchema"
	KindMissingHeader         Kind = "MissingHeader"
	KindUnknownOperation      Kind = "UnknownOperation"
	KindSchemaNotFound        Kind = "SchemaNotFound"
	KindSchemaInvalid         Kind = "SchemaInvalid"
	KindDecodeError           Kind = "DecodeError"
	KindTypeMismatch          Kind = "TypeMismatch"
	KindNullNotAllowedForUnion Kind = "NullNotAllowedForUnion"
	KindNoSuitableUnionBranch Kind = "NoSuitableUnionBranch"
	KindExpectedMap           Kind = "ExpectedMap"
	KindExpectedList          Kind = "ExpectedList"
	KindDecimalTypeMismatch   Kind = "DecimalTypeMismatch"
	KindBytesTypeMismatch     Kind = "BytesTypeMismatch"
	KindUnsupportedRecordType Kind = "UnsupportedRecordType"
	KindSchemaValidationError Kind = "SchemaValidationError"
	KindTransformError        Kind = "TransformError"
	KindEncodeError           Kind = "EncodeError"
	KindProduceError          Kind = "ProduceError"
	KindProcessingTimeout     Kind = "ProcessingTimeout"
	KindDlqProduceError       Kind = "DlqProduceError"
	KindCommitError           Kind = "CommitError"
)

// dlqEligible is the exact set of kinds the DLQ funnel absorbs. See
// spec §7's table and DESIGN.md's resolution of the "catch everything"
// open question: DlqProduceError and CommitError are deliberately
// excluded here — they are handled inline by the DLQ funnel and the
// commit coordinator respectively, never re-routed to the DLQ again.
var dlqEligible = map[Kind]bool{
	KindMissingMessageSchema:   true,
	KindMissingHeader:          true,
	KindUnknownOperation:       true,
	KindSchemaNotFound:         true,
	KindSchemaInvalid:          true,
	KindDecodeError:            true,
	KindTypeMismatch:           true,
	KindNullNotAllowedForUnion: true,
	KindNoSuitableUnionBranch:  true,
	KindExpectedMap:            true,
	KindExpectedList:           true,
	KindDecimalTypeMismatch:    true,
	KindBytesTypeMismatch:      true,
	KindUnsupportedRecordType:  true,
	KindSchemaValidationError:  true,
	KindTransformError:         true,
	KindEncodeError:            true,
	KindProduceError:           true,
	KindProcessingTimeout:      true,
}

// IsDLQEligible reports whether the given kind is one of the enumerated
// failure modes the DLQ funnel is contractually obliged to absorb.
func IsDLQEligible(k Kind) bool { return dlqEligible[k] }

// Error is the typed error every pipeline stage returns. It carries a
// Kind (for DLQ diagnostics and routing), an optional field Path (for
// SchemaValidationError's violation path), and the wrapped cause.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a pipeline.Error of the given kind wrapping err.
func New(kind Kind, err error) *Error { return &Error{Kind: kind, Err: err} }

// NewAt builds a pipeline.Error carrying a violation path (used by
// SchemaValidationError).
func NewAt(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *pipeline.Error; ok is false for programming errors that carry no
// recognized kind.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}
