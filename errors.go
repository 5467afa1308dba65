package tileflat

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the Flattener.
type ErrorKind uint8

const (
	KindUnknown             ErrorKind = iota
	KindPipelineUnavailable           // render pipeline or its stage missing; nothing was mutated
	KindDimensionExceedsCap           // a surface would exceed the max texture size
	KindAssetUploadFailed             // persisting a raster failed after capture
	KindMetadataUnreadable            // flatten record missing, malformed or of another version
	KindPartialChunkFailure           // one chunk failed; the whole chunk set is discarded
	KindInvalidSelection              // wrong number or kind of entities
	KindNoBounds                      // bounds could not be computed
	KindBusy                          // another operation is in flight
	KindEntityStore                   // entity creation or deletion failed
	KindInvalidOptions                // options failed validation
)

func (k ErrorKind) String() string {
	switch k {
	case KindPipelineUnavailable:
		return "pipeline unavailable"
	case KindDimensionExceedsCap:
		return "dimension exceeds cap"
	case KindAssetUploadFailed:
		return "asset upload failed"
	case KindMetadataUnreadable:
		return "metadata unreadable"
	case KindPartialChunkFailure:
		return "partial chunk failure"
	case KindInvalidSelection:
		return "invalid selection"
	case KindNoBounds:
		return "no bounds"
	case KindBusy:
		return "busy"
	case KindEntityStore:
		return "entity store"
	case KindInvalidOptions:
		return "invalid options"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per kind. Match with errors.Is.
var (
	ErrPipelineUnavailable = &Error{Kind: KindPipelineUnavailable}
	ErrDimensionExceedsCap = &Error{Kind: KindDimensionExceedsCap}
	ErrAssetUploadFailed   = &Error{Kind: KindAssetUploadFailed}
	ErrMetadataUnreadable  = &Error{Kind: KindMetadataUnreadable}
	ErrPartialChunkFailure = &Error{Kind: KindPartialChunkFailure}
	ErrInvalidSelection    = &Error{Kind: KindInvalidSelection}
	ErrNoBounds            = &Error{Kind: KindNoBounds}
	ErrBusy                = &Error{Kind: KindBusy}
	ErrEntityStore         = &Error{Kind: KindEntityStore}
	ErrInvalidOptions      = &Error{Kind: KindInvalidOptions}
)

// Error is the error type returned by tileflat operations.
type Error struct {
	Kind ErrorKind
	// Op names the step that failed, e.g. "flatten: capture".
	Op string
	// Detail is an optional human-readable explanation.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := "tileflat: " + e.Kind.String()
	if e.Op != "" {
		msg = "tileflat: " + e.Op + ": " + e.Kind.String()
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels work with
// errors.Is regardless of Op, Detail or the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func newErrorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage turns an error returned by the Flattener into a single
// sentence suitable for a notification.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindPipelineUnavailable:
		return "The renderer is not ready; nothing was changed."
	case KindDimensionExceedsCap:
		return "The image would be larger than the renderer supports; lower the PPI or enable chunking."
	case KindAssetUploadFailed:
		return "The image could not be saved; the original tiles were kept."
	case KindMetadataUnreadable:
		return "This tile has no readable flatten data and cannot be deconstructed."
	case KindPartialChunkFailure:
		return "One of the image chunks could not be saved; the original tiles were kept."
	case KindInvalidSelection:
		return "Select at least two tiles, or one flattened tile."
	case KindNoBounds:
		return "The selected tiles have no area to capture."
	case KindBusy:
		return "Another flatten operation is still running."
	case KindEntityStore:
		return "The scene could not be updated; check for duplicate or missing tiles."
	case KindInvalidOptions:
		return "The flatten settings are invalid."
	default:
		return "Flattening failed."
	}
}
