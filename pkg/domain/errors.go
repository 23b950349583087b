package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures reported by core operations.
type ErrorKind string

// Error kinds surfaced to callers. Each has a matching sentinel for errors.Is.
const (
	KindShapeMismatch        ErrorKind = "shape_mismatch"
	KindInvalidRect          ErrorKind = "invalid_rect"
	KindDuplicateName        ErrorKind = "duplicate_name"
	KindNotFound             ErrorKind = "not_found"
	KindDivideByZero         ErrorKind = "divide_by_zero"
	KindBusy                 ErrorKind = "busy"
	KindIncompatibleSnapshot ErrorKind = "incompatible_snapshot"
	KindInvalidArgument      ErrorKind = "invalid_argument"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrShapeMismatch        = errors.New("shape mismatch")
	ErrInvalidRect          = errors.New("invalid rectangle")
	ErrDuplicateName        = errors.New("duplicate name")
	ErrNotFound             = errors.New("not found")
	ErrDivideByZero         = errors.New("divide by zero")
	ErrBusy                 = errors.New("plate-assay busy")
	ErrIncompatibleSnapshot = errors.New("incompatible snapshot")
	ErrInvalidArgument      = errors.New("invalid argument")
)

var kindSentinels = map[ErrorKind]error{
	KindShapeMismatch:        ErrShapeMismatch,
	KindInvalidRect:          ErrInvalidRect,
	KindDuplicateName:        ErrDuplicateName,
	KindNotFound:             ErrNotFound,
	KindDivideByZero:         ErrDivideByZero,
	KindBusy:                 ErrBusy,
	KindIncompatibleSnapshot: ErrIncompatibleSnapshot,
	KindInvalidArgument:      ErrInvalidArgument,
}

// Error carries the kind of a failure together with the context a user needs to act on it.
type Error struct {
	Kind       ErrorKind
	Op         string
	PlateAssay *PlateAssayKey
	Section    string
	Detail     string
	Err        error
}

// NewError builds an Error for op with a formatted detail message.
func NewError(kind ErrorKind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// WithPlateAssay attaches the plate-assay the error concerns.
func (e *Error) WithPlateAssay(key PlateAssayKey) *Error {
	e.PlateAssay = &key
	return e
}

// WithSection attaches the section name the error concerns.
func (e *Error) WithSection(name string) *Error {
	e.Section = name
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.PlateAssay != nil {
		fmt.Fprintf(&b, " [plate-assay %s]", e.PlateAssay)
	}
	if e.Section != "" {
		fmt.Fprintf(&b, " [section %s]", e.Section)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the error kind from err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
