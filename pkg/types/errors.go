package types

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a processing error
type Kind int

const (
	KindPrecondition Kind = iota + 1
	KindMethodUnavailable
	KindInsufficientData
	KindNumericDegeneracy
	KindResourceLimit
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindMethodUnavailable:
		return "method unavailable"
	case KindInsufficientData:
		return "insufficient data"
	case KindNumericDegeneracy:
		return "numeric degeneracy"
	case KindResourceLimit:
		return "resource limit"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching on the error kind.
var (
	ErrPrecondition      = &Error{Kind: KindPrecondition}
	ErrMethodUnavailable = &Error{Kind: KindMethodUnavailable}
	ErrInsufficientData  = &Error{Kind: KindInsufficientData}
	ErrNumericDegeneracy = &Error{Kind: KindNumericDegeneracy}
	ErrResourceLimit     = &Error{Kind: KindResourceLimit}
)

// Error is returned by every operation in this module. It carries enough
// context for the caller to retry with other parameters, skip the series,
// or abort.
type Error struct {
	Kind     Kind
	Op       string
	Method   string
	Series   string
	Msg      string
	Required int
	Actual   int
	Hint     string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Method != "" {
		fmt.Fprintf(&b, " [method=%s]", e.Method)
	}
	if e.Series != "" {
		fmt.Fprintf(&b, " [series=%s]", e.Series)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, " (%s)", e.Hint)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithSeries returns a copy of the error tagged with a series identifier
func (e *Error) WithSeries(id string) *Error {
	cp := *e
	cp.Series = id
	return &cp
}

// Precondition reports malformed input
func Precondition(op, format string, args ...any) *Error {
	return &Error{Kind: KindPrecondition, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Unavailable reports a method that cannot run in this engine
func Unavailable(op, method, reason, hint string) *Error {
	return &Error{Kind: KindMethodUnavailable, Op: op, Method: method, Msg: reason, Hint: hint}
}

// Insufficient reports a method-specific minimum point count not met
func Insufficient(op, method string, required, actual int) *Error {
	return &Error{
		Kind:     KindInsufficientData,
		Op:       op,
		Method:   method,
		Msg:      fmt.Sprintf("need at least %d valid points, have %d", required, actual),
		Required: required,
		Actual:   actual,
	}
}

// Degenerate reports a computation that produced an unusable result
func Degenerate(op, method, format string, args ...any) *Error {
	return &Error{Kind: KindNumericDegeneracy, Op: op, Method: method, Msg: fmt.Sprintf(format, args...)}
}

// ResourceLimit reports an operation refused before execution because of a cost ceiling
func ResourceLimit(op, method string, limit, requested int) *Error {
	return &Error{
		Kind:     KindResourceLimit,
		Op:       op,
		Method:   method,
		Msg:      fmt.Sprintf("%d points exceeds the configured ceiling of %d", requested, limit),
		Required: limit,
		Actual:   requested,
	}
}

// KindOf returns the kind of err, or 0 when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
