// Package mirrorerr defines the error taxonomy shared by the sync, storage and
// resolution layers. Every failure surfaced to a caller is an *Error carrying its Kind,
// the operation that failed and the underlying cause.
package mirrorerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure
type Kind string

const (
	// KindUpstreamFetch is a failure talking to the remote content source
	KindUpstreamFetch Kind = "UPSTREAM_FETCH"

	// KindStore is a failure reading from or writing to the local store
	KindStore Kind = "STORE"

	// KindSync is a sync round that could not complete; it wraps an upstream or store error
	KindSync Kind = "SYNC"

	// KindResolution is a malformed record that cannot be resolved
	KindResolution Kind = "RESOLUTION"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrUpstreamFetch = &Error{Kind: KindUpstreamFetch}
	ErrStore         = &Error{Kind: KindStore}
	ErrSync          = &Error{Kind: KindSync}
	ErrResolution    = &Error{Kind: KindResolution}
)

// Error is a classified failure with its cause
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a classified error from a message
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Upstream wraps err as an upstream fetch failure
func Upstream(op string, err error) error {
	return Wrap(KindUpstreamFetch, op, err)
}

// Store wraps err as a store failure
func Store(op string, err error) error {
	return Wrap(KindStore, op, err)
}

// Sync wraps err as a failed sync round
func Sync(op string, err error) error {
	return Wrap(KindSync, op, err)
}

// Resolution wraps err as a resolution failure
func Resolution(op string, err error) error {
	return Wrap(KindResolution, op, err)
}

// KindOf skips the sync errors wrapping err and returns the kind of the first classified
// error below them, which is the outermost non-sync kind in the chain. Kinds nested deeper
// are not consulted. When the chain holds only sync errors it returns KindSync.
// Outer surfaces use it to pick a status code for the cause of a failed round.
func KindOf(err error) (Kind, bool) {
	var kind Kind
	found := false
	for {
		var e *Error
		if !errors.As(err, &e) {
			return kind, found
		}
		kind, found = e.Kind, true
		if kind != KindSync {
			return kind, true
		}
		err = e.Err
	}
}
