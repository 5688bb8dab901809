// Package errs defines the error kinds recognized by the ingestion core.
//
// Every error that crosses a component boundary is either an *Error or wraps
// one, so the job runtime can decide between failed and blocked without
// parsing messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the job runtime and the CLI.
type Kind string

const (
	KindUnknown             Kind = ""
	KindConfiguration       Kind = "configuration"
	KindContextNotReady     Kind = "context_not_ready"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindParse               Kind = "parse"
	KindValidation          Kind = "validation"
	KindWarehouse           Kind = "warehouse"
	KindTransientNetwork    Kind = "transient_network"
)

// Error carries a Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Op
	}
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with kind and op. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a new kinded error from a format string.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
