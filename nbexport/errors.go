package nbexport

import (
	"context"
	"errors"

	errorslib "github.com/goliatone/go-errors"
)

// ErrorKind defines render error kinds.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindUnavailable ErrorKind = "unavailable"
	KindTimeout     ErrorKind = "timeout"
	KindCanceled    ErrorKind = "canceled"
	KindInternal    ErrorKind = "internal"
	KindNotImpl     ErrorKind = "not_implemented"
)

// RenderError wraps errors with a kind.
type RenderError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *RenderError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// NewError creates a new render error.
func NewError(kind ErrorKind, msg string, err error) *RenderError {
	return &RenderError{Kind: kind, Msg: msg, Err: err}
}

// IsNotAvailable reports whether err marks an export where every enabled
// backend was exhausted. Callers should treat it as an expected outcome and
// surface a "no exporter available" affordance instead of failing.
func IsNotAvailable(err error) bool {
	return KindFromError(err) == KindUnavailable
}

// AsGoError maps an error into a go-errors error.
func AsGoError(err error) *errorslib.Error {
	if err == nil {
		return nil
	}

	var ge *errorslib.Error
	if errors.As(err, &ge) {
		return ge
	}

	kind := KindInternal
	msg := err.Error()

	var renderErr *RenderError
	if errors.As(err, &renderErr) {
		kind = renderErr.Kind
		if renderErr.Msg != "" {
			msg = renderErr.Msg
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		kind = KindCanceled
	}

	switch kind {
	case KindValidation:
		return errorslib.New(msg, errorslib.CategoryValidation).WithTextCode("validation")
	case KindNotFound:
		return errorslib.New(msg, errorslib.CategoryNotFound).WithTextCode("not_found")
	case KindUnavailable:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("unavailable")
	case KindTimeout:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("timeout")
	case KindCanceled:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("canceled")
	case KindNotImpl:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("not_implemented")
	default:
		return errorslib.New(msg, errorslib.CategoryInternal).WithTextCode("internal")
	}
}

// KindFromError maps an error to its render error kind. Errors already
// mapped through AsGoError keep their kind via the text code.
func KindFromError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var renderErr *RenderError
	if errors.As(err, &renderErr) {
		return renderErr.Kind
	}

	var ge *errorslib.Error
	if errors.As(err, &ge) {
		switch ErrorKind(ge.TextCode) {
		case KindValidation, KindNotFound, KindUnavailable, KindTimeout, KindCanceled, KindInternal, KindNotImpl:
			return ErrorKind(ge.TextCode)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	return KindInternal
}
