// Package errs defines the typed error returned by every acquisition stage.
//
// Each failure carries a Kind so the batch loop can decide what to print and
// whether another attempt makes sense. Package-level sentinels from the
// individual stages (api.ErrNotFound, source.ErrBatchCycle, ...) are kept in
// the Err field so errors.Is keeps working through the typed wrapper.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnexpected covers malformed responses and internal inconsistencies.
	KindUnexpected Kind = iota
	// KindInput is a bad user reference, bad option or a layout contract violation.
	KindInput
	// KindResources means a required remote resource is missing.
	KindResources
	// KindAPI is a non-success status or transport failure from the remote API.
	KindAPI
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindResources:
		return "resources"
	case KindAPI:
		return "api"
	default:
		return "unexpected"
	}
}

// Error is the typed failure of one acquisition stage.
type Error struct {
	Kind       Kind
	Message    string
	Hint       string // remediation shown to the user, optional
	StatusCode int    // API errors only, 0 for transport failures
	URL        string // API errors only
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	switch e.Kind {
	case KindAPI:
		if e.StatusCode > 0 {
			fmt.Fprintf(&b, "api error (status %d): %s", e.StatusCode, e.Message)
		} else {
			fmt.Fprintf(&b, "api error: %s", e.Message)
		}
		if e.URL != "" {
			fmt.Fprintf(&b, " [%s]", e.URL)
		}
	default:
		fmt.Fprintf(&b, "%s error: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, "\n%s", e.Hint)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithHint returns a copy of e carrying a remediation hint.
func (e *Error) WithHint(hint string) *Error {
	cp := *e
	cp.Hint = hint
	return &cp
}

// Wrap attaches an underlying cause to a copy of e.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

func Inputf(format string, args ...any) *Error {
	return &Error{Kind: KindInput, Message: fmt.Sprintf(format, args...)}
}

func Resourcesf(format string, args ...any) *Error {
	return &Error{Kind: KindResources, Message: fmt.Sprintf(format, args...)}
}

// APIf builds an API error for the given status and request URL.
func APIf(status int, url string, format string, args ...any) *Error {
	return &Error{Kind: KindAPI, StatusCode: status, URL: url, Message: fmt.Sprintf(format, args...)}
}

// Unexpectedf builds an unexpected error around cause, which may be nil.
func Unexpectedf(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindUnexpected, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf reports the kind of the first *Error in err's chain.
// Errors that never passed through this package are KindUnexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// Is reports whether err carries a typed error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Retryable reports whether another attempt at the same reference could succeed.
// Only API failures qualify; bad input and missing resources will not change.
func Retryable(err error) bool {
	return err != nil && Is(err, KindAPI)
}
