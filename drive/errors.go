package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// Error kinds. Match them with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("rate limited")
	ErrTransient    = errors.New("transient failure")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotAFolder   = errors.New("not a folder")
)

// Error is a classified remote failure.
type Error struct {
	Op   string // remote operation, e.g. "list children"
	ID   string // item the operation addressed
	Code int    // HTTP status, 0 when none was received
	Kind error  // one of the Err* kinds
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Errorf builds a classified error without an HTTP cause.
func Errorf(kind error, op, id string) *Error {
	return &Error{Op: op, ID: id, Kind: kind}
}

// Kind returns the classified kind of err, or nil if err is not a
// classified remote error.
func Kind(err error) error {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return nil
}

// rate-limit reasons Drive reports with 403
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"dailyLimitExceeded":    true,
}

// classify maps a client library error to an *Error. Context errors pass
// through untouched.
func classify(op, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &Error{Op: op, ID: id, Kind: ErrTransient, Err: err}
	}

	out := &Error{Op: op, ID: id, Code: gerr.Code, Err: err}
	switch {
	case gerr.Code == http.StatusNotFound:
		out.Kind = ErrNotFound
	case gerr.Code == http.StatusTooManyRequests:
		out.Kind = ErrRateLimited
	case gerr.Code == http.StatusForbidden || gerr.Code == http.StatusUnauthorized:
		out.Kind = ErrForbidden
		for _, item := range gerr.Errors {
			if rateLimitReasons[item.Reason] {
				out.Kind = ErrRateLimited
				break
			}
		}
	case gerr.Code == http.StatusBadRequest:
		out.Kind = ErrInvalidInput
	default:
		out.Kind = ErrTransient
	}
	return out
}
