package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned when every credential in the pool failed for one request.
var ErrExhausted = errors.New("all credentials exhausted")

// Class is the failover-relevant category of a generation failure.
type Class int

const (
	ClassTransient Class = iota
	ClassRateLimited
	ClassInvalidCredential
	ClassQuotaExceeded
	ClassContentBlocked
)

func (c Class) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassInvalidCredential:
		return "invalid_credential"
	case ClassQuotaExceeded:
		return "quota_exceeded"
	case ClassContentBlocked:
		return "content_blocked"
	default:
		return "transient"
	}
}

// ClassifiedError carries the class of a backend failure. RetryAfter is only
// meaningful for ClassRateLimited and may be zero when the backend gave no hint.
type ClassifiedError struct {
	Class      Class
	RetryAfter time.Duration
	Err        error
}

func (e *ClassifiedError) Error() string {
	if e.Class == ClassRateLimited && e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s): %v", e.Class, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// NewClassified wraps err with class c.
func NewClassified(c Class, err error) *ClassifiedError {
	return &ClassifiedError{Class: c, Err: err}
}

// RateLimited builds a ClassRateLimited error with a suggested wait.
func RateLimited(retryAfter time.Duration, err error) *ClassifiedError {
	return &ClassifiedError{Class: ClassRateLimited, RetryAfter: retryAfter, Err: err}
}

// Classify returns err as a *ClassifiedError. Unrecognized errors are transient.
func Classify(err error) *ClassifiedError {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}
	return &ClassifiedError{Class: ClassTransient, Err: err}
}

// IsContextError reports whether err comes from cancellation or deadline expiry.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
