package errors

import "errors"

// Sentinel errors shared across the engine. Handlers translate them to
// HTTP status codes; services wrap them with context.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation error")
	ErrUnavailable  = errors.New("service unavailable")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrCapExceeded  = errors.New("frequency cap exceeded")
	ErrTokenInvalid = errors.New("invalid or consumed token")
)

// Is reports whether err is one of the sentinels.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap adds context to an error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Join(errors.New(message), err)
}
