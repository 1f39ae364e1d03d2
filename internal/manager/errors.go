package manager

import (
	"errors"
	"fmt"
	"net/http"
)

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ service string }

func (e tooBusyError) Error() string   { return "too busy: " + e.service }
func (e tooBusyError) StatusCode() int { return http.StatusTooManyRequests }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// notReadyError signals that the service has not finished Initialize, failed
// it, or is draining after the idle timeout.
type notReadyError struct {
	service string
	state   State
}

func (e notReadyError) Error() string {
	return fmt.Sprintf("%s not ready: %s", e.service, e.state)
}
func (e notReadyError) StatusCode() int { return http.StatusServiceUnavailable }

// IsNotReady reports whether err indicates the service cannot admit requests.
func IsNotReady(err error) bool {
	var e notReadyError
	return errors.As(err, &e)
}

// InvalidInputError marks request validation failures (return 400).
type InvalidInputError struct {
	Msg string
	Err error
}

func (e *InvalidInputError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}
func (e *InvalidInputError) Unwrap() error   { return e.Err }
func (e *InvalidInputError) StatusCode() int { return http.StatusBadRequest }

// InvalidInput constructs a validation error; err may be nil.
func InvalidInput(msg string, err error) error {
	return &InvalidInputError{Msg: msg, Err: err}
}

// IsInvalidInput reports whether err is a request validation failure.
func IsInvalidInput(err error) bool {
	var e *InvalidInputError
	return errors.As(err, &e)
}
