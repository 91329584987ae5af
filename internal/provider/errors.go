package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// CallError wraps a failed provider call with status metadata.
type CallError struct {
	Status    int
	Temporary bool
	Err       error
}

func (e *CallError) Error() string {
	if e == nil {
		return "provider call error"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("provider call error (status=%d)", e.Status)
}

func (e *CallError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTimeout reports whether a call failed on its deadline rather than with
// a provider-side rejection.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsTransient reports whether a failed call is worth reattempting later.
// Canceled calls are not: the caller has gone away.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if IsTimeout(err) {
		return true
	}
	var callErr *CallError
	if errors.As(err, &callErr) {
		if callErr.Temporary {
			return true
		}
		if callErr.Status == 429 || (callErr.Status >= 500 && callErr.Status <= 599) {
			return true
		}
	}
	return false
}

// statusError builds the CallError for a non-2xx provider response.
func statusError(status int, body []byte) *CallError {
	return &CallError{
		Status:    status,
		Temporary: status == 429 || (status >= 500 && status <= 599),
		Err:       fmt.Errorf("unexpected status %d: %s", status, truncateBody(body)),
	}
}

// truncateBody keeps error messages readable when providers return pages of HTML.
func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
