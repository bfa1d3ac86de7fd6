package gateway

import (
	"errors"
	"fmt"
)

// ErrGone is returned when the gateway answers 404: the instance, group or picture no longer exists.
var ErrGone = errors.New("gateway: resource gone")

// ErrTransient wraps network failures and 5xx answers that survived the local retries.
var ErrTransient = errors.New("gateway: transient failure")

// StatusError is a non-retryable 4xx answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway: status %d: %s", e.Code, e.Body)
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
