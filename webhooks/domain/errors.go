package domain

import "errors"

var (
	ErrEventNotFound  = errors.New("webhook event not found")
	ErrOriginRejected = errors.New("webhook origin not allowed")
	ErrBadPayload     = errors.New("webhook payload is not a gateway event")
)
