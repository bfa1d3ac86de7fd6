package domain

import "errors"

var (
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrDuplicateInstance is returned when the instance name is already registered.
	ErrDuplicateInstance = errors.New("an instance with this instance_name already exists")

	// ErrNoActiveInstance is returned when the tenant has no active instance with an open connection.
	ErrNoActiveInstance = errors.New("no active connected instance")

	ErrInstanceInactive = errors.New("instance is not active")
)
