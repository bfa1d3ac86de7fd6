package domain

import "errors"

var (
	ErrCycleNotFound    = errors.New("billing cycle not found")
	ErrEmissionNotFound = errors.New("billing emission not found")
	ErrCycleClosed      = errors.New("billing cycle is no longer active")
	ErrDuplicateCycle   = errors.New("an active billing cycle already exists for this id")
)
