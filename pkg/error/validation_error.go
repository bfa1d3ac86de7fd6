package error

import (
	"fmt"
	"net/http"
)

type ValidationError string

func (err ValidationError) Error() string {
	return string(err)
}

func (err ValidationError) ErrCode() string {
	return "VALIDATION_ERROR"
}

func (err ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

// FieldErrors carries per-field reasons, e.g. {"due_date": "must be YYYY-MM-DD"}.
type FieldErrors map[string]string

func (err FieldErrors) Error() string {
	return "validation failed"
}

func (err FieldErrors) ErrCode() string {
	return "VALIDATION_ERROR"
}

func (err FieldErrors) StatusCode() int {
	return http.StatusBadRequest
}

// ItemErrors holds the field reasons of one item of a batch request.
type ItemErrors struct {
	Index  int               `json:"index"`
	Errors map[string]string `json:"errors"`
}

// BatchErrors reports which items of a batch were rejected, by position.
type BatchErrors []ItemErrors

func (err BatchErrors) Error() string {
	return fmt.Sprintf("%d item(s) failed validation", len(err))
}

func (err BatchErrors) ErrCode() string {
	return "VALIDATION_ERROR"
}

func (err BatchErrors) StatusCode() int {
	return http.StatusBadRequest
}
