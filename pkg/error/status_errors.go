package error

import "net/http"

// The string errors below only differ in how they are rendered over HTTP.

type NotFoundError string

func (err NotFoundError) Error() string   { return string(err) }
func (err NotFoundError) ErrCode() string { return "NOT_FOUND_ERROR" }
func (err NotFoundError) StatusCode() int { return http.StatusNotFound }

type ConflictError string

func (err ConflictError) Error() string   { return string(err) }
func (err ConflictError) ErrCode() string { return "CONFLICT" }
func (err ConflictError) StatusCode() int { return http.StatusConflict }

// ForbiddenError is returned to webhook callers outside the allowed origins.
type ForbiddenError string

func (err ForbiddenError) Error() string   { return string(err) }
func (err ForbiddenError) ErrCode() string { return "FORBIDDEN" }
func (err ForbiddenError) StatusCode() int { return http.StatusForbidden }

type InternalServerError string

func (err InternalServerError) Error() string   { return string(err) }
func (err InternalServerError) ErrCode() string { return "INTERNAL_SERVER_ERROR" }
func (err InternalServerError) StatusCode() int { return http.StatusInternalServerError }
