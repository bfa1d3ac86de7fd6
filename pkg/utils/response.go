package utils

import (
	"errors"
	"net/http"

	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/gofiber/fiber/v2"
)

type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// ErrorBody is the failure envelope returned by every endpoint.
type ErrorBody struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Errors  any    `json:"errors,omitempty"`
}

// Ok writes a SUCCESS envelope.
func Ok(c *fiber.Ctx, message string, results any) error {
	return c.Status(http.StatusOK).JSON(ResponseData{
		Status:  http.StatusOK,
		Code:    "SUCCESS",
		Message: message,
		Results: results,
	})
}

// Created writes a 201 envelope.
func Created(c *fiber.Ctx, message string, results any) error {
	return c.Status(http.StatusCreated).JSON(ResponseData{
		Status:  http.StatusCreated,
		Code:    "CREATED",
		Message: message,
		Results: results,
	})
}

// Fail maps err to {success:false, message, errors?} with the status of its GenericError.
func Fail(c *fiber.Ctx, err error) error {
	body := ErrorBody{Success: false, Message: err.Error(), Code: "INTERNAL_SERVER_ERROR"}
	status := http.StatusInternalServerError

	var fields pkgError.FieldErrors
	var batch pkgError.BatchErrors
	var generic pkgError.GenericError
	switch {
	case errors.As(err, &fields):
		status = fields.StatusCode()
		body.Code = fields.ErrCode()
		body.Errors = map[string]string(fields)
	case errors.As(err, &batch):
		status = batch.StatusCode()
		body.Code = batch.ErrCode()
		body.Errors = []pkgError.ItemErrors(batch)
	case errors.As(err, &generic):
		status = generic.StatusCode()
		body.Code = generic.ErrCode()
	}
	return c.Status(status).JSON(body)
}

// FailWith writes a failure with explicit status and per-item errors.
func FailWith(c *fiber.Ctx, status int, message string, errs any) error {
	return c.Status(status).JSON(ErrorBody{Success: false, Message: message, Errors: errs})
}

// PanicIfNeeded hands err to middleware.Recovery, which renders GenericError statuses.
func PanicIfNeeded(err any) {
	if err != nil {
		panic(err)
	}
}
