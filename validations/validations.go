package validations

import (
	"errors"

	pkgError "github.com/AzielCF/az-engage/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// fieldErrors turns ozzo's per-field errors into the API's {field: reason} shape.
func fieldErrors(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		out := pkgError.FieldErrors{}
		for field, e := range errs {
			out[field] = e.Error()
		}
		return out
	}
	return pkgError.ValidationError(err.Error())
}

// Fields exposes the {field: reason} map of a validation error, or nil.
func Fields(err error) map[string]string {
	var fe pkgError.FieldErrors
	if errors.As(err, &fe) {
		return fe
	}
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	return nil
}
