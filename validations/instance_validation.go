package validations

import (
	"context"
	"regexp"

	"github.com/AzielCF/az-engage/instances/application"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var instanceNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func ValidateCreateInstance(ctx context.Context, request application.CreateInput) error {
	return fieldErrors(validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.InstanceName, validation.Required, validation.Length(2, 64),
			validation.Match(instanceNamePattern).Error("only letters, digits, '.', '_' and '-'")),
		validation.Field(&request.FriendlyName, validation.Length(0, 120)),
		validation.Field(&request.BaseURL, is.URL),
	))
}
