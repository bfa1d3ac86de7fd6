package validations

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type ReprocessRequest struct {
	EventIDs []string `json:"event_ids"`
}

func ValidateReprocess(ctx context.Context, request ReprocessRequest) error {
	return fieldErrors(validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.EventIDs, validation.Length(0, 100), validation.Each(validation.Required)),
	))
}
