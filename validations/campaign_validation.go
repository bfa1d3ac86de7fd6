package validations

import (
	"context"
	"errors"

	"github.com/AzielCF/az-engage/campaigns/application"
	"github.com/AzielCF/az-engage/campaigns/domain"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const maxContactsPerRequest = 10000

var rotationModes = []any{
	string(domain.RotationRoundRobin),
	string(domain.RotationBalanced),
	string(domain.RotationIntelligent),
}

func validateVariant(value any) error {
	v, ok := value.(application.VariantInput)
	if !ok {
		return nil
	}
	return validation.ValidateStruct(&v,
		validation.Field(&v.Content, validation.Length(0, 4096),
			validation.When(v.MediaURL == "", validation.Required.Error("content or media_url is required"))),
		validation.Field(&v.MediaURL, is.URL),
	)
}

func intervalMax(lo int) validation.Rule {
	return validation.By(func(value any) error {
		v, _ := validation.Indirect(value)
		hi, _ := v.(int)
		if hi != 0 && lo != 0 && hi < lo {
			return errors.New("must be greater than or equal to interval_min")
		}
		return nil
	})
}

func ValidateCreateCampaign(ctx context.Context, request application.CreateInput) error {
	return fieldErrors(validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&request.RotationMode, validation.In(rotationModes...)),
		validation.Field(&request.IntervalMin, validation.Min(0)),
		validation.Field(&request.IntervalMax, validation.Min(0), intervalMax(request.IntervalMin)),
		validation.Field(&request.DailyLimitPerInstance, validation.Min(0)),
		validation.Field(&request.PauseOnHealthBelow, validation.Min(0), validation.Max(100)),
		validation.Field(&request.Messages, validation.Required, validation.Each(validation.By(validateVariant))),
		validation.Field(&request.InstanceIDs, validation.Each(is.UUID)),
	))
}

func ValidateUpdateCampaign(ctx context.Context, request application.UpdateInput) error {
	lo := 0
	if request.IntervalMin != nil {
		lo = *request.IntervalMin
	}
	return fieldErrors(validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Name, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&request.RotationMode, validation.NilOrNotEmpty, validation.In(rotationModes...)),
		validation.Field(&request.IntervalMin, validation.Min(1)),
		validation.Field(&request.IntervalMax, validation.Min(1), intervalMax(lo)),
		validation.Field(&request.DailyLimitPerInstance, validation.Min(0)),
		validation.Field(&request.PauseOnHealthBelow, validation.Min(0), validation.Max(100)),
		validation.Field(&request.Messages, validation.By(func(value any) error {
			list, _ := value.(*[]application.VariantInput)
			if list == nil {
				return nil
			}
			if len(*list) == 0 {
				return errors.New("cannot be empty")
			}
			return validation.Validate(*list, validation.Each(validation.By(validateVariant)))
		})),
	))
}

type AddContactsRequest struct {
	Contacts []application.ContactInput `json:"contacts"`
}

func ValidateAddContacts(ctx context.Context, request AddContactsRequest) error {
	return fieldErrors(validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Contacts, validation.Required, validation.Length(1, maxContactsPerRequest),
			validation.Each(validation.By(func(value any) error {
				c, _ := value.(application.ContactInput)
				return validation.ValidateStruct(&c,
					validation.Field(&c.Phone, validation.Required),
					validation.Field(&c.Name, validation.Length(0, 200)),
				)
			}))),
	))
}
