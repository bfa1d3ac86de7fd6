package validations

import (
	"context"
	"errors"
	"fmt"
	"time"

	billingApp "github.com/AzielCF/az-engage/billing/application"
	billingDomain "github.com/AzielCF/az-engage/billing/domain"
	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/AzielCF/az-engage/pkg/timeutils"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type BillingBatchRequest struct {
	Cycles []billingApp.CycleInput `json:"cycles"`
}

type BillingPlanRequest struct {
	Steps []billingDomain.PlanStep `json:"steps"`
}

// dueDateWithin accepts YYYY-MM-DD dates strictly inside a year around today.
func dueDateWithin(today time.Time, loc *time.Location) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		d, err := timeutils.ParseDate(s, loc)
		if err != nil {
			return errors.New("must be YYYY-MM-DD")
		}
		if !d.After(today.AddDate(-1, 0, 0)) || !d.Before(today.AddDate(1, 0, 0)) {
			return errors.New("must be within one year of today")
		}
		return nil
	})
}

var billingDataObject = validation.By(func(value any) error {
	switch value.(type) {
	case nil, map[string]any:
		return nil
	}
	return errors.New("must be an object")
})

// ValidateBillingBatch checks every item and reports failures by position.
func ValidateBillingBatch(ctx context.Context, request BillingBatchRequest, maxItems int, now time.Time, loc *time.Location) error {
	if len(request.Cycles) == 0 {
		return pkgError.FieldErrors{"cycles": "cannot be blank"}
	}
	if maxItems > 0 && len(request.Cycles) > maxItems {
		return pkgError.FieldErrors{"cycles": fmt.Sprintf("at most %d cycles per request", maxItems)}
	}
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)

	var batch pkgError.BatchErrors
	for i := range request.Cycles {
		item := request.Cycles[i]
		err := validation.ValidateStructWithContext(ctx, &item,
			validation.Field(&item.ExternalBillingID, validation.Required, validation.Length(1, 120)),
			validation.Field(&item.Phone, validation.Required, validation.Length(1, 40)),
			validation.Field(&item.Name, validation.Required, validation.Length(1, 200)),
			validation.Field(&item.DueDate, validation.Required, dueDateWithin(today, loc)),
			validation.Field(&item.BillingData, billingDataObject),
		)
		if err == nil {
			continue
		}
		fields := map[string]string{}
		var errs validation.Errors
		if errors.As(err, &errs) {
			for field, e := range errs {
				fields[field] = e.Error()
			}
		} else {
			fields["_"] = err.Error()
		}
		batch = append(batch, pkgError.ItemErrors{Index: i, Errors: fields})
	}
	if len(batch) > 0 {
		return batch
	}
	return nil
}

func ValidateBillingPlan(ctx context.Context, request BillingPlanRequest) error {
	return fieldErrors(validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Steps, validation.Required, validation.Length(1, 30),
			validation.Each(validation.By(func(value any) error {
				st, _ := value.(billingDomain.PlanStep)
				return validation.ValidateStruct(&st,
					validation.Field(&st.OffsetDays, validation.Min(-60), validation.Max(60)),
					validation.Field(&st.Template, validation.Length(0, 4096)),
				)
			}))),
	))
}
