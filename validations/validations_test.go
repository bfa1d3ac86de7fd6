package validations

import (
	"context"
	"testing"
	"time"

	billingApp "github.com/AzielCF/az-engage/billing/application"
	campaignsApp "github.com/AzielCF/az-engage/campaigns/application"
	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestValidateCreateCampaign(t *testing.T) {
	ctx := context.Background()
	ok := campaignsApp.CreateInput{
		Name:         "Promo",
		RotationMode: "balanced",
		IntervalMin:  10,
		IntervalMax:  20,
		Messages:     []campaignsApp.VariantInput{{Content: "Oi"}, {MediaURL: "https://cdn.test/a.jpg"}},
	}
	assert.NoError(t, ValidateCreateCampaign(ctx, ok))

	bad := ok
	bad.IntervalMax = 5
	bad.PauseOnHealthBelow = 120
	bad.Messages = []campaignsApp.VariantInput{{}}
	fields := Fields(ValidateCreateCampaign(ctx, bad))
	assert.Contains(t, fields, "interval_max")
	assert.Contains(t, fields, "pause_on_health_below")
	assert.Contains(t, fields, "messages")
}

func TestValidateUpdateCampaign(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, ValidateUpdateCampaign(ctx, campaignsApp.UpdateInput{}))

	empty := []campaignsApp.VariantInput{}
	fields := Fields(ValidateUpdateCampaign(ctx, campaignsApp.UpdateInput{
		IntervalMin: intPtr(30),
		IntervalMax: intPtr(10),
		Messages:    &empty,
	}))
	assert.Contains(t, fields, "interval_max")
	assert.Contains(t, fields, "messages")
}

func TestValidateBillingBatch_IndexedErrors(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	req := BillingBatchRequest{Cycles: []billingApp.CycleInput{
		{ExternalBillingID: "A", Phone: "+5511", Name: "Ana", DueDate: "2026-04-01", BillingData: map[string]any{"valor": 10}},
		{ExternalBillingID: "", Phone: "+5511", Name: "Bia", DueDate: "01/04/2026"},
		{ExternalBillingID: "C", Phone: "+5511", Name: "Caio", DueDate: "2027-03-10", BillingData: []any{1}},
	}}

	err := ValidateBillingBatch(context.Background(), req, 10000, now, time.UTC)
	var batch pkgError.BatchErrors
	require.ErrorAs(t, err, &batch)
	require.Len(t, batch, 2)
	assert.Equal(t, 1, batch[0].Index)
	assert.Contains(t, batch[0].Errors, "external_billing_id")
	assert.Equal(t, "must be YYYY-MM-DD", batch[0].Errors["due_date"])
	assert.Equal(t, 2, batch[1].Index)
	assert.Equal(t, "must be within one year of today", batch[1].Errors["due_date"])
	assert.Equal(t, "must be an object", batch[1].Errors["billing_data"])
}

func TestValidateBillingBatch_Size(t *testing.T) {
	now := time.Now()
	assert.Contains(t, Fields(ValidateBillingBatch(context.Background(), BillingBatchRequest{}, 10, now, nil)), "cycles")

	items := make([]billingApp.CycleInput, 3)
	err := ValidateBillingBatch(context.Background(), BillingBatchRequest{Cycles: items}, 2, now, nil)
	assert.Equal(t, "at most 2 cycles per request", Fields(err)["cycles"])
}
