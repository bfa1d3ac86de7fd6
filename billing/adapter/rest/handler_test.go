package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AzielCF/az-engage/billing/application"
	"github.com/AzielCF/az-engage/billing/repository"
	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/core/database/dbtest"
	"github.com/AzielCF/az-engage/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	db := dbtest.Open(t)
	cycles := repository.NewCycleGormRepository(db)
	emissions := repository.NewEmissionGormRepository(db)
	plans := repository.NewPlanGormRepository(db)
	dbtest.Migrate(t, cycles, emissions, plans)

	cfg := &config.Config{}
	cfg.Billing = config.BillingConfig{SendHour: 9, DefaultPlan: "-3,-1,0,1,3,7", MaxBatch: 2}
	svc := application.NewBillingService(application.Deps{DB: db, Cycles: cycles, Emissions: emissions, Plans: plans, Config: cfg})
	svc.SetClock(func() time.Time { return now })

	h := NewBillingHandler(svc, cfg)
	h.now = func() time.Time { return now }
	app := fiber.New()
	h.RegisterRoutes(app.Group("/api", middleware.WithTenant("t1", "u1")))
	return app
}

func call(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return resp.StatusCode, out
}

func TestBillingHandler_CreatePayFlow(t *testing.T) {
	app := newApp(t)

	status, body := call(t, app, http.MethodPost, "/api/billing/cycles",
		`{"cycles":[{"external_billing_id":"INV-1","phone":"+5511988887701","name":"Ana","due_date":"2026-03-20","billing_data":{"valor":"R$ 10"}}]}`)
	require.Equal(t, http.StatusCreated, status, body)
	res := body["results"].(map[string]any)
	assert.Equal(t, float64(1), res["created"])
	assert.Equal(t, float64(6), res["emissions"])
	id := res["cycles"].([]any)[0].(map[string]any)["id"].(string)

	status, body = call(t, app, http.MethodGet, "/api/billing/cycles/"+id, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["results"].(map[string]any)["emissions"], 6)

	status, body = call(t, app, http.MethodPost, "/api/billing/cycles/INV-1/pay", "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "paid", body["results"].(map[string]any)["status"])

	status, _ = call(t, app, http.MethodPost, "/api/billing/cycles/INV-1/cancel", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = call(t, app, http.MethodGet, "/api/billing/cycles?status=paid", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["results"], 1)
}

func TestBillingHandler_BatchValidation(t *testing.T) {
	app := newApp(t)

	status, body := call(t, app, http.MethodPost, "/api/billing/cycles",
		`{"cycles":[{"external_billing_id":"INV-1","phone":"+5511","name":"Ana","due_date":"2026-03-20"},{"phone":"","name":"Bia","due_date":"2030-01-01","billing_data":"x"}]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	item := errs[0].(map[string]any)
	assert.Equal(t, float64(1), item["index"])
	fields := item["errors"].(map[string]any)
	assert.Contains(t, fields, "external_billing_id")
	assert.Contains(t, fields, "phone")
	assert.Contains(t, fields, "due_date")
	assert.Contains(t, fields, "billing_data")

	status, body = call(t, app, http.MethodPost, "/api/billing/cycles", `{"cycles":[{},{},{}]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["errors"], "cycles")
}

func TestBillingHandler_Plan(t *testing.T) {
	app := newApp(t)

	status, body := call(t, app, http.MethodGet, "/api/billing/plan", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["results"].(map[string]any)["steps"], 6)

	status, _ = call(t, app, http.MethodPut, "/api/billing/plan", `{"steps":[{"offset_days":-90}]}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = call(t, app, http.MethodPut, "/api/billing/plan", `{"steps":[{"offset_days":-2},{"offset_days":2,"template":"Oi {{nome}}"}]}`)
	require.Equal(t, http.StatusOK, status)

	status, body = call(t, app, http.MethodGet, "/api/billing/plan", "")
	require.Equal(t, http.StatusOK, status)
	steps := body["results"].(map[string]any)["steps"].([]any)
	require.Len(t, steps, 2)
	assert.Equal(t, "Oi {{nome}}", steps[1].(map[string]any)["template"])
}
