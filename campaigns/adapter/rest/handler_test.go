package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AzielCF/az-engage/campaigns/application"
	"github.com/AzielCF/az-engage/campaigns/repository"
	contactsRepo "github.com/AzielCF/az-engage/contacts/repository"
	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/core/database/dbtest"
	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
	instancesApp "github.com/AzielCF/az-engage/instances/application"
	instancesRepo "github.com/AzielCF/az-engage/instances/repository"
	"github.com/AzielCF/az-engage/pkg/crypto"
	"github.com/AzielCF/az-engage/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) (*fiber.App, *jobs.Recorder) {
	t.Helper()
	require.NoError(t, crypto.SetEncryptionKey("test-secret"))
	db := dbtest.Open(t)
	instRepo := instancesRepo.NewInstanceGormRepository(db)
	phonebook := contactsRepo.NewContactGormRepository(db)
	campaigns := repository.NewCampaignGormRepository(db)
	contacts := repository.NewContactGormRepository(db)
	logs := repository.NewLogGormRepository(db)
	dbtest.Migrate(t, instRepo, phonebook, campaigns, contacts, logs)

	cfg := &config.Config{}
	bus := &jobs.Recorder{}
	svc := application.NewCampaignService(application.Deps{
		DB:        db,
		Campaigns: campaigns,
		Contacts:  contacts,
		Logs:      logs,
		Phonebook: phonebook,
		Instances: instancesApp.NewInstanceService(instRepo, gateway.NewFake(), nil, cfg),
		Bus:       bus,
		Config:    cfg,
	})

	app := fiber.New()
	api := app.Group("/api", middleware.WithTenant("t1", "u1"))
	NewCampaignHandler(svc).RegisterRoutes(api)
	return app, bus
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

func TestCampaignHandler_Lifecycle(t *testing.T) {
	app, bus := newApp(t)

	status, body := call(t, app, http.MethodPost, "/api/campaigns/",
		`{"name":"Black Friday","interval_min":5,"interval_max":10,"messages":[{"content":"Oi {{nome}}"}]}`)
	require.Equal(t, http.StatusCreated, status, body)
	created := body["results"].(map[string]any)
	id := created["id"].(string)
	assert.Equal(t, "draft", created["status"])
	assert.Equal(t, "round_robin", created["rotation_mode"])

	status, _ = call(t, app, http.MethodPost, "/api/campaigns/"+id+"/start", "")
	assert.Equal(t, http.StatusBadRequest, status, "no contacts yet")

	status, body = call(t, app, http.MethodPost, "/api/campaigns/"+id+"/contacts",
		`{"contacts":[{"phone":"+5511988887701","name":"Ana"},{"phone":"12","name":"Bad"}]}`)
	require.Equal(t, http.StatusOK, status, body)
	res := body["results"].(map[string]any)
	assert.Equal(t, float64(1), res["added"])
	assert.Equal(t, []any{"12"}, res["invalid"])

	status, body = call(t, app, http.MethodPost, "/api/campaigns/"+id+"/start", "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "running", body["results"].(map[string]any)["status"])
	assert.Len(t, bus.On(jobs.StreamCampaignControl), 1)

	status, _ = call(t, app, http.MethodPut, "/api/campaigns/"+id, `{"name":"renamed"}`)
	assert.Equal(t, http.StatusConflict, status, "running campaigns are not editable")

	status, _ = call(t, app, http.MethodPost, "/api/campaigns/"+id+"/resume", "")
	assert.Equal(t, http.StatusConflict, status)

	status, _ = call(t, app, http.MethodPost, "/api/campaigns/"+id+"/pause", "")
	assert.Equal(t, http.StatusOK, status)

	status, body = call(t, app, http.MethodGet, "/api/campaigns/"+id+"/stats", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "paused", body["results"].(map[string]any)["status"])

	status, body = call(t, app, http.MethodGet, "/api/campaigns/"+id+"/contacts?status=pending", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["results"], 1)

	status, body = call(t, app, http.MethodGet, "/api/campaigns/"+id+"/logs", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["results"], 2)
}

func TestCampaignHandler_Validation(t *testing.T) {
	app, _ := newApp(t)

	status, body := call(t, app, http.MethodPost, "/api/campaigns/",
		`{"name":"","rotation_mode":"random","interval_min":60,"interval_max":10,"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	errs := body["errors"].(map[string]any)
	assert.Contains(t, errs, "name")
	assert.Contains(t, errs, "rotation_mode")
	assert.Contains(t, errs, "interval_max")
	assert.Contains(t, errs, "messages")

	status, _ = call(t, app, http.MethodPost, "/api/campaigns/",
		`{"name":"x","messages":[{"content":"hi"}],"instance_ids":["00000000-0000-0000-0000-000000000001"]}`)
	assert.Equal(t, http.StatusBadRequest, status, "instance of another tenant")

	status, _ = call(t, app, http.MethodGet, "/api/campaigns/missing", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = call(t, app, http.MethodPost, "/api/campaigns/missing/contacts", `{"contacts":[]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["errors"], "contacts")
}
