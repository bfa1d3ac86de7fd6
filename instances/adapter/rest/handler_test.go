package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AzielCF/az-engage/core/broadcast"
	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/core/database/dbtest"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
	"github.com/AzielCF/az-engage/instances/application"
	"github.com/AzielCF/az-engage/instances/repository"
	"github.com/AzielCF/az-engage/pkg/crypto"
	"github.com/AzielCF/az-engage/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	require.NoError(t, crypto.SetEncryptionKey("test-secret"))
	db := dbtest.Open(t)
	repo := repository.NewInstanceGormRepository(db)
	dbtest.Migrate(t, repo)
	svc := application.NewInstanceService(repo, gateway.NewFake(), broadcast.Nop{}, &config.Config{})

	app := fiber.New()
	api := app.Group("/api", middleware.WithTenant("t1", "u1"))
	NewInstanceHandler(svc).RegisterRoutes(api)
	return app
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestInstanceHandler_CreateAndGet(t *testing.T) {
	app := newApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/instances/", strings.NewReader(`{"instance_name":"sales-1","api_key":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode(t, resp)
	results := body["results"].(map[string]any)
	assert.Equal(t, "sales-1", results["instance_name"])
	assert.NotContains(t, results, "api_key")

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/instances/"+results["id"].(string), nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInstanceHandler_Errors(t *testing.T) {
	app := newApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/instances/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/instances/", strings.NewReader(`{"instance_name":"bad name!"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["errors"], "instance_name")
}
