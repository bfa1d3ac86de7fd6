package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestParseToken(t *testing.T) {
	tok := sign(t, jwt.MapClaims{"tenant_id": "acme", "sub": float64(42), "exp": time.Now().Add(time.Hour).Unix()})
	c, err := ParseToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, "acme", c.Tenant)
	assert.Equal(t, "42", c.UserID)

	_, err = ParseToken(tok, "other-secret")
	assert.Error(t, err)

	expired := sign(t, jwt.MapClaims{"tenant_id": "acme", "exp": time.Now().Add(-time.Hour).Unix()})
	_, err = ParseToken(expired, secret)
	assert.Error(t, err)

	noTenant := sign(t, jwt.MapClaims{"sub": "u1"})
	_, err = ParseToken(noTenant, secret)
	assert.Error(t, err)
}

func TestTenantAuth(t *testing.T) {
	app := fiber.New()
	app.Use(TenantAuth(secret))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.SendString(Tenant(c) + "/" + UserID(c))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.MapClaims{"tenant": "acme", "user_id": "u7"}))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/me?token="+sign(t, jwt.MapClaims{"tenant_id": "beta"}), nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestRecovery_MapsGenericError(t *testing.T) {
	app := fiber.New()
	app.Use(Recovery())
	app.Get("/nf", func(c *fiber.Ctx) error { panic(pkgError.NotFoundError("campaign not found")) })
	app.Get("/boom", func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/nf", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
}
