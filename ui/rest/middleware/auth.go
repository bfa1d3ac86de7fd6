package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	localTenant = "tenant"
	localUser   = "user_id"
)

var errInvalidToken = errors.New("invalid token")

// Claims is what this service reads from tokens issued by the identity service.
type Claims struct {
	Tenant string
	UserID string
}

// ParseToken validates an HS256 token and extracts the tenant and user.
func ParseToken(tokenString, secret string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Claims{}, errInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errInvalidToken
	}
	c := Claims{Tenant: claimString(mc, "tenant_id"), UserID: claimString(mc, "sub")}
	if c.Tenant == "" {
		c.Tenant = claimString(mc, "tenant")
	}
	if c.UserID == "" {
		c.UserID = claimString(mc, "user_id")
	}
	if c.Tenant == "" {
		return Claims{}, errInvalidToken
	}
	return c, nil
}

// claimString accepts string or numeric ids.
func claimString(mc jwt.MapClaims, key string) string {
	switch v := mc[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

// TenantAuth requires a Bearer token (or ?token= for websocket upgrades).
func TenantAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "))
		if raw == "" {
			raw = c.Query("token")
		}
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "missing token"})
		}
		claims, err := ParseToken(raw, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": err.Error()})
		}
		c.Locals(localTenant, claims.Tenant)
		c.Locals(localUser, claims.UserID)
		return c.Next()
	}
}

func Tenant(c *fiber.Ctx) string {
	v, _ := c.Locals(localTenant).(string)
	return v
}

func UserID(c *fiber.Ctx) string {
	v, _ := c.Locals(localUser).(string)
	return v
}

// WithTenant sets the tenant directly; used by tests and internal routes.
func WithTenant(tenant, userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(localTenant, tenant)
		c.Locals(localUser, userID)
		return c.Next()
	}
}
