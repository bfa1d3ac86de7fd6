package rest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/pkg/utils"
	"github.com/AzielCF/az-engage/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
)

// Module is an adapter that mounts its routes on a router.
type Module interface {
	RegisterRoutes(router fiber.Router)
}

// Server is the fiber app with the public group (health, webhook ingress) and the
// tenant-authenticated /api group.
type Server struct {
	App    *fiber.App
	Public fiber.Router
	API    fiber.Router

	cfg *config.Config
}

func NewServer(cfg *config.Config) *Server {
	fiberConfig := fiber.Config{
		BodyLimit:             8 * 1024 * 1024,
		Network:               "tcp",
		AppName:               "az-engage",
		DisableStartupMessage: true,
		ServerHeader:          "Hidden",
		ErrorHandler:          errorHandler,
	}
	if len(cfg.App.TrustedProxies) > 0 {
		fiberConfig.EnableTrustedProxyCheck = true
		fiberConfig.TrustedProxies = cfg.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedFor
	}
	app := fiber.New(fiberConfig)

	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins(cfg.App),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        1000,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		// gateway callbacks arrive in bursts from a single address
		Next: func(c *fiber.Ctx) bool {
			return strings.Contains(c.Path(), "/webhooks/evolution")
		},
	}))
	if cfg.App.Debug {
		app.Use(logger.New())
	}

	base := strings.TrimSuffix(cfg.App.BasePath, "/")
	return &Server{
		App:    app,
		Public: app.Group(base),
		API:    app.Group(base+"/api", middleware.TenantAuth(cfg.Security.JWTSecret)),
		cfg:    cfg,
	}
}

func allowedOrigins(app config.AppConfig) string {
	origins := append([]string(nil), app.CorsAllowedOrigins...)
	if app.BaseUrl != "" && !contains(origins, app.BaseUrl) {
		origins = append(origins, app.BaseUrl)
	}
	return strings.Join(origins, ", ")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Mount registers modules under /api.
func (s *Server) Mount(modules ...Module) {
	for _, m := range modules {
		m.RegisterRoutes(s.API)
	}
}

// Listen closes the /api group with a JSON 404 and serves until Shutdown.
func (s *Server) Listen(port string) error {
	s.API.All("/*", func(c *fiber.Ctx) error {
		return utils.FailWith(c, fiber.StatusNotFound, "API endpoint not found: "+c.Path(), nil)
	})
	logrus.Infof("[REST] Listening on :%s", port)
	return s.App.Listen(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.App.ShutdownWithContext(ctx)
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return utils.FailWith(c, fe.Code, fe.Message, nil)
	}
	return utils.Fail(c, err)
}
