package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/AzielCF/az-engage/core/jobs"
	"github.com/AzielCF/az-engage/pkg/utils"
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const healthTimeout = 3 * time.Second

// Pinger is a dependency the health check can probe; *valkey.Client implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueDepth reports waiting jobs per stream.
type QueueDepth interface {
	Depth(ctx context.Context, stream string) (int, error)
}

type HealthHandler struct {
	db       *gorm.DB
	cache    Pinger
	queue    QueueDepth
	version  string
	serverID string
	started  time.Time
}

// NewHealthHandler builds the probe. cache and queue may be nil when not configured.
func NewHealthHandler(db *gorm.DB, cache Pinger, queue QueueDepth, version, serverID string) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, queue: queue, version: version, serverID: serverID, started: time.Now()}
}

func (h *HealthHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/health", h.Status)
}

// Status answers 200 when every dependency responds and 503 otherwise.
func (h *HealthHandler) Status(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	checks := map[string]string{
		"database": probe(func() error {
			sqlDB, err := h.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
		"valkey": "disabled",
		"queue":  "disabled",
	}
	if h.cache != nil {
		checks["valkey"] = probe(func() error { return h.cache.Ping(ctx) })
	}
	if h.queue != nil {
		checks["queue"] = probe(func() error {
			_, err := h.queue.Depth(ctx, jobs.StreamChatSend)
			return err
		})
	}

	status := http.StatusOK
	for _, v := range checks {
		if v != "ok" && v != "disabled" {
			status = http.StatusServiceUnavailable
		}
	}
	code := "SUCCESS"
	if status != http.StatusOK {
		code = "SERVICE_UNAVAILABLE"
	}
	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    code,
		Message: "Health status",
		Results: fiber.Map{
			"checks":    checks,
			"version":   h.version,
			"server_id": h.serverID,
			"uptime":    humanize.RelTime(h.started, time.Now(), "", ""),
		},
	})
}

func probe(fn func() error) string {
	if err := fn(); err != nil {
		return err.Error()
	}
	return "ok"
}
