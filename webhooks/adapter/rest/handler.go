package rest

import (
	"errors"
	"net/url"

	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/AzielCF/az-engage/pkg/utils"
	"github.com/AzielCF/az-engage/ui/rest/middleware"
	"github.com/AzielCF/az-engage/validations"
	"github.com/AzielCF/az-engage/webhooks/application"
	"github.com/AzielCF/az-engage/webhooks/domain"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type WebhookHandler struct {
	service *application.WebhookService
}

func NewWebhookHandler(service *application.WebhookService) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// RegisterIngress mounts the unauthenticated gateway callback. Gateways configured
// with per-event URLs append the event name to the path.
func (h *WebhookHandler) RegisterIngress(app fiber.Router) {
	app.Post("/webhooks/evolution", h.Receive)
	app.Post("/webhooks/evolution/*", h.Receive)
}

func (h *WebhookHandler) RegisterRoutes(router fiber.Router) {
	g := router.Group("/webhooks/events")
	g.Get("/", h.List)
	g.Post("/reprocess", h.Reprocess)
	g.Get("/:id", h.Get)
}

func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	ip := c.IP()
	if !h.service.Guard().Allowed(c.UserContext(), ip) {
		logrus.Warnf("[WEBHOOK] rejected callback from %s", ip)
		return utils.Fail(c, pkgError.ForbiddenError(domain.ErrOriginRejected.Error()))
	}
	res, err := h.service.Ingest(c.UserContext(), c.Body())
	if err != nil {
		if errors.Is(err, domain.ErrBadPayload) {
			return utils.Fail(c, pkgError.ValidationError(err.Error()))
		}
		logrus.WithError(err).Error("[WEBHOOK] ingest failed")
		return utils.Fail(c, pkgError.InternalServerError("could not record webhook"))
	}
	return utils.Ok(c, "Webhook received", res)
}

func (h *WebhookHandler) List(c *fiber.Ctx) error {
	filter := domain.Filter{
		Status:       domain.Status(c.Query("status")),
		Event:        c.Query("event"),
		InstanceName: c.Query("instance"),
		Limit:        c.QueryInt("limit", 50),
		Offset:       c.QueryInt("offset", 0),
	}
	switch filter.Status {
	case "", domain.StatusPending, domain.StatusProcessed, domain.StatusError:
	default:
		return utils.Fail(c, pkgError.ValidationError("status: must be pending, processed or error"))
	}
	list, err := h.service.List(c.UserContext(), middleware.Tenant(c), filter)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.Ok(c, "Success get webhook events", list)
}

// Get takes the event id URL-escaped, since ids contain a pipe.
func (h *WebhookHandler) Get(c *fiber.Ctx) error {
	id, err := url.PathUnescape(c.Params("id"))
	if err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid event id"))
	}
	e, err := h.service.Get(c.UserContext(), middleware.Tenant(c), id)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			return utils.Fail(c, pkgError.NotFoundError(err.Error()))
		}
		return utils.Fail(c, err)
	}
	return utils.Ok(c, "Success get webhook event", e)
}

func (h *WebhookHandler) Reprocess(c *fiber.Ctx) error {
	var request validations.ReprocessRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			return utils.Fail(c, pkgError.ValidationError("invalid body"))
		}
	}
	if err := validations.ValidateReprocess(c.UserContext(), request); err != nil {
		return utils.Fail(c, err)
	}
	queued, err := h.service.Reprocess(c.UserContext(), middleware.Tenant(c), request.EventIDs)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.Ok(c, "Webhook events requeued", fiber.Map{"queued": queued, "count": len(queued)})
}
