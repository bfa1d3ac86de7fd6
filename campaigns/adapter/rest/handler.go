package rest

import (
	"context"
	"errors"

	"github.com/AzielCF/az-engage/campaigns/application"
	"github.com/AzielCF/az-engage/campaigns/domain"
	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/AzielCF/az-engage/pkg/utils"
	"github.com/AzielCF/az-engage/ui/rest/middleware"
	"github.com/AzielCF/az-engage/validations"
	"github.com/gofiber/fiber/v2"
)

type CampaignHandler struct {
	service *application.CampaignService
}

func NewCampaignHandler(service *application.CampaignService) *CampaignHandler {
	return &CampaignHandler{service: service}
}

func (h *CampaignHandler) RegisterRoutes(router fiber.Router) {
	g := router.Group("/campaigns")
	g.Get("/", h.List)
	g.Post("/", h.Create)
	g.Get("/:id", h.Get)
	g.Put("/:id", h.Update)
	g.Delete("/:id", h.Delete)
	g.Post("/:id/contacts", h.AddContacts)
	g.Get("/:id/contacts", h.ListContacts)
	g.Post("/:id/start", h.Start)
	g.Post("/:id/pause", h.Pause)
	g.Post("/:id/resume", h.Resume)
	g.Post("/:id/cancel", h.Cancel)
	g.Get("/:id/stats", h.Stats)
	g.Get("/:id/logs", h.Logs)
}

func (h *CampaignHandler) List(c *fiber.Ctx) error {
	list, err := h.service.List(c.UserContext(), middleware.Tenant(c), domain.Status(c.Query("status")))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get campaigns", list)
}

func (h *CampaignHandler) Create(c *fiber.Ctx) error {
	var req application.CreateInput
	if err := c.BodyParser(&req); err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid request body"))
	}
	if err := validations.ValidateCreateCampaign(c.UserContext(), req); err != nil {
		return utils.Fail(c, err)
	}
	campaign, err := h.service.Create(c.UserContext(), middleware.Tenant(c), req)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Created(c, "Campaign created", campaign)
}

func (h *CampaignHandler) Get(c *fiber.Ctx) error {
	campaign, err := h.service.Get(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get campaign", campaign)
}

func (h *CampaignHandler) Update(c *fiber.Ctx) error {
	var req application.UpdateInput
	if err := c.BodyParser(&req); err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid request body"))
	}
	if err := validations.ValidateUpdateCampaign(c.UserContext(), req); err != nil {
		return utils.Fail(c, err)
	}
	campaign, err := h.service.Update(c.UserContext(), middleware.Tenant(c), c.Params("id"), req)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Campaign updated", campaign)
}

func (h *CampaignHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), middleware.Tenant(c), c.Params("id")); err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Campaign deleted", nil)
}

func (h *CampaignHandler) AddContacts(c *fiber.Ctx) error {
	var req validations.AddContactsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid request body"))
	}
	if err := validations.ValidateAddContacts(c.UserContext(), req); err != nil {
		return utils.Fail(c, err)
	}
	res, err := h.service.AddContacts(c.UserContext(), middleware.Tenant(c), c.Params("id"), req.Contacts)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Contacts added", res)
}

func (h *CampaignHandler) ListContacts(c *fiber.Ctx) error {
	list, err := h.service.ListContacts(c.UserContext(), middleware.Tenant(c), c.Params("id"),
		domain.ContactStatus(c.Query("status")), c.QueryInt("limit", 100), c.QueryInt("offset", 0))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get campaign contacts", list)
}

func (h *CampaignHandler) Start(c *fiber.Ctx) error {
	return h.control(c, "Campaign started", h.service.Start)
}

func (h *CampaignHandler) Pause(c *fiber.Ctx) error {
	return h.control(c, "Campaign paused", h.service.Pause)
}

func (h *CampaignHandler) Resume(c *fiber.Ctx) error {
	return h.control(c, "Campaign resumed", h.service.Resume)
}

func (h *CampaignHandler) Cancel(c *fiber.Ctx) error {
	return h.control(c, "Campaign cancelled", h.service.Cancel)
}

type controlFunc func(ctx context.Context, tenant, id string) (*domain.Campaign, error)

func (h *CampaignHandler) control(c *fiber.Ctx, message string, fn controlFunc) error {
	campaign, err := fn(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, message, campaign)
}

func (h *CampaignHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get campaign stats", stats)
}

func (h *CampaignHandler) Logs(c *fiber.Ctx) error {
	logs, err := h.service.Logs(c.UserContext(), middleware.Tenant(c), c.Params("id"),
		domain.LogType(c.Query("type")), c.QueryInt("limit", 100), c.QueryInt("offset", 0))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get campaign logs", logs)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, domain.ErrCampaignNotFound), errors.Is(err, domain.ErrContactNotFound):
		return pkgError.NotFoundError(err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNotEditable):
		return pkgError.ConflictError(err.Error())
	case errors.Is(err, domain.ErrNoVariants), errors.Is(err, domain.ErrNoContacts),
		errors.Is(err, domain.ErrForeignInstance):
		return pkgError.ValidationError(err.Error())
	}
	return err
}
