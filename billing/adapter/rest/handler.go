package rest

import (
	"errors"
	"time"

	"github.com/AzielCF/az-engage/billing/application"
	"github.com/AzielCF/az-engage/billing/domain"
	"github.com/AzielCF/az-engage/core/config"
	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/AzielCF/az-engage/pkg/utils"
	"github.com/AzielCF/az-engage/ui/rest/middleware"
	"github.com/AzielCF/az-engage/validations"
	"github.com/gofiber/fiber/v2"
)

type BillingHandler struct {
	service *application.BillingService
	cfg     *config.Config
	now     func() time.Time
}

func NewBillingHandler(service *application.BillingService, cfg *config.Config) *BillingHandler {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &BillingHandler{service: service, cfg: cfg, now: time.Now}
}

func (h *BillingHandler) RegisterRoutes(router fiber.Router) {
	g := router.Group("/billing")
	g.Get("/cycles", h.List)
	g.Post("/cycles", h.CreateBatch)
	g.Get("/cycles/:id", h.Get)
	g.Post("/cycles/:external_id/pay", h.Pay)
	g.Post("/cycles/:external_id/cancel", h.Cancel)
	g.Get("/plan", h.GetPlan)
	g.Put("/plan", h.SavePlan)
}

func (h *BillingHandler) CreateBatch(c *fiber.Ctx) error {
	var req validations.BillingBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid request body"))
	}
	err := validations.ValidateBillingBatch(c.UserContext(), req, h.cfg.Billing.MaxBatch, h.now(), h.cfg.Location())
	if err != nil {
		return utils.Fail(c, err)
	}
	res, err := h.service.CreateBatch(c.UserContext(), middleware.Tenant(c), req.Cycles)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Created(c, "Billing cycles scheduled", res)
}

func (h *BillingHandler) List(c *fiber.Ctx) error {
	list, err := h.service.List(c.UserContext(), middleware.Tenant(c), domain.CycleStatus(c.Query("status")),
		c.QueryInt("limit", 100), c.QueryInt("offset", 0))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get billing cycles", list)
}

func (h *BillingHandler) Get(c *fiber.Ctx) error {
	cycle, err := h.service.Get(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get billing cycle", cycle)
}

func (h *BillingHandler) Pay(c *fiber.Ctx) error {
	cycle, err := h.service.Pay(c.UserContext(), middleware.Tenant(c), c.Params("external_id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Billing cycle paid", cycle)
}

func (h *BillingHandler) Cancel(c *fiber.Ctx) error {
	cycle, err := h.service.Cancel(c.UserContext(), middleware.Tenant(c), c.Params("external_id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Billing cycle cancelled", cycle)
}

func (h *BillingHandler) GetPlan(c *fiber.Ctx) error {
	steps, err := h.service.Steps(c.UserContext(), middleware.Tenant(c))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get billing plan", fiber.Map{"steps": steps})
}

func (h *BillingHandler) SavePlan(c *fiber.Ctx) error {
	var req validations.BillingPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid request body"))
	}
	if err := validations.ValidateBillingPlan(c.UserContext(), req); err != nil {
		return utils.Fail(c, err)
	}
	plan, err := h.service.SavePlan(c.UserContext(), middleware.Tenant(c), req.Steps)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Billing plan saved", plan)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, domain.ErrCycleNotFound):
		return pkgError.NotFoundError(err.Error())
	case errors.Is(err, domain.ErrCycleClosed), errors.Is(err, domain.ErrDuplicateCycle):
		return pkgError.ConflictError(err.Error())
	}
	return err
}
