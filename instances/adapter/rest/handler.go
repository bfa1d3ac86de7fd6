package rest

import (
	"errors"

	"github.com/AzielCF/az-engage/infrastructure/gateway"
	"github.com/AzielCF/az-engage/instances/application"
	"github.com/AzielCF/az-engage/instances/domain"
	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/AzielCF/az-engage/pkg/utils"
	"github.com/AzielCF/az-engage/ui/rest/middleware"
	"github.com/AzielCF/az-engage/validations"
	"github.com/gofiber/fiber/v2"
)

type InstanceHandler struct {
	service *application.InstanceService
}

func NewInstanceHandler(service *application.InstanceService) *InstanceHandler {
	return &InstanceHandler{service: service}
}

func (h *InstanceHandler) RegisterRoutes(router fiber.Router) {
	g := router.Group("/instances")
	g.Get("/", h.List)
	g.Post("/", h.Create)
	g.Get("/:id", h.Get)
	g.Put("/:id", h.Update)
	g.Delete("/:id", h.Delete)
	g.Post("/:id/connect", h.Connect)
	g.Get("/:id/state", h.State)
	g.Post("/:id/logout", h.Logout)
	g.Post("/:id/default", h.SetDefault)
}

func (h *InstanceHandler) List(c *fiber.Ctx) error {
	list, err := h.service.List(c.UserContext(), middleware.Tenant(c))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get instances", list)
}

func (h *InstanceHandler) Create(c *fiber.Ctx) error {
	var req application.CreateInput
	if err := c.BodyParser(&req); err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid request body"))
	}
	if err := validations.ValidateCreateInstance(c.UserContext(), req); err != nil {
		return utils.Fail(c, err)
	}
	inst, err := h.service.Create(c.UserContext(), middleware.Tenant(c), req)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Created(c, "Instance created", inst)
}

func (h *InstanceHandler) Get(c *fiber.Ctx) error {
	inst, err := h.service.Get(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get instance", inst)
}

func (h *InstanceHandler) Update(c *fiber.Ctx) error {
	var req application.UpdateInput
	if err := c.BodyParser(&req); err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid request body"))
	}
	inst, err := h.service.Update(c.UserContext(), middleware.Tenant(c), c.Params("id"), req)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Instance updated", inst)
}

func (h *InstanceHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), middleware.Tenant(c), c.Params("id")); err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Instance deleted", nil)
}

func (h *InstanceHandler) Connect(c *fiber.Ctx) error {
	qr, err := h.service.Connect(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Scan the QR code", fiber.Map{"qrcode": qr})
}

func (h *InstanceHandler) State(c *fiber.Ctx) error {
	inst, err := h.service.RefreshState(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get state", fiber.Map{"id": inst.ID, "connection_state": inst.ConnectionState})
}

func (h *InstanceHandler) Logout(c *fiber.Ctx) error {
	if err := h.service.Logout(c.UserContext(), middleware.Tenant(c), c.Params("id")); err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Instance logged out", nil)
}

func (h *InstanceHandler) SetDefault(c *fiber.Ctx) error {
	if err := h.service.SetDefault(c.UserContext(), middleware.Tenant(c), c.Params("id")); err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Default instance updated", nil)
}

func mapError(err error) error {
	var status *gateway.StatusError
	switch {
	case errors.Is(err, domain.ErrInstanceNotFound):
		return pkgError.NotFoundError(err.Error())
	case errors.Is(err, domain.ErrDuplicateInstance):
		return pkgError.ConflictError(err.Error())
	case errors.Is(err, domain.ErrInstanceInactive), errors.Is(err, domain.ErrNoActiveInstance):
		return pkgError.ConflictError(err.Error())
	case errors.Is(err, gateway.ErrGone):
		return pkgError.NotFoundError("instance not found at the gateway")
	case errors.As(err, &status):
		return pkgError.ValidationError(status.Error())
	}
	return err
}
