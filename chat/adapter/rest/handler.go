package rest

import (
	"errors"
	"time"

	"github.com/AzielCF/az-engage/chat/application"
	"github.com/AzielCF/az-engage/chat/domain"
	"github.com/AzielCF/az-engage/infrastructure/gateway"
	instancesDomain "github.com/AzielCF/az-engage/instances/domain"
	pkgError "github.com/AzielCF/az-engage/pkg/error"
	"github.com/AzielCF/az-engage/pkg/utils"
	"github.com/AzielCF/az-engage/ui/rest/middleware"
	"github.com/AzielCF/az-engage/validations"
	"github.com/gofiber/fiber/v2"
)

type ChatHandler struct {
	service *application.ChatService
}

func NewChatHandler(service *application.ChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

func (h *ChatHandler) RegisterRoutes(router fiber.Router) {
	g := router.Group("/chat")

	conv := g.Group("/conversations")
	conv.Get("/", h.ListConversations)
	conv.Get("/:id", h.GetConversation)
	conv.Get("/:id/messages", h.ListMessages)
	conv.Post("/:id/messages", h.SendMessage)
	conv.Post("/:id/mark-read", h.MarkAsRead)
	conv.Post("/:id/transfer", h.Transfer)
	conv.Post("/:id/assign", h.Assign)
	conv.Post("/:id/close", h.Close)
	conv.Post("/:id/refresh-info", h.RefreshInfo)
	conv.Get("/:id/participants", h.Participants)
	conv.Post("/:id/attachments/upload-url", h.UploadURL)
	conv.Post("/:id/attachments/confirm-upload", h.ConfirmUpload)

	g.Delete("/messages/:id", h.DeleteMessage)
	g.Get("/messages/:id/reactions", h.ListReactions)
	g.Post("/messages/:id/reactions", h.React)

	g.Get("/attachments/:id/file", h.AttachmentFile)

	dept := g.Group("/departments")
	dept.Get("/", h.ListDepartments)
	dept.Post("/", h.CreateDepartment)
	dept.Get("/:id", h.GetDepartment)
	dept.Put("/:id", h.UpdateDepartment)
	dept.Delete("/:id", h.DeleteDepartment)
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	filter := domain.ConversationFilter{
		Status:       domain.ConversationStatus(c.Query("status")),
		DepartmentID: c.Query("department_id"),
		Inbox:        c.QueryBool("inbox"),
		AssignedTo:   c.Query("assigned_to"),
		Search:       c.Query("search"),
		Limit:        c.QueryInt("limit", 50),
		Offset:       c.QueryInt("offset", 0),
	}
	switch filter.Status {
	case "", domain.ConversationPending, domain.ConversationOpen, domain.ConversationClosed:
	default:
		return utils.Fail(c, pkgError.ValidationError("status: must be pending, open or closed"))
	}
	list, err := h.service.ListConversations(c.UserContext(), middleware.Tenant(c), filter)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get conversations", list)
}

func (h *ChatHandler) GetConversation(c *fiber.Ctx) error {
	conv, err := h.service.GetConversation(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get conversation", conv)
}

func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return utils.Fail(c, pkgError.ValidationError("before: must be an RFC3339 timestamp"))
		}
		before = &t
	}
	msgs, err := h.service.ListMessages(c.UserContext(), middleware.Tenant(c), c.Params("id"), c.QueryInt("limit", 0), before)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get messages", msgs)
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	var req validations.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid request body"))
	}
	if err := validations.ValidateSendMessage(c.UserContext(), req); err != nil {
		return utils.Fail(c, err)
	}
	msg, err := h.service.SendText(c.UserContext(), middleware.Tenant(c), middleware.UserID(c), c.Params("id"), req.Content, req.ReplyTo)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Created(c, "Message queued", msg)
}

func (h *ChatHandler) MarkAsRead(c *fiber.Ctx) error {
	n, err := h.service.MarkAsRead(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Conversation marked as read", fiber.Map{"marked": n})
}

func (h *ChatHandler) Transfer(c *fiber.Ctx) error {
	var req application.TransferInput
	if err := c.BodyParser(&req); err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid request body"))
	}
	if req.DepartmentID == nil && req.AssignedUserID == nil {
		return utils.Fail(c, pkgError.ValidationError("department_id or assigned_user_id is required"))
	}
	conv, err := h.service.Transfer(c.UserContext(), middleware.Tenant(c), middleware.UserID(c), c.Params("id"), req)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Conversation transferred", conv)
}

func (h *ChatHandler) Assign(c *fiber.Ctx) error {
	var req struct {
		AssignedUserID *string `json:"assigned_user_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid request body"))
	}
	if req.AssignedUserID == nil {
		if me := middleware.UserID(c); me != "" {
			req.AssignedUserID = &me
		}
	}
	conv, err := h.service.Assign(c.UserContext(), middleware.Tenant(c), c.Params("id"), req.AssignedUserID)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Conversation assigned", conv)
}

func (h *ChatHandler) Close(c *fiber.Ctx) error {
	conv, err := h.service.Close(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Conversation closed", conv)
}

func (h *ChatHandler) RefreshInfo(c *fiber.Ctx) error {
	res, err := h.service.RefreshInfo(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Conversation info", res)
}

func (h *ChatHandler) Participants(c *fiber.Ctx) error {
	views, err := h.service.Participants(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	if views == nil {
		views = []application.ParticipantView{}
	}
	return utils.Ok(c, "Success get participants", views)
}

func (h *ChatHandler) UploadURL(c *fiber.Ctx) error {
	var req application.UploadRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid request body"))
	}
	if err := validations.ValidateUploadRequest(c.UserContext(), req); err != nil {
		return utils.Fail(c, err)
	}
	tenant := middleware.Tenant(c)
	if _, err := h.service.GetConversation(c.UserContext(), tenant, c.Params("id")); err != nil {
		return utils.Fail(c, mapError(err))
	}
	ticket, err := h.service.RequestUpload(c.UserContext(), tenant, req)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Upload URL generated", ticket)
}

func (h *ChatHandler) ConfirmUpload(c *fiber.Ctx) error {
	var req application.ConfirmUploadInput
	if err := c.BodyParser(&req); err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid request body"))
	}
	if err := validations.ValidateConfirmUpload(c.UserContext(), req); err != nil {
		return utils.Fail(c, err)
	}
	msg, err := h.service.ConfirmUpload(c.UserContext(), middleware.Tenant(c), middleware.UserID(c), c.Params("id"), req)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Created(c, "Attachment queued", msg)
}

func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	if err := h.service.DeleteMessage(c.UserContext(), middleware.Tenant(c), c.Params("id")); err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Message deleted", nil)
}

func (h *ChatHandler) ListReactions(c *fiber.Ctx) error {
	list, err := h.service.Reactions(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get reactions", list)
}

func (h *ChatHandler) React(c *fiber.Ctx) error {
	var req validations.ReactionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid request body"))
	}
	if err := validations.ValidateReaction(c.UserContext(), req); err != nil {
		return utils.Fail(c, err)
	}
	list, err := h.service.React(c.UserContext(), middleware.Tenant(c), middleware.UserID(c), c.Params("id"), req.Emoji)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Reaction updated", list)
}

// AttachmentFile redirects to a fresh presigned GET so stored links never expire.
func (h *ChatHandler) AttachmentFile(c *fiber.Ctx) error {
	url, err := h.service.AttachmentURL(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return c.Redirect(url, fiber.StatusFound)
}

func (h *ChatHandler) ListDepartments(c *fiber.Ctx) error {
	list, err := h.service.ListDepartments(c.UserContext(), middleware.Tenant(c))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get departments", list)
}

func (h *ChatHandler) CreateDepartment(c *fiber.Ctx) error {
	var req application.DepartmentInput
	if err := c.BodyParser(&req); err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid request body"))
	}
	if err := validations.ValidateDepartment(c.UserContext(), req); err != nil {
		return utils.Fail(c, err)
	}
	d, err := h.service.CreateDepartment(c.UserContext(), middleware.Tenant(c), req)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Created(c, "Department created", d)
}

func (h *ChatHandler) GetDepartment(c *fiber.Ctx) error {
	d, err := h.service.GetDepartment(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Success get department", d)
}

func (h *ChatHandler) UpdateDepartment(c *fiber.Ctx) error {
	var req application.DepartmentInput
	if err := c.BodyParser(&req); err != nil {
		return utils.Fail(c, pkgError.ValidationError("invalid request body"))
	}
	d, err := h.service.UpdateDepartment(c.UserContext(), middleware.Tenant(c), c.Params("id"), req)
	if err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Department updated", d)
}

func (h *ChatHandler) DeleteDepartment(c *fiber.Ctx) error {
	if err := h.service.DeleteDepartment(c.UserContext(), middleware.Tenant(c), c.Params("id")); err != nil {
		return utils.Fail(c, mapError(err))
	}
	return utils.Ok(c, "Department deleted", nil)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, domain.ErrConversationNotFound), errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrAttachmentNotFound), errors.Is(err, domain.ErrDepartmentNotFound):
		return pkgError.NotFoundError(err.Error())
	case errors.Is(err, domain.ErrInvalidEmoji), errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrFileTooLarge), errors.Is(err, domain.ErrMimeNotAllowed):
		return pkgError.ValidationError(err.Error())
	case errors.Is(err, domain.ErrForeignKey):
		return pkgError.ForbiddenError(err.Error())
	case errors.Is(err, domain.ErrNoGatewayID), errors.Is(err, domain.ErrNotDeletable),
		errors.Is(err, instancesDomain.ErrNoActiveInstance), errors.Is(err, instancesDomain.ErrInstanceInactive):
		return pkgError.ConflictError(err.Error())
	case errors.Is(err, gateway.ErrGone):
		return pkgError.NotFoundError("resource no longer exists at the gateway")
	case gateway.IsTransient(err):
		return pkgError.InternalServerError("gateway unavailable: " + err.Error())
	}
	return err
}
