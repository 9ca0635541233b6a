package controller

import (
	"shopmate-be/internal/dto"
	"shopmate-be/internal/pkg/serverutils"
	"shopmate-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	SendChat(ctx *fiber.Ctx) error
	GetSessionState(ctx *fiber.Ctx) error
	GetTranscript(ctx *fiber.Ctx) error
	ResetSession(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
}

func NewChatController(chatService service.IChatService) IChatController {
	return &chatController{
		chatService: chatService,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("/message", c.SendChat)
	h.Get("/session/:id", c.GetSessionState)
	h.Get("/session/:id/transcript", c.GetTranscript)
	h.Delete("/session/:id", c.ResetSession)
}

func (c *chatController) SendChat(ctx *fiber.Ctx) error {
	userId, _ := ctx.Locals("user_id").(string)
	if userId == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing user identity")
	}

	var req dto.SendChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.SendChat(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success send chat", res))
}

func (c *chatController) GetSessionState(ctx *fiber.Ctx) error {
	userId, _ := ctx.Locals("user_id").(string)
	if userId == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing user identity")
	}

	sessionId := ctx.Params("id")

	res, err := c.chatService.GetSessionState(ctx.Context(), userId, sessionId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Session state", res))
}

func (c *chatController) GetTranscript(ctx *fiber.Ctx) error {
	userId, _ := ctx.Locals("user_id").(string)
	if userId == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing user identity")
	}

	sessionId := ctx.Params("id")
	limit := ctx.QueryInt("limit", 50)
	offset := ctx.QueryInt("offset", 0)

	res, err := c.chatService.GetTranscript(ctx.Context(), userId, sessionId, limit, offset)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Session transcript", res))
}

func (c *chatController) ResetSession(ctx *fiber.Ctx) error {
	userId, _ := ctx.Locals("user_id").(string)
	if userId == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing user identity")
	}

	sessionId := ctx.Params("id")

	if err := c.chatService.ResetSession(ctx.Context(), userId, sessionId); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Session reset", nil))
}
