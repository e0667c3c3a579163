package controller

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"codeassist-be/internal/dto"
	"codeassist-be/internal/pkg/logger"
	"codeassist-be/internal/pkg/serverutils"
	"codeassist-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/valyala/fasthttp"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	CreateSession(ctx *fiber.Ctx) error
	GetAllSessions(ctx *fiber.Ctx) error
	RenameSession(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	GetChatHistory(ctx *fiber.Ctx) error
	UploadFile(ctx *fiber.Ctx) error
	GetFiles(ctx *fiber.Ctx) error
	DeleteFile(ctx *fiber.Ctx) error
	StreamChat(ctx *fiber.Ctx) error
	CancelStream(ctx *fiber.Ctx) error
}

type chatController struct {
	sessionService    service.ISessionService
	fileService       service.IFileService
	generationService service.IGenerationService
	authService       service.IAuthService
	authCache         *cache.Cache
	logger            logger.ILogger
}

func NewChatController(
	sessionService service.ISessionService,
	fileService service.IFileService,
	generationService service.IGenerationService,
	authService service.IAuthService,
	authCache *cache.Cache,
	log logger.ILogger,
) IChatController {
	return &chatController{
		sessionService:    sessionService,
		fileService:       fileService,
		generationService: generationService,
		authService:       authService,
		authCache:         authCache,
		logger:            log,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.ApiKeyMiddleware(c.authService, c.authCache))

	h.Post("/session", c.CreateSession)
	h.Get("/sessions", c.GetAllSessions)
	h.Patch("/session/:id", c.RenameSession)
	h.Delete("/session/:id", c.DeleteSession)
	h.Get("/session/:id/messages", c.GetChatHistory)

	h.Post("/session/:id/files", c.UploadFile)
	h.Get("/session/:id/files", c.GetFiles)
	h.Delete("/session/:id/files/:filename", c.DeleteFile)

	h.Post("/chat/stream", c.StreamChat)
	h.Delete("/chat/stream/:sessionId", c.CancelStream)
}

func currentUserId(ctx *fiber.Ctx) uuid.UUID {
	userIdStr, _ := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)
	return userId
}

func sessionIdParam(ctx *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params(name))
	if err != nil {
		return uuid.Nil, serverutils.NewValidationError("invalid session id")
	}
	return id, nil
}

func (c *chatController) CreateSession(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)

	var req dto.CreateChatSessionRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return serverutils.NewValidationError("invalid request body")
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.sessionService.CreateSession(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create session", res))
}

func (c *chatController) GetAllSessions(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)

	res, err := c.sessionService.GetAllSessions(ctx.Context(), userId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get sessions", res))
}

func (c *chatController) RenameSession(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)
	sessionId, err := sessionIdParam(ctx, "id")
	if err != nil {
		return err
	}

	var req dto.RenameChatSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewValidationError("invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.sessionService.RenameSession(ctx.Context(), userId, sessionId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success rename session", res))
}

func (c *chatController) DeleteSession(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)
	sessionId, err := sessionIdParam(ctx, "id")
	if err != nil {
		return err
	}

	if err := c.sessionService.DeleteSession(ctx.Context(), userId, sessionId); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete session", nil))
}

func (c *chatController) GetChatHistory(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)
	sessionId, err := sessionIdParam(ctx, "id")
	if err != nil {
		return err
	}

	limit := ctx.QueryInt("limit", 0)
	offset := ctx.QueryInt("offset", 0)
	if limit < 0 || offset < 0 {
		return serverutils.NewValidationError("limit and offset must not be negative")
	}

	res, err := c.sessionService.GetChatHistory(ctx.Context(), userId, sessionId, limit, offset)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get chat history", res))
}

func (c *chatController) UploadFile(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)
	sessionId, err := sessionIdParam(ctx, "id")
	if err != nil {
		return err
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return serverutils.NewValidationError("multipart field 'file' is required")
	}

	f, err := fileHeader.Open()
	if err != nil {
		return serverutils.NewValidationError("unreadable upload")
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return serverutils.NewValidationError("unreadable upload")
	}

	res, err := c.fileService.UploadFile(ctx.Context(), userId, sessionId, fileHeader.Filename, content)
	if err != nil {
		return err
	}

	status := fiber.StatusCreated
	if res.Replaced {
		status = fiber.StatusOK
	}
	return ctx.Status(status).JSON(serverutils.SuccessResponse("Success upload file", res))
}

func (c *chatController) GetFiles(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)
	sessionId, err := sessionIdParam(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.fileService.GetFiles(ctx.Context(), userId, sessionId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get files", res))
}

func (c *chatController) DeleteFile(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)
	sessionId, err := sessionIdParam(ctx, "id")
	if err != nil {
		return err
	}

	if err := c.fileService.DeleteFile(ctx.Context(), userId, sessionId, ctx.Params("filename")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete file", nil))
}

// StreamChat starts a generation and relays its events as SSE frames.
// All rejections (validation, ownership, busy session) happen before
// the stream opens, so they surface as normal JSON errors.
func (c *chatController) StreamChat(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)

	var req dto.StreamChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewValidationError("invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	stream, err := c.generationService.StartGeneration(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		for ev := range stream.Events {
			data, merr := json.Marshal(ev)
			if merr != nil {
				continue
			}
			if _, werr := fmt.Fprintf(w, "data: %s\n\n", data); werr == nil {
				werr = w.Flush()
				if werr == nil {
					continue
				}
			}
			// Client went away. Cancel and keep draining so the engine
			// can finish persisting and close the channel.
			c.logger.Info("ChatController", "SSE client disconnected", map[string]interface{}{
				"session_id": req.SessionId.String(),
			})
			stream.Cancel()
			for range stream.Events {
			}
			return
		}
	}))
	return nil
}

func (c *chatController) CancelStream(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)
	sessionId, err := sessionIdParam(ctx, "sessionId")
	if err != nil {
		return err
	}

	if err := c.generationService.CancelGeneration(ctx.Context(), userId, sessionId); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Cancellation requested", nil))
}
