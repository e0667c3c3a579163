package handler

import (
	"codeassist-be/internal/pkg/logger"
	"codeassist-be/internal/service"
	internalWS "codeassist-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// NotificationHandler upgrades websocket connections for out-of-band
// notices (generation finished, session renamed). Handshake auth uses
// the short-lived ticket issued at login, because browsers cannot set
// the Authorization header on a websocket upgrade.
type NotificationHandler struct {
	authService service.IAuthService
	hub         *internalWS.Hub
	logger      logger.ILogger
}

func NewNotificationHandler(authService service.IAuthService, hub *internalWS.Hub, log logger.ILogger) *NotificationHandler {
	return &NotificationHandler{
		authService: authService,
		hub:         hub,
		logger:      log,
	}
}

// ServeWs handles websocket requests from the peer.
func (h *NotificationHandler) ServeWs(c *fiber.Ctx) error {
	// Query param first (browser standard), Authorization header as a
	// fallback for tooling.
	ticket := c.Query("ticket")
	if ticket == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			ticket = authHeader[7:]
		}
	}
	if ticket == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing ticket (query 'ticket' or Authorization header)"})
	}

	userID, err := h.authService.VerifyWsTicket(ticket)
	if err != nil {
		h.logger.Warn("NotificationHandler", "Invalid ticket in WS handshake", map[string]interface{}{"error": err})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid ticket"})
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("NotificationHandler", "Starting WebSocket session", map[string]interface{}{"user_id": userID})
			internalWS.ServeWs(h.hub, conn, userID)
			h.logger.Info("NotificationHandler", "WebSocket session ended", map[string]interface{}{"user_id": userID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// RegisterRoutes registers the websocket route.
func (h *NotificationHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws", h.ServeWs)
}
