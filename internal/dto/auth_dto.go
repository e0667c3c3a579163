package dto

import (
	"time"

	"github.com/google/uuid"
)

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanumunicode"`
}

// RegisterResponse carries the api key exactly once; it is never shown
// again.
type RegisterResponse struct {
	UserId    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	ApiKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	ApiKey   string `json:"api_key" validate:"required"`
}

type LoginResponse struct {
	UserId   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	// WsTicket is a short-lived token for the websocket handshake,
	// where the Authorization header is unavailable to browsers.
	WsTicket string `json:"ws_ticket"`
}
