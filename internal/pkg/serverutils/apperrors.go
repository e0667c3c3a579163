package serverutils

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ApiError is the service-level error taxonomy. Authorization failures
// are deliberately reported as NOT_FOUND so callers cannot probe for
// the existence of other users' resources.
type ApiError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func NewValidationError(message string) *ApiError {
	return &ApiError{Status: fiber.StatusBadRequest, Code: "VALIDATION_ERROR", Message: message}
}

func NewUnauthorizedError(message string) *ApiError {
	return &ApiError{Status: fiber.StatusUnauthorized, Code: "UNAUTHORIZED", Message: message}
}

func NewNotFoundError(message string) *ApiError {
	return &ApiError{Status: fiber.StatusNotFound, Code: "NOT_FOUND", Message: message}
}

func NewConflictError(message string) *ApiError {
	return &ApiError{Status: fiber.StatusConflict, Code: "CONFLICT", Message: message}
}

func NewBackendError(message string, err error) *ApiError {
	return &ApiError{Status: fiber.StatusBadGateway, Code: "BACKEND_ERROR", Message: message, Err: err}
}

func NewStoreError(message string, err error) *ApiError {
	return &ApiError{Status: fiber.StatusInternalServerError, Code: "STORE_ERROR", Message: message, Err: err}
}
