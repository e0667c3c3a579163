package serverutils

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ApiKeyResolver turns an opaque access credential into the owning
// user's id. Implemented by the auth service.
type ApiKeyResolver interface {
	ResolveApiKey(ctx context.Context, apiKey string) (uuid.UUID, error)
}

// NewAuthCache builds the api-key lookup cache used by the middleware.
// Keys are immutable once issued, so a short TTL only bounds memory.
func NewAuthCache() *cache.Cache {
	return cache.New(5*time.Minute, 10*time.Minute)
}

// ApiKeyMiddleware authenticates requests via "Authorization: Bearer
// <api_key>" and stores the resolved user id in ctx.Locals("user_id").
func ApiKeyMiddleware(resolver ApiKeyResolver, authCache *cache.Cache) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		authHeader := ctx.Get("Authorization")
		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Missing API key"})
		}
		apiKey := authHeader[7:]

		if cached, found := authCache.Get(apiKey); found {
			ctx.Locals("user_id", cached.(string))
			return ctx.Next()
		}

		userId, err := resolver.ResolveApiKey(ctx.Context(), apiKey)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid API key"})
		}

		authCache.Set(apiKey, userId.String(), cache.DefaultExpiration)
		ctx.Locals("user_id", userId.String())
		return ctx.Next()
	}
}
