package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"codeassist-be/internal/config"
	"codeassist-be/internal/dto"
	"codeassist-be/internal/entity"
	"codeassist-be/internal/pkg/serverutils"
	"codeassist-be/internal/repository/specification"
	"codeassist-be/internal/repository/unitofwork"
	"codeassist-be/pkg/events"
	pkgNats "codeassist-be/pkg/nats"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type IAuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error)
	ResolveApiKey(ctx context.Context, apiKey string) (uuid.UUID, error)
	VerifyWsTicket(ticket string) (uuid.UUID, error)
}

type authService struct {
	uowFactory     unitofwork.RepositoryFactory
	cfg            *config.Config
	eventPublisher *pkgNats.Publisher
}

func NewAuthService(uowFactory unitofwork.RepositoryFactory, cfg *config.Config, eventPublisher *pkgNats.Publisher) IAuthService {
	return &authService{
		uowFactory:     uowFactory,
		cfg:            cfg,
		eventPublisher: eventPublisher,
	}
}

// generateApiKey returns 32 lowercase hex characters from a CSPRNG.
func generateApiKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	existing, err := uow.UserRepository().FindOne(ctx, specification.ByUsername{Username: req.Username})
	if err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}
	if existing != nil {
		return nil, serverutils.NewConflictError("username already taken")
	}

	apiKey, err := generateApiKey()
	if err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}

	user := &entity.User{
		Id:        uuid.New(),
		Username:  req.Username,
		ApiKey:    apiKey,
		CreatedAt: time.Now(),
	}

	if err := uow.Begin(ctx); err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}
	defer uow.Rollback()

	if err := uow.UserRepository().Create(ctx, user); err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}

	if s.eventPublisher != nil {
		go func() {
			pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.eventPublisher.Publish(pubCtx, events.BaseEvent{
				Type:       "USER_REGISTERED",
				Data:       map[string]interface{}{"user_id": user.Id.String(), "username": user.Username},
				OccurredAt: time.Now(),
			})
		}()
	}

	return &dto.RegisterResponse{
		UserId:    user.Id,
		Username:  user.Username,
		ApiKey:    user.ApiKey,
		CreatedAt: user.CreatedAt,
	}, nil
}

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	user, err := uow.UserRepository().FindOne(ctx, specification.ByUsername{Username: req.Username})
	if err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}
	// Same error for unknown username and wrong key.
	if user == nil || subtle.ConstantTimeCompare([]byte(user.ApiKey), []byte(req.ApiKey)) != 1 {
		return nil, serverutils.NewUnauthorizedError("invalid credentials")
	}

	ticket, err := s.issueWsTicket(user.Id)
	if err != nil {
		return nil, serverutils.NewStoreError("storage failure", err)
	}

	return &dto.LoginResponse{
		UserId:   user.Id,
		Username: user.Username,
		WsTicket: ticket,
	}, nil
}

// ResolveApiKey maps a bearer api key to its owning user. Used by the
// auth middleware; results are cached there, not here.
func (s *authService) ResolveApiKey(ctx context.Context, apiKey string) (uuid.UUID, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	user, err := uow.UserRepository().FindOne(ctx, specification.ByApiKey{ApiKey: apiKey})
	if err != nil {
		return uuid.Nil, serverutils.NewStoreError("storage failure", err)
	}
	if user == nil {
		return uuid.Nil, serverutils.NewUnauthorizedError("invalid api key")
	}
	return user.Id, nil
}

func (s *authService) issueWsTicket(userId uuid.UUID) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userId.String(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.App.JwtSecret))
}

// VerifyWsTicket validates a websocket handshake ticket and returns the
// user it was issued to.
func (s *authService) VerifyWsTicket(ticket string) (uuid.UUID, error) {
	parsed, err := jwt.ParseWithClaims(ticket, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.cfg.App.JwtSecret), nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, serverutils.NewUnauthorizedError("invalid ticket")
	}
	claims := parsed.Claims.(*jwt.RegisteredClaims)
	userId, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, serverutils.NewUnauthorizedError("invalid ticket")
	}
	return userId, nil
}
