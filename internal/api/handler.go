package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/orders/internal/domain"
	"github.com/shaiso/orders/internal/ratelimit"
)

// UserStore — хранилище пользователей.
type UserStore interface {
	Create(ctx context.Context, email, hashedPassword string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Exists(ctx context.Context, id int64) (bool, error)
}

// OrderStore — хранилище заказов.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	GetForUser(ctx context.Context, id uuid.UUID, userID int64) (*domain.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, userID int64, status domain.OrderStatus) (*domain.Order, error)
}

// OrderPublisher отправляет new_order после записи заказа.
type OrderPublisher interface {
	PublishNewOrder(ctx context.Context, orderID string) error
}

// OrderCache — кеш заказов по ID.
type OrderCache interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	Set(ctx context.Context, order *domain.Order) error
}

// RateLimiter решает, пропускать ли запрос.
type RateLimiter interface {
	Allow(ctx context.Context, key string, rule ratelimit.Rule) ratelimit.Decision
}

// TokenManager выпускает и проверяет access-токены.
type TokenManager interface {
	Issue(userID int64) (string, error)
	Parse(token string) (int64, error)
}

// PasswordHasher хэширует пароли.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	users     UserStore
	orders    OrderStore
	publisher OrderPublisher
	cache     OrderCache
	limiter   RateLimiter
	tokens    TokenManager
	passwords PasswordHasher
	logger    *slog.Logger
}

// Config — зависимости Handler. Limiter может быть nil: тогда лимиты не применяются.
type Config struct {
	Users     UserStore
	Orders    OrderStore
	Publisher OrderPublisher
	Cache     OrderCache
	Limiter   RateLimiter
	Tokens    TokenManager
	Passwords PasswordHasher
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		users:     cfg.Users,
		orders:    cfg.Orders,
		publisher: cfg.Publisher,
		cache:     cfg.Cache,
		limiter:   cfg.Limiter,
		tokens:    cfg.Tokens,
		passwords: cfg.Passwords,
		logger:    cfg.Logger,
	}
}

// Welcome — приветствие на /health.
// GET /health
func (h *Handler) Welcome(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, "Welcome to Order Management!")
}

// Healthz — liveness probe.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
