package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tablehub/api/internal/config"
	"tablehub/api/internal/middleware"
	"tablehub/api/internal/models"
	"tablehub/api/internal/repository"
	"tablehub/api/internal/service"
	"tablehub/api/internal/storage"
)

type HandlerSet struct {
	log           zerolog.Logger
	cfg           *config.AppConfig
	authService   *service.AuthService
	avatarService *service.AvatarService
	db            *pgxpool.Pool
	cache         *redis.Client
	users         *repository.UserRepository
	sessions      *repository.SessionRepository
	restaurants   *repository.RestaurantRepository
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, store *storage.ObjectStore, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	restaurantRepo := repository.NewRestaurantRepository(db)
	auth := service.NewAuthService(userRepo, sessionRepo, restaurantRepo, cache, cfg, log)
	avatar := service.NewAvatarService(userRepo, store, cfg, log)

	return HandlerSet{
		log:           log,
		cfg:           cfg,
		authService:   auth,
		avatarService: avatar,
		db:            db,
		cache:         cache,
		users:         userRepo,
		sessions:      sessionRepo,
		restaurants:   restaurantRepo,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/signup", h.Signup)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)

		protected := v1.Group("/auth")
		protected.Use(middleware.Auth(h.cfg, h.users))
		protected.GET("/me", h.Me)
		protected.GET("/accounts", h.ListAccounts)

		// Switch-account mints credentials for another identity, so on
		// top of the role gate the request itself must be signed and
		// replay-protected.
		privileged := v1.Group("/auth")
		privileged.Use(
			middleware.Auth(h.cfg, h.users),
			middleware.RequireRoles(models.UserRoleAdmin, models.UserRolePlatformAdmin),
			middleware.Signature(h.cfg, h.cache),
		)
		privileged.POST("/switch-account", h.SwitchAccount)
	}

	profile := v1.Group("/profile")
	profile.Use(middleware.Auth(h.cfg, h.users))
	profile.PUT("/avatar", h.SetAvatar)

	admin := v1.Group("/admin")
	admin.Use(
		middleware.Auth(h.cfg, h.users),
		middleware.RequireRoles(models.UserRoleAdmin, models.UserRolePlatformAdmin),
	)
	admin.POST("/accounts", h.AdminCreateAccount)
	admin.PATCH("/accounts/:id/active", h.AdminSetAccountActive)
}
