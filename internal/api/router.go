// Package api is a development authentication server implementing the
// endpoints the session client talks to. Access tokens are short-lived
// HS256 JWTs; the refreshable session is a SESSIONID cookie.
package api

import (
	"log/slog"
	"sessionkeeper/internal/api/handlers"
	"sessionkeeper/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Users         *handlers.UserStore
	Sessions      *middleware.SessionManager
	Tokens        *middleware.TokenIssuer
	SecureCookies bool // set the Secure flag on session cookies
	Logger        *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger, "/health"))
	router.Use(middleware.ContentType())

	// Health check (no auth)
	healthHandler := handlers.NewHealthHandler(config.Sessions)
	router.GET("/health", healthHandler.GetHealth)

	v1 := router.Group("/api/v1")

	// Auth endpoints, session cookie resolved but not required
	authHandler := handlers.NewAuthHandler(
		config.Users,
		config.Sessions,
		config.Tokens,
		config.SecureCookies,
		config.Logger,
	)
	auth := v1.Group("/auth")
	auth.Use(middleware.AuthAPILogging(config.Logger, "/api/v1/auth"))
	auth.Use(middleware.SessionAuth(config.Sessions))
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.POST("/logoutAllSessions", middleware.BearerAuth(config.Tokens), authHandler.LogoutAllSessions)
	}

	// Protected resources
	usersHandler := handlers.NewUsersHandler(config.Users, config.Logger)
	users := v1.Group("/users")
	users.Use(middleware.BearerAuth(config.Tokens))
	{
		users.GET("/me", usersHandler.GetMe)
	}

	return router
}
