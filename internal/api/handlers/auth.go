package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sessionkeeper/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

// AuthHandler issues access tokens and manages server sessions
type AuthHandler struct {
	users         *UserStore
	sessions      *middleware.SessionManager
	tokens        *middleware.TokenIssuer
	secureCookies bool
	logger        *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(users *UserStore, sessions *middleware.SessionManager, tokens *middleware.TokenIssuer, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:         users,
		sessions:      sessions,
		tokens:        tokens,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

type registerRequest struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register creates an account, starts a session and returns an access token
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	user, err := h.users.Create(req.Firstname, req.Lastname, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Email is already in use",
				"code":  "EMAIL_TAKEN",
			})
			return
		}
		h.logger.Error("Failed to create user",
			"component", "api.auth",
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create user",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	h.logger.Info("User registered",
		"component", "api.auth",
		"user_id", user.ID,
	)
	h.startSession(c, user)
}

// Login authenticates credentials, starts a session and returns an access token
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	user, err := h.users.Authenticate(req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid email or password",
			"code":  "INVALID_CREDENTIALS",
		})
		return
	}

	h.startSession(c, user)
}

// Refresh issues a new access token for a live session cookie
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	_, userID, ok := middleware.GetSessionUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "No active session",
			"code":  "NO_SESSION",
		})
		return
	}

	user, err := h.users.Get(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "No active session",
			"code":  "NO_SESSION",
		})
		return
	}

	h.respondWithToken(c, user)
}

// Logout ends the current session. It succeeds without a session.
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if sessionID, userID, ok := middleware.GetSessionUser(c); ok {
		h.sessions.DeleteSession(sessionID)
		h.logger.Info("Session invalidated",
			"component", "api.auth",
			"user_id", userID,
		)
	}

	h.clearCookie(c)
	c.Status(http.StatusNoContent)
}

// LogoutAllSessions ends every session of the authenticated user
// POST /api/v1/auth/logoutAllSessions
func (h *AuthHandler) LogoutAllSessions(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	removed := h.sessions.DeleteUserSessions(userID)

	h.logger.Info("All sessions invalidated",
		"component", "api.auth",
		"user_id", userID,
		"sessions", removed,
	)

	h.clearCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) startSession(c *gin.Context, user *User) {
	sessionID := h.sessions.CreateSession(user.ID)

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, sessionID, int(h.sessions.Duration().Seconds()), "/", "", h.secureCookies, true)

	h.respondWithToken(c, user)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, user *User) {
	token, err := h.tokens.Issue(user.ID, user.Email)
	if err != nil {
		h.logger.Error("Failed to issue access token",
			"component", "api.auth",
			"user_id", user.ID,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to issue access token",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"accessToken": token})
}

func (h *AuthHandler) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secureCookies, true)
}
