package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sessionkeeper/internal/api/middleware"
	"sessionkeeper/internal/idgen"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email is already in use")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// User is a registered account
type User struct {
	ID           string
	Firstname    string
	Lastname     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// UserStore keeps accounts in memory
type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]*User
	cost    int
}

// NewUserStore creates an empty store hashing passwords with the given
// bcrypt cost. Zero uses bcrypt.DefaultCost.
func NewUserStore(cost int) *UserStore {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &UserStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]*User),
		cost:    cost,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create registers a new account
func (s *UserStore) Create(firstname, lastname, email, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email = normalizeEmail(email)
	if _, exists := s.byEmail[email]; exists {
		return nil, ErrEmailTaken
	}

	user := &User{
		ID:           idgen.NewUser(),
		Firstname:    firstname,
		Lastname:     lastname,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	s.byID[user.ID] = user
	s.byEmail[email] = user
	return user, nil
}

// Authenticate checks email and password
func (s *UserStore) Authenticate(email, password string) (*User, error) {
	s.mu.RLock()
	user, exists := s.byEmail[normalizeEmail(email)]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns a user by ID
func (s *UserStore) Get(id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.byID[id]
	if !exists {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UsersHandler serves the current user's profile
type UsersHandler struct {
	users  *UserStore
	logger *slog.Logger
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(users *UserStore, logger *slog.Logger) *UsersHandler {
	return &UsersHandler{
		users:  users,
		logger: logger,
	}
}

// GetMe returns the authenticated user
// GET /api/v1/users/me
func (h *UsersHandler) GetMe(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	user, err := h.users.Get(userID)
	if err != nil {
		h.logger.Warn("Token for unknown user",
			"component", "api.users",
			"user_id", userID,
		)
		c.JSON(http.StatusNotFound, gin.H{
			"error": "User not found",
			"code":  "USER_NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        user.ID,
		"firstname": user.Firstname,
		"lastname":  user.Lastname,
		"email":     user.Email,
		"createdAt": user.CreatedAt.Format(time.RFC3339),
	})
}
