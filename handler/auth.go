package handler

import (
	"net/http"

	"github.com/Anylayerorg/landing-sub001/config"
	"github.com/Anylayerorg/landing-sub001/middleware"
	"github.com/Anylayerorg/landing-sub001/pkg/logger"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	config *config.Config
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{config: cfg}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

// Login checks operator credentials against the bcrypt hashes in config
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user := h.config.FindUser(req.Username)
	if user == nil {
		// Same cost as a real check
		bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		logger.Warn(c.Request.Context(), "operator login failed", "username", req.Username)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	role := user.Role
	if role == "" {
		role = middleware.RoleViewer
	}

	token, expiresAt, err := middleware.GenerateToken(user.Username, role, &h.config.Auth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	logger.Info(logger.WithOperator(c.Request.Context(), user.Username), "operator logged in", "role", role)
	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format("2006-01-02T15:04:05Z07:00"),
		Username:  user.Username,
		Role:      role,
	})
}

// GetCurrentUser returns the logged in operator
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"username": middleware.GetUsername(c),
		"role":     middleware.GetRole(c),
	})
}

// compared against on unknown usernames
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("unknown-operator"), bcrypt.DefaultCost)
