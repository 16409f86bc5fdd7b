package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vitalscope/vitalscope-business/internal/config"
	"github.com/vitalscope/vitalscope-business/internal/security"
)

// AuthHandler handles admin authentication endpoints.
type AuthHandler struct {
	authCfg config.AuthConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(authCfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{authCfg: authCfg}
}

// loginRequest defines the request body for admin login.
type loginRequest struct {
	AdminID string `json:"admin_id"`
	Secret  string `json:"secret"`
}

// Login checks the shared admin secret and issues an admin JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	adminID := strings.TrimSpace(body.AdminID)
	secret := strings.TrimSpace(body.Secret)
	if adminID == "" || secret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "admin_id and secret are required"})
		return
	}

	if !h.secretValid(secret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	expiry := h.authCfg.TokenExpiry.Std()
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	token, errToken := security.GenerateAdminToken(h.authCfg.JWTSecret, adminID, expiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// secretValid checks the shared secret, preferring the bcrypt hash form.
func (h *AuthHandler) secretValid(secret string) bool {
	if h.authCfg.AdminSecretHash != "" {
		return security.CheckPassword(h.authCfg.AdminSecretHash, secret)
	}
	if h.authCfg.AdminSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(h.authCfg.AdminSecret), []byte(secret)) == 1
}
