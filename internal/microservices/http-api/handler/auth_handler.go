package handler

import (
	"net/http"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/microservices/http-api/dto"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

// AuthHandler mints tokens for local development. Production tokens come from
// the console's identity provider and share the same signing secret.
type AuthHandler struct {
	tokens service.TokenService
	ttl    time.Duration
}

func NewAuthHandler(tokens service.TokenService, ttl time.Duration) *AuthHandler {
	return &AuthHandler{tokens: tokens, ttl: ttl}
}

// IssueToken POST /api/auth/token
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req dto.IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role == "" {
		req.Role = "student"
	}

	token, err := h.tokens.Issue(req.UserID, req.Role, req.Scopes...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.TokenResponse{
		AccessToken: token,
		UserID:      req.UserID,
		ExpiresIn:   int64(h.ttl.Seconds()),
	})
}
