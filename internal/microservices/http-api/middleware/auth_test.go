package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/microservices/http-api/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokens() service.TokenService {
	return service.NewTokenService("0123456789abcdef0123456789abcdef", time.Hour)
}

func setupRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := append(mw, func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("userID"))
	})
	router.GET("/protected", handlers...)
	return router
}

func get(router *gin.Engine, path, authHeader string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	tokens := newTestTokens()
	valid, err := tokens.Issue("u1", "student")
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		code   int
	}{
		{"valid bearer", "/protected", "Bearer " + valid, http.StatusOK},
		{"missing header", "/protected", "", http.StatusUnauthorized},
		{"wrong scheme", "/protected", "Basic " + valid, http.StatusUnauthorized},
		{"garbage token", "/protected", "Bearer nope", http.StatusUnauthorized},
		{"query token not accepted", "/protected?token=" + valid, "", http.StatusUnauthorized},
	}
	router := setupRouter(AuthMiddleware(tokens))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(router, tt.path, tt.header)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, "u1", w.Body.String())
			}
		})
	}
}

func TestWebSocketAuth_AcceptsQueryToken(t *testing.T) {
	tokens := newTestTokens()
	valid, err := tokens.Issue("u2", "teacher")
	require.NoError(t, err)
	router := setupRouter(WebSocketAuth(tokens))

	w := get(router, "/protected?token="+valid, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u2", w.Body.String())
}

func TestRequireScopes(t *testing.T) {
	tokens := newTestTokens()
	reader, _ := tokens.Issue("u1", "student")
	writer, _ := tokens.Issue("job", "admin", service.ScopeNotificationsWrite)
	wildcard, _ := tokens.Issue("ops", "admin", "notifications:*")

	router := setupRouter(AuthMiddleware(tokens), RequireScopes(service.ScopeNotificationsWrite))

	assert.Equal(t, http.StatusForbidden, get(router, "/protected", "Bearer "+reader).Code)
	assert.Equal(t, http.StatusOK, get(router, "/protected", "Bearer "+writer).Code)
	assert.Equal(t, http.StatusOK, get(router, "/protected", "Bearer "+wildcard).Code)
}

func TestRequireAdmin(t *testing.T) {
	tokens := newTestTokens()
	student, _ := tokens.Issue("u1", "student")
	admin, _ := tokens.Issue("a1", "admin")
	router := setupRouter(AuthMiddleware(tokens), RequireAdmin())

	assert.Equal(t, http.StatusForbidden, get(router, "/protected", "Bearer "+student).Code)
	assert.Equal(t, http.StatusOK, get(router, "/protected", "Bearer "+admin).Code)
}

func TestPerUserRateLimit(t *testing.T) {
	tokens := newTestTokens()
	first, _ := tokens.Issue("u1", "student")
	second, _ := tokens.Issue("u2", "student")
	router := setupRouter(AuthMiddleware(tokens), PerUserRateLimit(2))

	assert.Equal(t, http.StatusOK, get(router, "/protected", "Bearer "+first).Code)
	assert.Equal(t, http.StatusOK, get(router, "/protected", "Bearer "+first).Code)
	limited := get(router, "/protected", "Bearer "+first)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	// buckets are per user
	assert.Equal(t, http.StatusOK, get(router, "/protected", "Bearer "+second).Code)
}
