package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/config"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/microservices/http-api/handler"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/microservices/http-api/middleware"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/microservices/http-api/service"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/microservices/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	Config        *config.Config
	Tokens        service.TokenService
	Notifications service.NotificationService
	Hub           *websocket.Hub
	Logger        *slog.Logger
}

// New builds the HTTP surface: the REST pull channel under /api and the
// push channel at /ws
func New(d Deps) *gin.Engine {
	if d.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(d.Config.CORSOrigins)))

	r.GET("/check-conn", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "API is alive"})
	})

	api := r.Group("/api")
	if d.Config.IsDevelopment() {
		api.POST("/auth/token", handler.NewAuthHandler(d.Tokens, d.Config.JWTExpiry).IssueToken)
	}

	authorized := api.Group("")
	authorized.Use(middleware.AuthMiddleware(d.Tokens))
	authorized.Use(middleware.PerUserRateLimit(uint(d.Config.APIRateLimit)))
	handler.NewNotificationHandler(d.Notifications).RegisterRoutes(authorized)

	admin := authorized.Group("/admin", middleware.RequireAdmin())
	admin.GET("/connections", func(c *gin.Context) {
		c.JSON(http.StatusOK, d.Hub.Stats())
	})

	r.GET("/ws", middleware.WebSocketAuth(d.Tokens), websocket.WSHandler(d.Hub))
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowOrigins:     origins,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOrigins = nil
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	}
	return cfg
}
