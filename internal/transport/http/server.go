package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ParwinderBaidwan/PeepPost/internal/auth"
	"github.com/ParwinderBaidwan/PeepPost/internal/config"
	"github.com/ParwinderBaidwan/PeepPost/internal/core"
	"github.com/ParwinderBaidwan/PeepPost/internal/service/conversations"
)

// Deps are the services the HTTP layer exposes.
type Deps struct {
	Auth          *auth.Service
	Conversations *conversations.Service
	Presence      *core.Registry
}

// NewServer builds an HTTP server with REST and WebSocket routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(deps Deps, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(deps, cfg, logger)))

	apiHandlers := NewAPIHandlers(deps.Auth, logger)
	userHandlers := NewUserHandlers(deps.Conversations, logger)
	convHandlers := NewConversationHandlers(deps.Conversations, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	protected := api.Group("")
	protected.Use(AuthMiddleware(deps.Auth, logger))
	protected.GET("/users/me", userHandlers.Me)
	protected.GET("/users/profile/:query", userHandlers.Profile)
	protected.GET("/conversations", convHandlers.ListConversations)
	protected.GET("/conversations/resolve", convHandlers.Resolve)
	protected.GET("/conversations/:id/messages", convHandlers.History)
	protected.POST("/messages", convHandlers.SendMessage)
	protected.GET("/presence", convHandlers.Presence)

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
