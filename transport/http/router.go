package http

import (
	"github.com/gin-gonic/gin"
	log "github.com/inconshreveable/log15"
	"github.com/layer-3/xrpauth/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, logger log.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	// Create handlers
	handlers := NewAuthHandlers(authService)

	router.GET("/healthz", handlers.Health)

	// Auth routes
	auth := router.Group("/api/auth")
	{
		auth.POST("/session/validate", handlers.ValidateSession)

		auth.GET("/challenge/outOfBand/create", handlers.CreatePayload)
		auth.GET("/challenge/outOfBand/status", handlers.PayloadStatus)
		auth.GET("/challenge/outOfBand/verify", handlers.VerifyPayload)

		auth.GET("/challenge/extensionB/nonce", handlers.Nonce)
		auth.POST("/challenge/extensionB/verify", handlers.VerifyNonce)

		auth.GET("/challenge/extensionC/challenge", handlers.HashChallenge)
		auth.POST("/challenge/extensionC/verify", handlers.VerifyHash)
	}

	// Protected routes
	protected := auth.Group("")
	protected.Use(AuthMiddleware(authService))
	{
		protected.GET("/me", handlers.Me)
	}

	return router
}
