package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketflow/assessment"
	"marketflow/assistant"
	"marketflow/auth"
	"marketflow/catalog"
	"marketflow/chat"
	"marketflow/logger"
	"marketflow/notification"
	"marketflow/profile"
	"marketflow/realtime"
	"marketflow/support"
)

type Server struct {
	log           *logger.Logger
	auth          *auth.Service
	profiles      *profile.Service
	catalog       *catalog.Service
	assessments   *assessment.Service
	chat          *chat.Service
	notifications *notification.Service
	support       *support.Service
	assistant     *assistant.Service
	hub           *realtime.Hub
	limiter       *rateLimiter
	corsOrigins   []string
	ping          func(context.Context) error
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log))
	if len(s.corsOrigins) > 0 {
		r.Use(corsMiddleware(s.corsOrigins))
	}

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")
	api.POST("/auth/register", s.handleRegister)
	api.POST("/auth/login", s.handleLogin)

	authed := api.Group("")
	authed.Use(s.requireAuth())

	authed.POST("/products", requireRole(auth.RoleSeller), s.handleCreateProduct)
	authed.GET("/products/:id/assessment", s.handleProductAssessment)

	admin := authed.Group("/assessments")
	admin.Use(requireRole(auth.RoleAdmin))
	admin.GET("", s.handleListAssessments)
	admin.POST("/:productId/transition", s.handleTransition)
	admin.GET("/:productId/notes", s.handleAssessmentNotes)

	conv := authed.Group("/conversations")
	conv.Use(requireRole(auth.RoleBuyer, auth.RoleSeller))
	conv.POST("", s.handleGetOrCreateConversation)
	conv.GET("", s.handleListConversations)
	conv.GET("/:id/messages", s.handleListMessages)
	conv.POST("/:id/messages", s.limiter.middleware(), s.handleSendMessage)
	conv.POST("/:id/read", s.handleMarkRead)

	authed.GET("/notifications", s.handleListNotifications)
	authed.POST("/notifications/:id/read", s.handleReadNotification)

	authed.POST("/support/tickets", s.handleCreateTicket)
	authed.GET("/support/tickets", s.handleListTickets)
	authed.POST("/support/tickets/:id/resolve", s.handleResolveTicket)

	authed.POST("/assistant/reply", s.handleAssistantReply)
	authed.GET("/realtime", s.handleRealtime)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.ping != nil {
		if err := s.ping(c.Request.Context()); err != nil {
			respondError(c, http.StatusServiceUnavailable, "unavailable", err)
			return
		}
	}
	respondOK(c, gin.H{"status": "ok"})
}
