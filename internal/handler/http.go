package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mintoons-server/internal/models"
	"mintoons-server/internal/service"
	"mintoons-server/internal/ws"
)

// Handler owns the HTTP surface: it binds requests, delegates to the
// services and maps their errors to responses.
type Handler struct {
	authService    service.AuthService
	userService    service.UserService
	storyService   service.StoryService
	commentService service.CommentService
	assistService  service.AssistService
	subService     service.SubscriptionService
	notifService   service.NotificationService
	adminService   service.AdminService
	wsHandler      *ws.Handler
	logger         *zap.Logger
}

// NewHandler wires the handler to all application services.
func NewHandler(
	authService service.AuthService,
	userService service.UserService,
	storyService service.StoryService,
	commentService service.CommentService,
	assistService service.AssistService,
	subService service.SubscriptionService,
	notifService service.NotificationService,
	adminService service.AdminService,
	wsHandler *ws.Handler,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		authService:    authService,
		userService:    userService,
		storyService:   storyService,
		commentService: commentService,
		assistService:  assistService,
		subService:     subService,
		notifService:   notifService,
		adminService:   adminService,
		wsHandler:      wsHandler,
		logger:         logger.Named("Handler"),
	}
}

// RegisterRoutes mounts all API routes. authRateLimit is applied to the
// unauthenticated endpoints an attacker could hammer.
func (h *Handler) RegisterRoutes(router *gin.Engine, authRateLimit gin.HandlerFunc) {
	api := router.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/register", authRateLimit, h.register)
		auth.POST("/login", authRateLimit, h.login)
		auth.POST("/refresh", h.refresh)
		auth.POST("/logout", h.AuthMiddleware(), h.logout)
		auth.POST("/password/change", h.AuthMiddleware(), h.changePassword)
		auth.POST("/password/forgot", authRateLimit, h.forgotPassword)
		auth.POST("/password/reset", authRateLimit, h.resetPassword)
	}

	// Parents act on mailed tokens, they have no account of their own.
	consent := api.Group("/consent")
	{
		consent.POST("/grant", authRateLimit, h.grantConsent)
		consent.POST("/revoke", authRateLimit, h.revokeConsent)
	}

	// Stripe signs its webhook deliveries, no session auth here.
	api.POST("/webhooks/stripe", h.stripeWebhook)

	api.GET("/ws", h.wsHandler.ServeWS)

	authed := api.Group("")
	authed.Use(h.AuthMiddleware())
	{
		me := authed.Group("/users/me")
		{
			me.GET("", h.getProfile)
			me.PATCH("", h.updateProfile)
			me.DELETE("", h.deleteAccount)
		}

		stories := authed.Group("/stories")
		{
			stories.POST("", h.createStory)
			stories.GET("", h.listPublishedStories)
			stories.GET("/mine", h.listOwnStories)
			stories.GET("/review", h.RequireRoles(models.RoleMentor, models.RoleAdmin), h.listReviewQueue)
			stories.GET("/:id", h.getStory)
			stories.PUT("/:id", h.updateStory)
			stories.DELETE("/:id", h.deleteStory)
			stories.POST("/:id/submit", h.submitStory)
			stories.POST("/:id/approve", h.RequireRoles(models.RoleMentor, models.RoleAdmin), h.approveStory)
			stories.POST("/:id/request-changes", h.RequireRoles(models.RoleMentor, models.RoleAdmin), h.requestChanges)
			stories.POST("/:id/like", h.likeStory)
			stories.DELETE("/:id/like", h.unlikeStory)
			stories.GET("/:id/export", h.exportStory)
			stories.GET("/:id/comments", h.listComments)
			stories.POST("/:id/comments", h.RequireRoles(models.RoleMentor, models.RoleAdmin), h.createComment)
			stories.POST("/:id/assist", h.requestAssist)
		}

		comments := authed.Group("/comments")
		{
			comments.POST("/:id/resolve", h.resolveComment)
			comments.DELETE("/:id", h.deleteComment)
		}

		assist := authed.Group("/assist")
		{
			assist.GET("/:taskID", h.getAssistResult)
		}

		notifications := authed.Group("/notifications")
		{
			notifications.GET("", h.listNotifications)
			notifications.GET("/unread-count", h.countUnreadNotifications)
			notifications.POST("/read-all", h.markAllNotificationsRead)
			notifications.POST("/:id/read", h.markNotificationRead)
			notifications.DELETE("/:id", h.deleteNotification)
		}

		subscription := authed.Group("/subscription")
		{
			subscription.GET("/usage", h.getUsage)
			subscription.POST("/checkout", h.createCheckoutSession)
			subscription.POST("/cancel", h.cancelSubscription)
		}

		admin := authed.Group("/admin")
		admin.Use(h.RequireRoles(models.RoleAdmin))
		{
			admin.GET("/stats", h.adminStats)
			admin.GET("/users", h.adminListUsers)
			admin.POST("/users/:id/suspend", h.adminSuspendUser)
			admin.POST("/users/:id/restore", h.adminRestoreUser)
			admin.PUT("/users/:id/roles", h.adminSetUserRoles)
			admin.POST("/ai-keys", h.adminAddAIKey)
			admin.GET("/ai-keys", h.adminListAIKeys)
			admin.PATCH("/ai-keys/:id", h.adminSetAIKeyActive)
			admin.DELETE("/ai-keys/:id", h.adminDeleteAIKey)
		}
	}
}
