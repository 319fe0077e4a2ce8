package handler

import (
	"github.com/adelegard/TouchrServer/job"
	"github.com/adelegard/TouchrServer/middleware"
	"github.com/adelegard/TouchrServer/service"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/gin-gonic/gin"
)

// Services is everything the HTTP layer talks to.
type Services struct {
	Accounts  *service.AccountService
	Friends   *service.FriendshipService
	Types     *service.TouchTypeService
	Touches   *service.TouchService
	Feeds     *service.FeedService
	Favorites *service.FavoriteService
	Pushes    *service.PushService
	Templates *service.NotificationTemplateService
	Settings  *service.SystemSettingsService
	Jobs      *job.Runner

	Hub *Hub
	// TouchLimiter throttles touch sending. Nil disables it.
	TouchLimiter *middleware.RateLimiter
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(s Services) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.ErrorHandlerMiddleware())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		utils.SuccessResponse(c, gin.H{"status": "ok"})
	})
	r.GET("/metrics", middleware.MetricsHandler())

	// WebSocket authenticates with ?token= instead of the header
	if s.Hub != nil {
		r.GET("/ws", HandleWebSocket(s.Hub))
	}

	accountHandler := NewAccountHandler(s.Accounts)
	friendHandler := NewFriendHandler(s.Friends, s.Feeds)
	touchHandler := NewTouchHandler(s.Touches, s.Feeds)
	typeHandler := NewTouchTypeHandler(s.Types, s.Accounts)
	favHandler := NewFavoriteHandler(s.Favorites)
	notifHandler := NewNotificationHandler(s.Pushes)

	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/signup", accountHandler.Signup)
		auth.POST("/login", accountHandler.Login)
	}

	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware())
	{
		api.GET("/me", accountHandler.Me)
		api.DELETE("/me", accountHandler.DeleteAccount)
		api.GET("/me/roles/:role", accountHandler.HasRole)

		api.GET("/friends", friendHandler.GetFriends)
		api.GET("/friends/with-touches", friendHandler.GetFriendsWithTouches)
		api.GET("/friends/requests", friendHandler.PendingRequests)
		api.GET("/friends/:id", friendHandler.GetFriendDetail)
		api.POST("/friends/:id/request", friendHandler.SendRequest)
		api.DELETE("/friends/:id/request", friendHandler.RemoveRequest)
		api.POST("/friends/:id/accept", friendHandler.AcceptRequest)
		api.POST("/friends/:id/deny", friendHandler.DenyRequest)

		touches := api.Group("/touches")
		if s.TouchLimiter != nil {
			touches.POST("", s.TouchLimiter.Handler(), touchHandler.Touch)
			touches.POST("/batch", s.TouchLimiter.Handler(), touchHandler.TouchMany)
		} else {
			touches.POST("", touchHandler.Touch)
			touches.POST("/batch", touchHandler.TouchMany)
		}
		touches.GET("/inbox", touchHandler.Inbox)
		touches.GET("/sent", touchHandler.Sent)
		touches.PUT("/:id/hide", touchHandler.HideTouch)
		touches.DELETE("/peer/:id", touchHandler.RemoveTouchesWithPeer)

		api.GET("/touch-types", typeHandler.ListVisible)
		api.GET("/touch-types/created", typeHandler.ListCreated)
		api.GET("/touch-types/newest", typeHandler.ListNewest)
		api.GET("/touch-types/popular", typeHandler.ListPopular)
		api.POST("/touch-types", typeHandler.Create)
		api.PUT("/touch-types/:id", typeHandler.Update)
		api.DELETE("/touch-types/:id", typeHandler.Delete)

		api.GET("/favorites", favHandler.List)
		api.PUT("/favorites", favHandler.Set)
		api.DELETE("/favorites", favHandler.RemoveAll)
		api.POST("/favorites/:id", favHandler.Add)
		api.DELETE("/favorites/:id", favHandler.Remove)

		api.GET("/notifications", notifHandler.GetNotifications)
		api.PUT("/notifications/read-all", notifHandler.MarkAllAsRead)
		api.DELETE("/notifications/:id", notifHandler.DeleteNotification)
	}

	admin := r.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware())
	admin.Use(middleware.RequireRole(s.Accounts, service.RoleAdmin))
	{
		admin.POST("/roles", accountHandler.GiveRole)

		sysHandler := NewSystemSettingsHandler(s.Settings)
		admin.GET("/settings", sysHandler.GetSystemSettings)
		admin.PUT("/settings/:key", sysHandler.UpdateSystemSetting)
		admin.POST("/settings/reload", sysHandler.ReloadSystemSettings)

		templateHandler := NewNotificationTemplateHandler(s.Templates)
		admin.GET("/templates", templateHandler.ListTemplates)
		admin.PUT("/templates/:id", templateHandler.UpdateTemplate)
		admin.POST("/templates/init", templateHandler.InitDefaultTemplates)

		// admins may delete any touch type
		admin.DELETE("/touch-types/:id", typeHandler.Delete)

		if s.Jobs != nil {
			jobHandler := NewJobHandler(s.Jobs)
			admin.POST("/jobs/unused-touch-types", jobHandler.RunUnusedTouchTypes)
			admin.GET("/jobs/unused-touch-types", jobHandler.LatestUnusedTouchTypesRun)
		}
	}

	return r
}
