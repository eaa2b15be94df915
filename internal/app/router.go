package app

import (
	"offline_cache_backend/docs"
	"offline_cache_backend/internal/config"
	"offline_cache_backend/internal/middleware"
	"offline_cache_backend/pkg/monitoring"
	"offline_cache_backend/pkg/security"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由（无需登录）
	router.GET("/api/health", c.health.HealthCheck)

	// 2. WebSocket 通知通道（握手阶段通过 query token 认证）
	router.GET("/ws/notifications", middleware.AuthMiddleware(cfg), c.notification.ServeWS)

	// 3. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerCacheRoutes(authGroup, c)
		a.registerNotificationRoutes(authGroup, c)
	}

	// 4. 管理员相关接口
	a.registerAdminRoutes(router, c, cfg)
}

func (a *App) registerCacheRoutes(group *gin.RouterGroup, c *controllers) {
	cache := group.Group("/cache")
	{
		cache.POST("/courses", c.cache.CacheCourse)
		cache.GET("/courses", c.cache.GetAllCachedCourses)
		cache.GET("/courses/:id", c.cache.GetCachedCourse)
		cache.DELETE("/courses/:id", c.cache.RemoveCachedCourse)
		cache.GET("/status", c.cache.GetCacheStatus)
		cache.POST("/sync", c.cache.TriggerSync)
	}

	progress := group.Group("/progress")
	{
		progress.POST("", c.progress.SaveProgress)
		progress.GET("/:courseId", c.progress.GetProgress)
	}
}

func (a *App) registerNotificationRoutes(group *gin.RouterGroup, c *controllers) {
	notifications := group.Group("/notifications")
	{
		notifications.GET("/permission", c.notification.GetPermissionStatus)
		notifications.POST("/permission/request", c.notification.RequestPermission)
		notifications.POST("/permission/report", c.notification.ReportPermission)
		notifications.POST("/subscribe", c.notification.SubscribeToPush)
		notifications.DELETE("/subscribe", c.notification.UnsubscribeFromPush)
	}
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), security.AdminAuth(cfg.Server.AdminTokenHash))
	{
		admin.POST("/cache/cleanup", c.cache.CleanupCache)
		admin.POST("/notifications/show", c.notification.ShowNotification)
	}
}
