package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/user/cinelog/internal/handler"
	"github.com/user/cinelog/internal/middleware"
)

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, h *handler.Handler) {
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ==================== 认证 ====================
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
	}

	// ==================== 点击跳转（规范地址解析）====================
	r.GET("/go/:media/:id", h.GoToContent)

	// ==================== 公开内容 API ====================
	api := r.Group("/api")
	api.Use(middleware.OptionalAuth(h.Config.AppSecret))
	{
		api.GET("/resolve/:media/:slug", h.ContentBySlug)
		api.GET("/content/:media/:id/stats", h.ContentStats)
		api.GET("/content/:media/:id/similar", h.Similar)
		api.GET("/content/:media/:id/reviews", h.Reviews)
	}

	// ==================== 需要登录的交互 API ====================
	user := r.Group("/api")
	user.Use(middleware.RequireAuth(h.Config.AppSecret))
	{
		user.GET("/me", h.Me)

		user.POST("/watched/:media/:id", h.MarkWatched)
		user.DELETE("/watched/:media/:id", h.Unwatch)

		user.POST("/ratings/:media/:id", h.UpsertRating)
		user.DELETE("/ratings/:media/:id", h.RemoveRating)

		user.GET("/lists", h.MyLists)
		user.POST("/lists", h.CreateList)
		user.GET("/lists/:listID/items", h.ListItems)
		user.POST("/lists/:listID/items/:media/:id", h.AddListItem)
		user.DELETE("/lists/:listID/items/:media/:id", h.RemoveListItem)
	}
}
