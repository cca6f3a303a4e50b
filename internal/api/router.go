package api

import (
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/social-feed/config"
	"github.com/d60-Lab/social-feed/internal/api/handler"
	"github.com/d60-Lab/social-feed/internal/api/middleware"
)

// NewRouter 组装路由与中间件
func NewRouter(cfg *config.Config, h *handler.Handler) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.SentryDSN != "" {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(otelgin.Middleware("social-feed"))
	r.Use(middleware.Metrics())
	r.Use(middleware.RateLimit(cfg.Server.RateRPS, cfg.Server.RateBurst))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", h.Register)
			auth.POST("/login", h.Login)
		}

		v1.GET("/users/:id", h.GetUser)
		v1.GET("/feed", h.Feed)
		v1.GET("/feed/search", h.SearchFeed)
		v1.GET("/timeline/:user_id", h.Timeline)
		v1.GET("/posts/:id/comments", h.ListComments)
		v1.GET("/users/:id/saves", h.ListSaved)
		v1.GET("/relations/:user_id/following", h.ListFollowing)
		v1.GET("/relations/:user_id/fans", h.ListFans)

		// 写路径要求带身份
		authed := v1.Group("", middleware.Auth(cfg.Auth.JWTSecret))
		{
			authed.POST("/relations/follow", h.Follow)
			authed.POST("/relations/unfollow", h.Unfollow)
			authed.POST("/posts", h.CreatePost)
			authed.DELETE("/posts/:id", h.DeletePost)
			authed.POST("/posts/:id/save", h.SavePost)
			authed.POST("/posts/:id/unsave", h.UnsavePost)
			authed.POST("/posts/:id/comments", h.CreateComment)
			authed.POST("/users/:id/deactivate", h.DeactivateUser)
		}
	}
	return r
}
