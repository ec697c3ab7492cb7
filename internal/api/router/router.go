package router

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	sentrygin "github.com/getsentry/sentry-go/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/d60-Lab/feed-engine/config"
	_ "github.com/d60-Lab/feed-engine/docs"
	"github.com/d60-Lab/feed-engine/internal/api/handler"
	"github.com/d60-Lab/feed-engine/internal/api/middleware"
	"github.com/d60-Lab/feed-engine/pkg/metrics"
	"github.com/d60-Lab/feed-engine/pkg/monitor"
	"github.com/d60-Lab/feed-engine/pkg/response"
)

// Options 路由可选依赖
type Options struct {
	DB      *gorm.DB
	Limiter *middleware.IPRateLimiter
	// InternalEvents 是否暴露 /internal/events/posts
	InternalEvents bool
}

// Setup 注册全部路由
func Setup(cfg *config.Config, h *handler.Handler, opts Options) (*gin.Engine, error) {
	gin.SetMode(cfg.Server.Mode)
	if err := handler.RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if monitor.Enabled() {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.App.Name))
	}
	r.Use(middleware.Logger(), middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		if opts.DB != nil {
			sqlDB, err := opts.DB.DB()
			if err == nil {
				err = sqlDB.PingContext(c.Request.Context())
			}
			if err != nil {
				response.ServiceUnavailable(c, "database unavailable")
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RateLimit(opts.Limiter), gzip.Gzip(gzip.DefaultCompression))
	{
		rel := v1.Group("/relations")
		rel.POST("/follow", h.Follow)
		rel.POST("/unfollow", h.Unfollow)
		rel.POST("/block", h.Block)
		rel.POST("/unblock", h.Unblock)
		rel.POST("/mute", h.Mute)
		rel.POST("/unmute", h.Unmute)
		rel.GET("/:user_id/followers", h.ListFollowers)
		rel.GET("/:user_id/following", h.ListFollowing)
		rel.GET("/:user_id/stats", h.Stats)
		rel.GET("/:user_id/blocked", h.ListBlocked)
		rel.GET("/:user_id/muted", h.ListMuted)

		feeds := v1.Group("/feeds")
		feeds.GET("/:user_id/following", h.FollowingFeed)
		feeds.GET("/:user_id/for-you", h.ForYouFeed)
		feeds.GET("/:user_id/explore", h.ExploreFeed)
		feeds.POST("/:user_id/refresh", h.RefreshFeed)

		v1.POST("/interactions", h.RecordInteraction)

		trending := v1.Group("/trending")
		trending.GET("/posts", h.TrendingPosts)
		trending.GET("/hashtags", h.TrendingHashtags)
	}

	if opts.InternalEvents {
		r.POST("/internal/events/posts", h.PostEvent)
	}
	return r, nil
}
