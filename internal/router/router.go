package router

import (
	"fmt"

	"github.com/teakspice/shopdb/internal/config"
	"github.com/teakspice/shopdb/internal/constants"
	"github.com/teakspice/shopdb/internal/http/handlers/data"
	"github.com/teakspice/shopdb/internal/http/response"
	"github.com/teakspice/shopdb/internal/logger"
	"github.com/teakspice/shopdb/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()
	r.HandleMethodNotAllowed = true

	dataHandler := data.New(c)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	r.NoRoute(func(ctx *gin.Context) {
		response.NotFound(ctx, fmt.Sprintf("route %s %s not found", ctx.Request.Method, ctx.Request.URL.Path))
	})
	r.NoMethod(func(ctx *gin.Context) {
		response.Error(ctx, response.CodeBadRequest, fmt.Sprintf("method %s not allowed", ctx.Request.Method))
	})

	r.GET("/healthz", dataHandler.Health)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/models", dataHandler.Models)

		ops := apiV1.Group("")
		ops.Use(RateLimitMiddleware(rateLimitClient(c), proxyRateLimitRule(cfg, c), KeyByIPAndModel))
		{
			ops.POST("/"+constants.BatchTransactionKey, dataHandler.Batch)
			ops.POST("/:model/:action", dataHandler.Dispatch)
		}
	}

	return r
}

func rateLimitClient(c *provider.Container) redis.Scripter {
	if c == nil || c.Cache == nil {
		return nil
	}
	return c.Cache.Redis()
}

func proxyRateLimitRule(cfg *config.Config, c *provider.Container) RateLimitRule {
	prefix := ""
	if c != nil && c.Cache != nil {
		prefix = c.Cache.Prefix()
	}
	return RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:proxy", prefix),
		WindowSeconds: cfg.Server.RateLimit.WindowSeconds,
		MaxRequests:   cfg.Server.RateLimit.MaxRequests,
	}
}
