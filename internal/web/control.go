package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wes-simulator/internal/config"
)

// CacheRefresher 可以被显式刷新的缓存
type CacheRefresher interface {
	Refresh()
}

// ControlDeps 控制面依赖
type ControlDeps struct {
	Toggles    *config.ToggleStore
	Containers CacheRefresher
	Activity   *ActivityTracker
	Hub        *Hub
	Logger     *slog.Logger
}

// NewControlRouter 构造控制面路由：开关读写、容器缓存刷新、指标、活动推送
func NewControlRouter(deps ControlDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	logger := deps.Logger.With("component", "control")
	router.Use(recovery(logger), requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	mock := router.Group("/mock")
	{
		mock.GET("/config", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.Toggles.Snapshot())
		})
		mock.PUT("/config", func(c *gin.Context) {
			var patch config.TogglePatch
			if err := c.ShouldBindJSON(&patch); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			updated := deps.Toggles.Update(patch.Apply)
			logger.Info("开关已更新", "toggles", updated)
			c.JSON(http.StatusOK, updated)
		})
		mock.POST("/config/all", func(c *gin.Context) {
			deps.Toggles.Set(config.AllOn())
			logger.Info("all mock open")
			c.JSON(http.StatusOK, deps.Toggles.Snapshot())
		})
		mock.POST("/containers/refresh", func(c *gin.Context) {
			if deps.Containers == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "container cache not configured"})
				return
			}
			deps.Containers.Refresh()
			logger.Info("库外容器缓存已刷新")
			c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
		})
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if deps.Activity != nil {
		router.GET("/api/activity", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.Activity.Snapshot())
		})
	}
	if deps.Hub != nil {
		router.GET("/ws", gin.WrapF(deps.Hub.ServeWs))
	}
	return router
}

// recovery 捕获处理器 panic 并返回 500
func recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("控制面处理器 panic", "path", c.Request.URL.Path, "panic", r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}

// requestLogger 记录每个控制面请求
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("控制面请求",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
