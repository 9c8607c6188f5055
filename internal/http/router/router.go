package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/banabets/else/internal/http/handler"
	"github.com/banabets/else/internal/status"
)

type RouterConfig struct {
	Board        *status.Board
	Redis        *redis.Client
	StatusStream string
	Metrics      http.Handler
}

func SetupRoutes(router *gin.Engine, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	v1 := router.Group("/api/v1")
	{
		statusHandler := handler.NewStatusHandler(cfg.Board, cfg.Redis, cfg.StatusStream)
		StatusRouter(v1.Group("/status"), statusHandler)
	}
}
