package router

import (
	"github.com/gin-gonic/gin"

	"github.com/banabets/else/internal/http/handler"
)

func StatusRouter(rg *gin.RouterGroup, h *handler.StatusHandler) {
	rg.GET("", h.Get)
	rg.GET("/stream", h.Stream)
}
