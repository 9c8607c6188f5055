package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/banabets/else/common/logger"
)

const maxLoggedStack = 8 << 10

// Recovery turns a handler panic into a 500 JSON error. A panic caused by a
// status stream client hanging up is not an error, and once a response has
// started streaming nothing more is written to it.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			ctx := c.Request.Context()

			if clientGone(rec) {
				slog.DebugContext(ctx, "client went away mid-response",
					"path", c.Request.URL.Path,
					"error", rec)
				c.Abort()
				return
			}

			slog.ErrorContext(ctx, "handler panicked",
				"panic", rec,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", logger.Truncate(string(debug.Stack()), maxLoggedStack))

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "internal server error",
			})
		}()
		c.Next()
	}
}

func clientGone(rec any) bool {
	err, ok := rec.(error)
	if !ok {
		return false
	}
	return errors.Is(err, http.ErrAbortHandler) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
