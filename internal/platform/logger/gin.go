package logger

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// Service: 以降のログに service=name を付ける
func Service(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), ServiceKey, name)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestID: X-Request-ID を引き継ぐか新規採番して request context に載せる
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		ctx := context.WithValue(c.Request.Context(), RequestIDKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Middleware: 1リクエスト1行の構造化ログ（gin.Logger の置き換え）
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		l := WithContext(c.Request.Context())
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			l.Error("request", args...)
		case status >= 400:
			l.Warn("request", args...)
		default:
			l.Info("request", args...)
		}
	}
}
