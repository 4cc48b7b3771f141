package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xpanvictor/xscribe/pkg/Logger"
)

// CORSMiddleware handles CORS headers
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, accept, origin, Cache-Control, X-Requested-With, "+requestIDHeader)
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
		c.Header("Access-Control-Expose-Headers", requestIDHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

const requestIDHeader = "X-Request-ID"

// RequestLoggerMiddleware tags each request with an id and logs it once it
// completes. Uploads can be large, so the body size is logged too.
func RequestLoggerMiddleware(logger *Logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		start := time.Now()

		c.Next()

		logger.Infow("request",
			"id", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"bytes_in", c.Request.ContentLength,
			"client", c.ClientIP(),
		)
	}
}

// ErrorHandlerMiddleware handles panics and errors
func ErrorHandlerMiddleware(logger *Logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Errorf("Panic recovered: %v", recovered)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	})
}
