package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"localdeal-backend/internal/dto/result"
)

// ErrorHandler 统一记录 handler 挂到 gin.Context 上的错误，并兜底返回 500
func ErrorHandler(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		for _, ginErr := range c.Errors {
			log.Error("request error",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.Error(ginErr.Err),
			)
		}
		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, result.Fail("internal server error"))
		}
	}
}
