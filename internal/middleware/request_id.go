package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"localdeal-backend/internal/utils"
)

// RequestIDHeader 响应头中回传的请求标识
const RequestIDHeader = "X-Request-Id"

// RequestID 为每个请求打上雪花ID，便于日志按时间排序检索
// 客户端已携带 X-Request-Id 时透传
func RequestID(sf *utils.Snowflake) gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" && sf != nil {
			if id, err := sf.NextID(); err == nil {
				rid = strconv.FormatInt(id, 10)
			}
		}
		if rid != "" {
			c.Header(RequestIDHeader, rid)
			c.Set("requestId", rid)
		}
		c.Next()
	}
}
