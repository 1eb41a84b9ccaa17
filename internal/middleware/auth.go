package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"localdeal-backend/internal/dto"
	"localdeal-backend/internal/utils"
)

const loginUserKey = "loginUser"

// LoginMiddleware 从 Authorization 头解析登录 token，
// 命中 Redis 则把用户信息放入请求上下文并刷新 token 有效期
// 未登录不在此处拦截，由需要登录态的 handler 自行判断
func LoginMiddleware(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.Next()
			return
		}
		tokenKey := utils.LOGIN_USER_KEY + token
		data, err := rdb.HGetAll(c.Request.Context(), tokenKey).Result()
		if err != nil || len(data) == 0 {
			c.Next()
			return
		}
		id, err := strconv.ParseInt(data["id"], 10, 64)
		if err != nil {
			c.Next()
			return
		}
		user := dto.UserDTO{
			ID:       id,
			NickName: data["nickName"],
			Icon:     data["icon"],
		}
		c.Set(loginUserKey, user)
		// 活跃用户顺延登录态，对应原 RefreshTokenInterceptor 的续期语义
		_ = rdb.Expire(c.Request.Context(), tokenKey, time.Duration(utils.LOGIN_USER_TTL)*time.Second).Err()
		c.Next()
	}
}

// GetLoginUser 获取当前登录用户，未登录时第二个返回值为 false
func GetLoginUser(c *gin.Context) (dto.UserDTO, bool) {
	val, ok := c.Get(loginUserKey)
	if !ok {
		return dto.UserDTO{}, false
	}
	user, ok := val.(dto.UserDTO)
	return user, ok
}
