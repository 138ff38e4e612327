package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RateLimit 返回一个 Gin 中间件，基于客户端 IP 地址进行速率限制。
// redisClient: 存储计数器的 Redis 客户端，必须提供。
// maxRequests: 时间窗口内允许的最大请求数。
// window: 速率限制的时间窗口。
func RateLimit(redisClient *redis.Client, maxRequests int, window time.Duration) gin.HandlerFunc {
	if redisClient == nil {
		panic("Redis client cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		key := "ratelimit:" + c.ClientIP()

		// Pipeline 执行 INCR + EXPIRE，减少网络往返
		pipe := redisClient.Pipeline()
		incrCmd := pipe.Incr(c.Request.Context(), key)
		pipe.Expire(c.Request.Context(), key, window)
		if _, err := pipe.Exec(c.Request.Context()); err != nil {
			logrus.WithError(err).Error("RateLimit: Redis pipeline failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limiting error"})
			c.Abort()
			return
		}

		count, err := incrCmd.Result()
		if err != nil {
			logrus.WithError(err).Error("RateLimit: failed to get INCR result")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limiting error"})
			c.Abort()
			return
		}

		if count > int64(maxRequests) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}

		c.Next()
	}
}
