package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"live-session/internal/repository"
	"live-session/internal/service"
)

// RateLimit 返回一个 Gin 中间件，用于基于客户端 IP 地址进行速率限制。
// counters: 用于存储计数器的窗口计数器，必须提供。
// maxRequests: 在指定时间窗口内允许的最大请求数。
// window: 速率限制的时间窗口。
func RateLimit(counters repository.CounterStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	// 启动时检查依赖
	if counters == nil {
		panic("CounterStore cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		// 注意：如果服务在反向代理后面，需要配置 gin 的 TrustedProxies 才能拿到真实 IP
		key := "ratelimit:" + c.ClientIP()

		count, err := counters.IncrementKey(c.Request.Context(), key, window)
		if err != nil {
			logrus.WithError(err).Error("RateLimit: Failed to increment counter")
			abortWithError(c, http.StatusInternalServerError, service.ErrStore.Wrap(err))
			return
		}

		if count > int64(maxRequests) {
			abortWithError(c, http.StatusTooManyRequests, service.ErrRateLimited)
			return
		}

		c.Next()
	}
}
