package httpmiddleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"NoteFlow/backend/go/internal/models"
	"NoteFlow/backend/go/pkg/circuitbreaker"
	"NoteFlow/backend/go/pkg/logger"
	"NoteFlow/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

// SessionChecker 查询用户当前是否存在活跃会话，由 user_service 的 Redis 实现满足。
type SessionChecker interface {
	HasSession(ctx context.Context, userID uint) (bool, error)
}

// JWTAuth 创建一个 Gin 中间件，用于验证 JWT。
// 签名验证通过后还会查询会话是否仍然活跃，登出后的 token 在这里被拒绝；
// 全部通过后把用户 ID 放进上下文的 "userID" 键，供后续 handler 使用。
func JWTAuth(jwtSecret string, sessions SessionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权标头"})
			c.Abort()
			return
		}

		// 我们期望的格式是 "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "授权标头格式不正确"})
			c.Abort()
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			// 确保 token 的签名方法是我们期望的
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("非预期的签名方法")
			}
			return []byte(jwtSecret), nil
		})
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的 token"})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的 token"})
			c.Abort()
			return
		}

		userID, ok := claims["sub"].(float64) // JWT 解析数字时默认为 float64
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的 token claims"})
			c.Abort()
			return
		}
		active, err := sessions.HasSession(c.Request.Context(), uint(userID))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "会话校验失败"})
			c.Abort()
			return
		}
		if !active {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "会话已失效，请重新登录"})
			c.Abort()
			return
		}
		c.Set("userID", uint(userID))

		c.Next()
	}
}

// RequestLogger 为每个请求生成一个 trace_id，并在请求结束后输出一条访问日志。
func RequestLogger(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := uuid.New().String()
		c.Set("traceID", traceID)

		start := time.Now()
		c.Next()

		log := logger.New(serviceName, traceID, fmt.Sprintf("%d", c.GetUint("userID")))
		log.WithRequest(models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		}).WithPayload(map[string]interface{}{
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Info("请求处理完成")
	}
}

// RateLimit 把限流器套在请求入口上，被拒绝的请求直接返回 429。
func RateLimit(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁，请稍后再试"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CircuitBreak 把熔断器套在请求入口上。
// 5xx 响应计为一次失败；熔断打开期间请求直接返回 503。
func CircuitBreak(breaker circuitbreaker.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, err := breaker.Execute(func() (interface{}, error) {
			c.Next()
			if status := c.Writer.Status(); status >= http.StatusInternalServerError {
				return nil, fmt.Errorf("server error: status code %d", status)
			}
			return nil, nil
		})

		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "服务暂时不可用"})
			c.Abort()
		}
	}
}
