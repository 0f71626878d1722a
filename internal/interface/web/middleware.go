package web

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// SentryMiddleware captures errors that happened during request handling
// and reports them to Sentry
func SentryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		if len(c.Errors) > 0 {
			for _, err := range c.Errors {
				sentry.WithScope(func(scope *sentry.Scope) {
					scope.SetTag("method", c.Request.Method)
					scope.SetTag("path", c.Request.URL.Path)
					scope.SetTag("status", http.StatusText(c.Writer.Status()))
					scope.SetTag("ip", c.ClientIP())
					scope.SetTag("user-agent", c.Request.UserAgent())
					scope.SetExtra("latency", time.Since(start).String())
					scope.SetRequest(c.Request)
					sentry.CaptureException(err.Err)
				})
			}
		}
	}
}

// RateLimitMiddleware enforces a per-client token bucket on the wrapped
// routes. Limiters are keyed by client IP and kept for the lifetime of
// the process.
func RateLimitMiddleware(limit rate.Limit, burst int) gin.HandlerFunc {
	var (
		mtx      sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	limiterFor := func(ip string) *rate.Limiter {
		mtx.Lock()
		defer mtx.Unlock()
		if l, ok := limiters[ip]; ok {
			return l
		}
		l := rate.NewLimiter(limit, burst)
		limiters[ip] = l
		return l
	}

	return func(c *gin.Context) {
		if !limiterFor(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "RateLimited",
				"message": "too many requests, slow down",
			})
			return
		}
		c.Next()
	}
}

// AdminAuthMiddleware validates a bearer token signed with the shared
// admin secret. When no secret is configured the check is disabled and
// admin routes are left open.
func AdminAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		tokenStr, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Unauthorized",
				"message": "missing bearer token",
			})
			return
		}

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Unauthorized",
				"message": "invalid bearer token",
			})
			return
		}
		c.Next()
	}
}
