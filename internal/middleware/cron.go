// cron.go authenticates requests from external schedulers. The cron endpoints
// use a separate shared-secret scheme ("Authorization: Bearer <secret>") that
// is independent of the API key and session auth chains, so a leaked API key
// can never trigger maintenance work.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// cronRateLimiter tracks per-IP attempt counts to prevent brute-force attacks
// on the cron secret. Allows maxAttempts per window per IP.
type cronRateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func newCronRateLimiter() *cronRateLimiter {
	return &cronRateLimiter{
		attempts: make(map[string][]time.Time),
	}
}

const (
	cronMaxAttempts = 5
	cronRateWindow  = time.Minute
)

// allow returns true if the IP has not exceeded the rate limit.
func (rl *cronRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-cronRateWindow)

	// Prune old entries
	recent := make([]time.Time, 0, len(rl.attempts[ip]))
	for _, t := range rl.attempts[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= cronMaxAttempts {
		rl.attempts[ip] = recent
		return false
	}

	rl.attempts[ip] = append(recent, now)
	return true
}

// CronAuth validates the scheduler shared secret. It checks that:
//  1. A cron secret is configured (returns 403 when unset — the endpoints are
//     disabled rather than open).
//  2. The IP is not rate-limited (max 5 attempts per minute).
//  3. The secret matches, compared in constant time. Schedulers that cannot
//     set headers may pass it as a ?secret= query parameter instead of the
//     Authorization header.
func CronAuth(secret string) gin.HandlerFunc {
	rateLimiter := newCronRateLimiter()

	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Cron endpoints are disabled. Set auth.cron_secret to enable them.",
			})
			return
		}

		clientIP := c.ClientIP()
		if !rateLimiter.allow(clientIP) {
			slog.Warn("cron auth: rate limit exceeded", "ip", clientIP)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many attempts. Try again in one minute.",
			})
			return
		}

		authHeader := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			token = c.Query("secret")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Cron secret required. Use: Authorization: Bearer <secret> or ?secret=<secret>",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			slog.Warn("cron auth: invalid secret", "ip", clientIP)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid cron secret",
			})
			return
		}

		c.Next()
	}
}
