package handler

import (
	"net/http"
	"strconv"
	"time"

	"homeledger/internal/cache"
	"homeledger/internal/config"
	"homeledger/pkg/response"

	"github.com/gin-gonic/gin"
)

type window struct {
	start time.Time
	count int
}

// RateLimitMiddleware applies a fixed-window request budget per client IP.
// Client state lives in a bounded LRU so a flood of distinct addresses
// cannot grow memory without limit. A zero request budget disables it.
func RateLimitMiddleware(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.Requests <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	maxClients := cfg.MaxClients
	if maxClients <= 0 {
		maxClients = 10000
	}
	clients := cache.NewLRUCache[window](maxClients, cfg.Window)

	return func(c *gin.Context) {
		now := time.Now()
		w := clients.Update(c.ClientIP(), func(cur window, found bool) window {
			if !found || now.Sub(cur.start) >= cfg.Window {
				return window{start: now, count: 1}
			}
			cur.count++
			return cur
		})
		if w.count > cfg.Requests {
			c.Header("Retry-After", retryAfter(w.start.Add(cfg.Window).Sub(now)))
			response.Error(c, http.StatusTooManyRequests, response.CodeTooMany, "rate limit exceeded")
			return
		}
		c.Next()
	}
}

func retryAfter(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
