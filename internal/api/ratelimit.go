package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware allows rps requests per second per client IP, with a
// burst of rps. Idle clients are forgotten after limiterIdleTTL.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	var mu sync.Mutex
	clients := make(map[string]*clientLimiter)
	lastSweep := time.Now()

	allow := func(ip string) bool {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if now.Sub(lastSweep) > limiterIdleTTL {
			for k, cl := range clients {
				if now.Sub(cl.lastSeen) > limiterIdleTTL {
					delete(clients, k)
				}
			}
			lastSweep = now
		}

		cl, ok := clients[ip]
		if !ok {
			cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), rps)}
			clients[ip] = cl
		}
		cl.lastSeen = now
		return cl.limiter.Allow()
	}

	return func(c *gin.Context) {
		if !allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
