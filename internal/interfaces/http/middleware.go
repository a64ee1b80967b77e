package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderUserID    = "X-User-ID"
	HeaderCompanyID = "X-Company-ID"

	ctxRequestID = "request_id"
	ctxUserID    = "user_id"
	ctxCompanyID = "company_id"
)

// requestIDMiddleware keeps an inbound X-Request-ID or mints one, and echoes it
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// identityMiddleware reads the caller supplied by the auth gateway
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, okUser := positiveHeader(c, HeaderUserID)
		companyID, okCompany := positiveHeader(c, HeaderCompanyID)
		if !okUser || !okCompany {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   &ErrorBody{Code: "UNAUTHORIZED", Message: "missing or invalid caller identity"},
			})
			return
		}
		c.Set(ctxUserID, userID)
		c.Set(ctxCompanyID, companyID)
		c.Next()
	}
}

func positiveHeader(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.GetHeader(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(ctxRequestID),
			"user_id", c.GetInt64(ctxUserID),
		)
	}
}

// rateLimitMiddleware throttles mutating calls per user
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.allow(c.GetInt64(ctxUserID)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, Response{
				Success: false,
				Error:   &ErrorBody{Code: "RATE_LIMITED", Message: "too many requests"},
			})
			return
		}
		c.Next()
	}
}

// limiterIdleTTL is the minimum time a user's bucket is kept after its last request.
// limiterSweepInterval spaces the scans that drop idle buckets.
const (
	limiterIdleTTL       = 10 * time.Minute
	limiterSweepInterval = time.Minute
)

// userLimiter holds one token bucket per user. A nil limiter allows everything.
// Buckets idle for longer than their refill time are dropped; a new bucket starts full.
type userLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	limiters  map[int64]*userBucket
	now       func() time.Time
}

type userBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newUserLimiter(rps float64, burst int) *userLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	ttl := limiterIdleTTL
	if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > ttl {
		ttl = refill
	}
	return &userLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  ttl,
		limiters: make(map[int64]*userBucket),
		now:      time.Now,
	}
}

func (l *userLimiter) allow(userID int64) bool {
	if l == nil {
		return true
	}
	now := l.now()

	l.mu.Lock()
	l.sweep(now)
	b, ok := l.limiters[userID]
	if !ok {
		b = &userBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// sweep drops idle buckets at most once per interval. Callers hold mu.
func (l *userLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < limiterSweepInterval {
		return
	}
	l.lastSweep = now
	for id, b := range l.limiters {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.limiters, id)
		}
	}
}
