package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/authinvite/pkg/errors"
	"github.com/charlesng35/authinvite/pkg/logger"
	"github.com/charlesng35/authinvite/pkg/response"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// MemoryRateStore provides process-local fixed window counters. It is
// concurrency-safe and suitable for single-instance deployments.
type MemoryRateStore struct {
	mu    sync.Mutex
	data  map[string]*memoryCounter
	clock func() time.Time
	done  chan struct{}
	once  sync.Once
}

type memoryCounter struct {
	count     int
	windowEnd time.Time
}

// NewMemoryRateStore constructs an in-memory rate store that drops expired
// counters every sweep interval. Close stops the sweeper.
func NewMemoryRateStore(sweep time.Duration) *MemoryRateStore {
	store := &MemoryRateStore{
		data:  make(map[string]*memoryCounter),
		clock: time.Now,
		done:  make(chan struct{}),
	}
	if sweep > 0 {
		go store.cleanupLoop(sweep)
	}
	return store
}

func (s *MemoryRateStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := s.clock()
			s.mu.Lock()
			for key, counter := range s.data {
				if now.After(counter.windowEnd) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Close stops the background sweeper.
func (s *MemoryRateStore) Close() {
	s.once.Do(func() { close(s.done) })
}

// Increment counts one hit for key and reports the remaining window.
func (s *MemoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.data[key]
	if !ok || now.After(counter.windowEnd) {
		counter = &memoryCounter{windowEnd: now.Add(window)}
		s.data[key] = counter
	}
	counter.count++

	return counter.count, counter.windowEnd.Sub(now), nil
}

// RateLimit limits requests per (client IP, route) within a fixed window.
// A non-positive limit disables the middleware. Store failures let the
// request through.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		key := c.ClientIP() + "|" + c.Request.Method + "|" + c.FullPath()
		count, ttl, err := store.Increment(c.Request.Context(), key, window)
		if err != nil {
			logger.WithModule("http").Warn("rate limit store failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		resetIn := int(ttl.Round(time.Second) / time.Second)

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(resetIn))

		if count > maxRequests {
			c.Header("Retry-After", strconv.Itoa(max(resetIn, 1)))
			response.Error(c, errors.ErrTooManyRequests)
			c.Abort()
			return
		}

		c.Next()
	}
}
