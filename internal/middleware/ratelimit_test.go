package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryRateStore(0)
	store.clock = clock.Now
	defer store.Close()

	r := gin.New()
	r.POST("/login", RateLimit(store, 2, time.Minute), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/signup", RateLimit(store, 2, time.Minute), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	hit := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		return w
	}

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusNoContent, hit("/login").Code)
	}

	w := hit("/login")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, "60", w.Header().Get("Retry-After"))
	require.Contains(t, w.Body.String(), "TOO_MANY_REQUESTS")

	require.Equal(t, http.StatusNoContent, hit("/signup").Code, "routes are limited separately")

	clock.Advance(61 * time.Second)
	require.Equal(t, http.StatusNoContent, hit("/login").Code)
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int, time.Duration, error) {
	return 0, 0, errors.New("store down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/ping", RateLimit(failingStore{}, 1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/off", RateLimit(nil, 1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/ping", "/ping", "/off", "/off"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestMemoryRateStoreSweepsExpiredCounters(t *testing.T) {
	store := NewMemoryRateStore(5 * time.Millisecond)
	defer store.Close()

	_, _, err := store.Increment(context.Background(), "k", time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.data) == 0
	}, time.Second, 5*time.Millisecond)
}
