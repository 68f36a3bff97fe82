package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tasklife/internal/config"

	"github.com/gin-gonic/gin"
)

func setupRateLimitedRouter(t *testing.T, cfg config.RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	return router
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	router := setupRateLimitedRouter(t, config.RateLimitConfig{
		RequestsPerMin:  60,
		BurstSize:       3,
		CleanupInterval: time.Minute,
	})

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest("GET", "/ping", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("Request %d: expected status %d, got %d", i, http.StatusOK, w.Code)
		}
	}
}

func TestRateLimiterRejectsBeyondBurst(t *testing.T) {
	router := setupRateLimitedRouter(t, config.RateLimitConfig{
		RequestsPerMin:  1,
		BurstSize:       2,
		CleanupInterval: time.Minute,
	})

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest("GET", "/ping", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("Request %d: expected status %d, got %d", i, http.StatusOK, w.Code)
		}
	}

	req, _ := http.NewRequest("GET", "/ping", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status %d, got %d", http.StatusTooManyRequests, w.Code)
	}
}

func TestRateLimiterTracksClientsSeparately(t *testing.T) {
	router := setupRateLimitedRouter(t, config.RateLimitConfig{
		RequestsPerMin:  1,
		BurstSize:       1,
		CleanupInterval: time.Minute,
	})

	first, _ := http.NewRequest("GET", "/ping", nil)
	first.RemoteAddr = "10.0.0.1:50000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, first)
	if w.Code != http.StatusOK {
		t.Fatalf("First client: expected status %d, got %d", http.StatusOK, w.Code)
	}

	second, _ := http.NewRequest("GET", "/ping", nil)
	second.RemoteAddr = "10.0.0.2:50000"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, second)
	if w.Code != http.StatusOK {
		t.Errorf("Second client: expected status %d, got %d", http.StatusOK, w.Code)
	}
}
