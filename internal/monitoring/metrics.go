package monitoring

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type Metrics struct {
	mu             sync.RWMutex
	RequestCount   int64            `json:"request_count"`
	ErrorCount     int64            `json:"error_count"`
	ActiveRequests int64            `json:"active_requests"`
	StatusCodes    map[string]int64 `json:"status_codes"`
	Endpoints      map[string]int64 `json:"endpoint_calls"`
	StartTime      time.Time        `json:"start_time"`
	LastRequest    time.Time        `json:"last_request"`
	totalDuration  time.Duration
}

var globalMetrics = &Metrics{
	StatusCodes: make(map[string]int64),
	Endpoints:   make(map[string]int64),
	StartTime:   time.Now(),
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		globalMetrics.mu.Lock()
		globalMetrics.ActiveRequests++
		globalMetrics.mu.Unlock()

		c.Next()

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())

		globalMetrics.mu.Lock()
		globalMetrics.ActiveRequests--
		globalMetrics.RequestCount++
		globalMetrics.totalDuration += duration
		globalMetrics.StatusCodes[status]++
		globalMetrics.Endpoints[c.FullPath()]++
		globalMetrics.LastRequest = time.Now()
		if c.Writer.Status() >= http.StatusInternalServerError {
			globalMetrics.ErrorCount++
		}
		globalMetrics.mu.Unlock()
	}
}

func MetricsHandler(c *gin.Context) {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	avgDuration := time.Duration(0)
	if globalMetrics.RequestCount > 0 {
		avgDuration = globalMetrics.totalDuration / time.Duration(globalMetrics.RequestCount)
	}

	c.JSON(http.StatusOK, gin.H{
		"request_count":           globalMetrics.RequestCount,
		"error_count":             globalMetrics.ErrorCount,
		"active_requests":         globalMetrics.ActiveRequests,
		"avg_request_duration_ms": avgDuration.Milliseconds(),
		"status_codes":            globalMetrics.StatusCodes,
		"endpoint_calls":          globalMetrics.Endpoints,
		"uptime_seconds":          int64(time.Since(globalMetrics.StartTime).Seconds()),
		"goroutines":              runtime.NumGoroutine(),
		"heap_alloc_bytes":        memStats.HeapAlloc,
	})
}

type HealthCheckFunc func(ctx context.Context) error

type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]HealthCheckFunc
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]HealthCheckFunc)}
}

func (h *HealthChecker) Register(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *HealthChecker) Handler(c *gin.Context) {
	h.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(checks))
	for name, check := range checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			results[name] = "ok"
		}
	}

	c.JSON(status, gin.H{
		"status": http.StatusText(status),
		"checks": results,
	})
}
