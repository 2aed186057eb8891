package restapi

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/pietrosul/MyBusApp/internal/app"
	"github.com/pietrosul/MyBusApp/internal/clock"
	"github.com/pietrosul/MyBusApp/internal/models"
)

const (
	limiterIdleThreshold = 10 * time.Minute
	limiterCleanupPeriod = 5 * time.Minute
)

// rateLimitClient tracks a limiter and when it was last used, so idle
// clients can be evicted without touching active ones.
type rateLimitClient struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

// RateLimitMiddleware limits requests per API key, or per client address
// for requests without a key. Configured keys can be exempted.
type RateLimitMiddleware struct {
	limiters    map[string]*rateLimitClient
	mu          sync.RWMutex
	rateLimit   rate.Limit
	burstSize   int
	cleanupTick *time.Ticker
	exemptKeys  map[string]bool
	stopChan    chan struct{}
	stopOnce    sync.Once
	clock       clock.Clock
}

// NewRateLimitMiddleware allows requestsPerInterval requests per interval
// with a burst of the same size. A negative count disables limiting and
// zero rejects everything.
func NewRateLimitMiddleware(requestsPerInterval int, interval time.Duration, exemptKeys []string, c clock.Clock) *RateLimitMiddleware {
	if c == nil {
		c = clock.RealClock{}
	}

	var limit rate.Limit
	switch {
	case requestsPerInterval < 0:
		limit = rate.Inf // no limiting
	case requestsPerInterval == 0:
		limit = 0 // no requests allowed
	default:
		limit = rate.Every(interval / time.Duration(requestsPerInterval))
	}

	exempt := make(map[string]bool)
	for _, key := range exemptKeys {
		if key = strings.TrimSpace(key); key != "" {
			exempt[key] = true
		}
	}

	rl := &RateLimitMiddleware{
		limiters:    make(map[string]*rateLimitClient),
		rateLimit:   limit,
		burstSize:   requestsPerInterval,
		cleanupTick: time.NewTicker(limiterCleanupPeriod),
		exemptKeys:  exempt,
		stopChan:    make(chan struct{}),
		clock:       c,
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// Handler returns the HTTP middleware handler function
func (rl *RateLimitMiddleware) Handler() func(http.Handler) http.Handler {
	return rl.rateLimitHandler
}

// getLimiter gets or creates the limiter for clientKey and updates its last
// usage timestamp.
func (rl *RateLimitMiddleware) getLimiter(clientKey string) *rate.Limiter {
	now := rl.clock.Now().UnixNano()

	// Known client: update lastSeen under the read lock only.
	rl.mu.RLock()
	if client, ok := rl.limiters[clientKey]; ok {
		client.lastSeen.Store(now)
		rl.mu.RUnlock()
		return client.limiter
	}
	rl.mu.RUnlock()

	// Unknown client: take the write lock to create it.
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Another goroutine may have created it while we waited for the lock.
	if client, ok := rl.limiters[clientKey]; ok {
		client.lastSeen.Store(now)
		return client.limiter
	}

	client := &rateLimitClient{limiter: rate.NewLimiter(rl.rateLimit, rl.burstSize)}
	client.lastSeen.Store(now)
	rl.limiters[clientKey] = client
	return client.limiter
}

// rateLimitHandler is the HTTP middleware function
func (rl *RateLimitMiddleware) rateLimitHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := app.RequestAPIKey(r)

		// Exempt keys skip limiting entirely
		if apiKey != "" && rl.exemptKeys[apiKey] {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.getLimiter(clientKey(r, apiKey)).Allow() {
			rl.sendRateLimitExceeded(w)
			return
		}

		// Request is allowed, continue to next handler
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller: its API key, or its remote address.
func clientKey(r *http.Request, apiKey string) string {
	if apiKey != "" {
		return "key:" + apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// sendRateLimitExceeded sends a 429 Too Many Requests response in the
// standard envelope.
func (rl *RateLimitMiddleware) sendRateLimitExceeded(w http.ResponseWriter) {
	// Retry-After is derived from the refill rate, at least one second.
	retryAfter := time.Second
	switch rl.rateLimit {
	case 0:
		retryAfter = time.Hour // nothing is ever allowed
	case rate.Inf:
	default:
		if every := time.Duration(float64(time.Second) / float64(rl.rateLimit)); every > retryAfter {
			retryAfter = every
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burstSize))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)

	response := models.NewErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", rl.clock)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode rate limit response", slog.String("error", err.Error()))
	}
}

// cleanupOnce evicts limiters idle for longer than limiterIdleThreshold.
// It is separate from the background loop so tests can run it synchronously.
func (rl *RateLimitMiddleware) cleanupOnce() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	for key, client := range rl.limiters {
		lastSeen := client.lastSeen.Load()
		if lastSeen == 0 {
			continue // just created, not yet stamped
		}
		if now.Sub(time.Unix(0, lastSeen)) > limiterIdleThreshold {
			delete(rl.limiters, key)
		}
	}
}

// cleanup periodically removes limiters of idle clients.
func (rl *RateLimitMiddleware) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.cleanupOnce()
		case <-rl.stopChan:
			return
		}
	}
}

// Stop ends the cleanup goroutine. Safe to call multiple times.
// In-flight requests are not affected.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
		rl.cleanupTick.Stop()
	})
}
