package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// maxTrackedClients caps the bucket map so an address-spoofing flood cannot
// grow it without bound. Requests beyond the cap are rejected.
const maxTrackedClients = 100000

// RateLimiter applies a per-client token bucket to the chat endpoints. Each
// resolved query costs warehouse and LLM round trips, so chat traffic is
// throttled well below what the read APIs tolerate.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*tokenBucket

	rate  float64
	burst float64
}

type tokenBucket struct {
	tokens   float64
	refillAt time.Time
	lastSeen time.Time
}

// NewRateLimiter returns a limiter sustaining rate requests per second per
// client with the given burst allowance.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*tokenBucket),
		rate:    rate,
		burst:   float64(burst),
	}
}

// Handler enforces the limit and annotates every response with the standard
// X-RateLimit headers. Rejections carry a Retry-After hint and the same JSON
// error shape the chat handlers use.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, wait, ok := rl.take(clientKey(r))

		h := w.Header()
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))

		if !ok {
			h.Set("Retry-After", strconv.FormatFloat(math.Ceil(wait), 'f', 0, 64))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// take spends one token for the client, refilling the bucket for the time
// elapsed since its last request. It reports the tokens left and, on
// rejection, the seconds until the next token accrues.
func (rl *RateLimiter) take(key string) (remaining int, wait float64, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b := rl.clients[key]
	if b == nil {
		if len(rl.clients) >= maxTrackedClients {
			return 0, 1 / rl.rate, false
		}
		b = &tokenBucket{tokens: rl.burst, refillAt: now}
		rl.clients[key] = b
	} else {
		b.tokens = min(rl.burst, b.tokens+now.Sub(b.refillAt).Seconds()*rl.rate)
		b.refillAt = now
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return 0, (1 - b.tokens) / rl.rate, false
	}
	b.tokens--
	return int(b.tokens), 0, true
}

// StartCleanup evicts buckets idle longer than maxIdle on the given interval.
// The returned func stops the sweeper.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.evictIdle(maxIdle)
			}
		}
	}()
	return cancel
}

func (rl *RateLimiter) evictIdle(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for key, b := range rl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// Len reports the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// clientKey buckets by the connection's source address. Forwarding headers
// are ignored here because they are spoofable; RealIP upstream rewrites
// RemoteAddr when the deployment fronts the service with a trusted proxy.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
