package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the per-client limiter table.
const maxTrackedClients = 10_000

type rateLimiter interface {
	Allow(client string) bool
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client address.
type clientLimiter struct {
	mu         sync.Mutex
	limit      rate.Limit
	burst      int
	maxClients int
	clients    map[string]*clientBucket
	now        func() time.Time
}

func newTokenBucketLimiter(ratePerSecond float64, burst int) rateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}

	return &clientLimiter{
		limit:      rate.Limit(ratePerSecond),
		burst:      burst,
		maxClients: maxTrackedClients,
		clients:    make(map[string]*clientBucket),
		now:        time.Now,
	}
}

func (l *clientLimiter) Allow(client string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= l.maxClients {
			l.pruneLocked(now)
		}
		bucket = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// pruneLocked drops clients whose bucket has refilled completely; they would
// get a fresh full bucket anyway. When every tracked client is still active
// the least recently seen one is evicted instead.
func (l *clientLimiter) pruneLocked(now time.Time) {
	refill := time.Duration(float64(l.burst) / float64(l.limit) * float64(time.Second))

	var (
		oldest     string
		oldestSeen time.Time
		pruned     bool
	)
	for client, bucket := range l.clients {
		if now.Sub(bucket.lastSeen) >= refill {
			delete(l.clients, client)
			pruned = true
			continue
		}
		if oldest == "" || bucket.lastSeen.Before(oldestSeen) {
			oldest, oldestSeen = client, bucket.lastSeen
		}
	}
	if !pruned && oldest != "" {
		delete(l.clients, oldest)
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func rateLimitMiddleware(limiter rateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter.Allow(clientKey(r)) {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded, please retry shortly")
	})
}
