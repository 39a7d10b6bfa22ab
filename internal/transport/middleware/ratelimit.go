package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/heartmarshall/docflow-backend/internal/clock"
	"github.com/heartmarshall/docflow-backend/pkg/ctxutil"
)

// idleAfter is how long a caller may stay quiet before its allowance is
// forgotten.
const idleAfter = 10 * time.Minute

// UploadThrottle limits uploads per caller with a token bucket. Callers are
// keyed by authenticated user, falling back to the client address.
type UploadThrottle struct {
	clk       clock.Clock
	perMinute float64

	mu      sync.Mutex
	callers map[string]*allowance
}

type allowance struct {
	tokens float64
	seen   time.Time
}

// NewUploadThrottle returns a throttle admitting perMinute uploads per
// caller. A nil clk uses the wall clock.
func NewUploadThrottle(perMinute int, clk clock.Clock) *UploadThrottle {
	if clk == nil {
		clk = clock.Real()
	}
	return &UploadThrottle{
		clk:       clk,
		perMinute: float64(perMinute),
		callers:   make(map[string]*allowance),
	}
}

// Middleware rejects requests over the caller's allowance with 429 and a
// Retry-After hint. A non-positive limit disables throttling.
func (t *UploadThrottle) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if t.perMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wait, ok := t.take(callerKey(r))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "upload rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Run evicts idle callers until ctx is done.
func (t *UploadThrottle) Run(ctx context.Context) error {
	ticker := t.clk.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.evict()
		}
	}
}

// Tracked returns the number of callers currently holding an allowance.
func (t *UploadThrottle) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.callers)
}

func (t *UploadThrottle) take(key string) (time.Duration, bool) {
	now := t.clk.Now()
	rate := t.perMinute / 60

	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.callers[key]
	if !ok {
		a = &allowance{tokens: t.perMinute, seen: now}
		t.callers[key] = a
	}
	a.tokens = math.Min(t.perMinute, a.tokens+now.Sub(a.seen).Seconds()*rate)
	a.seen = now

	if a.tokens < 1 {
		return time.Duration((1 - a.tokens) / rate * float64(time.Second)), false
	}
	a.tokens--
	return 0, true
}

func (t *UploadThrottle) evict() {
	cutoff := t.clk.Now().Add(-idleAfter)

	t.mu.Lock()
	defer t.mu.Unlock()
	for key, a := range t.callers {
		if a.seen.Before(cutoff) {
			delete(t.callers, key)
		}
	}
}

func callerKey(r *http.Request) string {
	if id, ok := ctxutil.UserIDFromCtx(r.Context()); ok {
		return "user:" + id.String()
	}
	if addr := ctxutil.ClientFromCtx(r.Context()).Addr; addr != "" {
		return "addr:" + addr
	}
	return "addr:" + r.RemoteAddr
}
