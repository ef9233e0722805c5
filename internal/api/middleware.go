package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/erosion-api/internal/analysis"
	"github.com/sells-group/erosion-api/internal/observability"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// requestLogger assigns a request ID, stores a request-scoped logger in the
// context and logs each finished request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		log := zap.L().With(zap.String("request_id", id))
		ctx := observability.WithLogger(r.Context(), log)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Int("bytes", ww.BytesWritten()),
		}
		switch {
		case status >= 500:
			log.Error("request completed", fields...)
		case status >= 400:
			log.Warn("request completed", fields...)
		default:
			log.Info("request completed", fields...)
		}
	})
}

// recoverer turns a handler panic into an InternalAssemblyError response.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				observability.Logger(r.Context()).Error("handler panic",
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				writeError(w, analysis.NewError(analysis.KindInternalAssembly,
					"An unexpected error occurred. Please try again or contact support.", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimiter applies a token bucket per client address.
type rateLimiter struct {
	limit rate.Limit
	burst int
	every time.Duration

	mu          sync.Mutex
	visitors    map[string]*visitor
	maxVisitors int
	now         func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// defaultMaxVisitors bounds the limiter table.
const defaultMaxVisitors = 10000

func newRateLimiter(perHour, burst int) *rateLimiter {
	every := time.Hour / time.Duration(max(perHour, 1))
	if burst <= 0 {
		burst = max(perHour, 1)
	}
	return &rateLimiter{
		limit:       rate.Every(every),
		burst:       burst,
		every:       every,
		visitors:    make(map[string]*visitor),
		maxVisitors: defaultMaxVisitors,
		now:         time.Now,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		if len(rl.visitors) >= rl.maxVisitors {
			rl.prune(now)
		}
		for len(rl.visitors) > 0 && len(rl.visitors) >= rl.maxVisitors {
			rl.evictOldest()
		}
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// prune drops visitors idle long enough for their bucket to have refilled.
func (rl *rateLimiter) prune(now time.Time) {
	idle := rl.every * time.Duration(rl.burst)
	for k, v := range rl.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(rl.visitors, k)
		}
	}
}

// evictOldest drops the least recently seen visitor.
func (rl *rateLimiter) evictOldest() {
	var (
		oldest string
		seen   time.Time
		found  bool
	)
	for k, v := range rl.visitors {
		if !found || v.lastSeen.Before(seen) {
			oldest, seen, found = k, v.lastSeen, true
		}
	}
	delete(rl.visitors, oldest)
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientKey(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.every.Seconds())+1))
			writeError(w, analysis.NewError(analysis.KindRateLimited, "Rate limit exceeded. Please try again later.", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
