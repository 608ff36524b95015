package http

import (
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"microlend/logging"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// clientIP returns the peer address unless the peer is a trusted proxy, in
// which case it walks X-Forwarded-For from the right and returns the first
// hop that is not itself trusted.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !isTrusted(peer, trusted) {
		return peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		client = hop
		if !isTrusted(hop, trusted) {
			break
		}
	}
	return client
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// RateLimitMiddleware keys limiter by client address. X-Forwarded-For is
// only read from peers within trustedProxies.
func RateLimitMiddleware(limiter *RateLimiter, trustedProxies []netip.Prefix) mux.MiddlewareFunc {
	logger := logging.L().Named("ratelimit")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustedProxies)

			allowed, retryAfter := limiter.Allow(ip)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Capacity()))
			if !allowed {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
				logger.Debug("rate limit exceeded", zap.String("client", ip), zap.String("path", r.URL.Path))
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
