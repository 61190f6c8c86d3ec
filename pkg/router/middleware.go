package router

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/cors"

	"github.com/gabrielmiguelok/liveintake/pkg/logging"
	"github.com/gabrielmiguelok/liveintake/pkg/metrics"
)

// Recovery middleware recovers from panics in HTTP handlers.
func Recovery(m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					m.RecordPanic()
					logging.L(r.Context()).Error("handler panic",
						logging.String("panic", fmt.Sprint(rec)),
						logging.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// CORS allows the listed origins to read the read-only endpoints
// (health and metrics) from other sites.
func CORS(allowedOrigins []string) Middleware {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})
	return c.Handler
}

// SecureHeadersConfig configures security headers.
type SecureHeadersConfig struct {
	// FrameOptions controls X-Frame-Options header.
	// Default: "DENY"
	FrameOptions string

	// ContentTypeNosniff enables X-Content-Type-Options: nosniff.
	// Default: true
	ContentTypeNosniff bool

	// XSSProtection enables X-XSS-Protection header.
	// Default: true
	XSSProtection bool

	// ReferrerPolicy sets the Referrer-Policy header.
	// Default: "strict-origin-when-cross-origin"
	ReferrerPolicy string

	// PermissionsPolicy sets the Permissions-Policy header.
	// Default: restricts geolocation, microphone, camera
	PermissionsPolicy string

	// HSTSEnabled enables Strict-Transport-Security header.
	// Only set when request is over HTTPS.
	// Default: true
	HSTSEnabled bool

	// HSTSMaxAge is the max-age for HSTS in seconds.
	// Default: 31536000 (1 year)
	HSTSMaxAge int

	// HSTSIncludeSubDomains includes subdomains in HSTS.
	// Default: true
	HSTSIncludeSubDomains bool

	// ContentSecurityPolicy sets the CSP header.
	// Default: secure policy with nonce support
	ContentSecurityPolicy string

	// CSPNonceEnabled enables CSP nonce for scripts/styles.
	// Default: true
	CSPNonceEnabled bool
}

// DefaultSecureHeadersConfig returns secure default configuration.
func DefaultSecureHeadersConfig() SecureHeadersConfig {
	return SecureHeadersConfig{
		FrameOptions:          "DENY",
		ContentTypeNosniff:    true,
		XSSProtection:         true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "geolocation=(), microphone=(), camera=()",
		HSTSEnabled:           true,
		HSTSMaxAge:            31536000, // 1 year
		HSTSIncludeSubDomains: true,
		ContentSecurityPolicy: "", // generated with nonce
		CSPNonceEnabled:       true,
	}
}

// cspNonceKey is the context key for CSP nonce.
type cspNonceKey struct{}

// GetCSPNonce retrieves the CSP nonce from context.
func GetCSPNonce(ctx context.Context) string {
	if nonce, ok := ctx.Value(cspNonceKey{}).(string); ok {
		return nonce
	}
	return ""
}

// generateNonce generates a random nonce for CSP.
func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.StdEncoding.EncodeToString(b)
}

// SecureHeaders middleware adds security headers.
func SecureHeaders() Middleware {
	return SecureHeadersWithConfig(DefaultSecureHeadersConfig())
}

// SecureHeadersWithConfig creates middleware with custom config.
func SecureHeadersWithConfig(config SecureHeadersConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent clickjacking - use DENY instead of SAMEORIGIN for better security
			if config.FrameOptions != "" {
				w.Header().Set("X-Frame-Options", config.FrameOptions)
			}

			// Prevent MIME sniffing
			if config.ContentTypeNosniff {
				w.Header().Set("X-Content-Type-Options", "nosniff")
			}

			// XSS protection (legacy, but still useful for older browsers)
			if config.XSSProtection {
				w.Header().Set("X-XSS-Protection", "1; mode=block")
			}

			// Referrer policy
			if config.ReferrerPolicy != "" {
				w.Header().Set("Referrer-Policy", config.ReferrerPolicy)
			}

			// Permissions policy (replaces Feature-Policy)
			if config.PermissionsPolicy != "" {
				w.Header().Set("Permissions-Policy", config.PermissionsPolicy)
			}

			// HSTS - only for HTTPS
			if config.HSTSEnabled && (r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https") {
				hstsValue := "max-age=" + strconv.Itoa(config.HSTSMaxAge)
				if config.HSTSIncludeSubDomains {
					hstsValue += "; includeSubDomains"
				}
				w.Header().Set("Strict-Transport-Security", hstsValue)
			}

			// Content Security Policy with nonce
			ctx := r.Context()
			if config.CSPNonceEnabled {
				nonce := generateNonce()
				ctx = context.WithValue(ctx, cspNonceKey{}, nonce)

				csp := config.ContentSecurityPolicy
				if csp == "" {
					csp = "default-src 'self'; " +
						"script-src 'self' 'nonce-" + nonce + "'; " +
						"style-src 'self' 'nonce-" + nonce + "'; " +
						"img-src 'self' data: https:; " +
						"connect-src 'self' wss:; " +
						"font-src 'self'; " +
						"frame-ancestors 'none'; " +
						"base-uri 'self'; " +
						"form-action 'self'"
				}
				w.Header().Set("Content-Security-Policy", csp)
			} else if config.ContentSecurityPolicy != "" {
				w.Header().Set("Content-Security-Policy", config.ContentSecurityPolicy)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit limits requests per client IP with a token bucket. It guards
// the websocket endpoint against reconnect storms.
func RateLimit(requestsPerSecond int) Middleware {
	// Simple token bucket per IP
	buckets := make(map[string]*tokenBucket)
	var mu sync.Mutex

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)

			mu.Lock()
			bucket, exists := buckets[ip]
			if !exists {
				bucket = newTokenBucket(requestsPerSecond)
				buckets[ip] = bucket
			}
			mu.Unlock()

			if !bucket.Allow() {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	// Check X-Real-IP
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type tokenBucket struct {
	tokens   int
	maxRate  int
	lastFill time.Time
	mu       sync.Mutex
}

func newTokenBucket(rate int) *tokenBucket {
	return &tokenBucket{
		tokens:   rate,
		maxRate:  rate,
		lastFill: time.Now(),
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	// Refill tokens
	now := time.Now()
	elapsed := now.Sub(tb.lastFill)
	refill := int(elapsed.Seconds()) * tb.maxRate
	if refill > 0 {
		tb.tokens = min(tb.tokens+refill, tb.maxRate)
		tb.lastFill = now
	}

	if tb.tokens <= 0 {
		return false
	}

	tb.tokens--
	return true
}
