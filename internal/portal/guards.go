package portal

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// LoginLimitConfig configures the UAM login attempt limiter (spec.md
// §4.3): 5 attempts per 15 minutes, then a 30-minute block.
type LoginLimitConfig struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// DefaultLoginLimitConfig returns spec.md §4.3's thresholds.
func DefaultLoginLimitConfig() LoginLimitConfig {
	return LoginLimitConfig{MaxAttempts: 5, Window: 15 * time.Minute, BlockDuration: 30 * time.Minute}
}

// LoginLimiter is a Redis-backed fixed-window limiter keyed by client IP
// or MAC, shared across cloud replicas (unlike internal/middleware's
// in-process token bucket, which only protects a single instance).
type LoginLimiter struct {
	cfg LoginLimitConfig
	rdb *redis.Client
}

// NewLoginLimiter constructs a LoginLimiter.
func NewLoginLimiter(cfg LoginLimitConfig, rdb *redis.Client) *LoginLimiter {
	return &LoginLimiter{cfg: cfg, rdb: rdb}
}

// Allow reports whether key (typically "ip:"+sourceIP or "mac:"+callingStationID)
// may attempt another login, and if not, how long until it may try again.
func (l *LoginLimiter) Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error) {
	blockKey := "portal:uam:block:" + key
	ttl, err := l.rdb.TTL(ctx, blockKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("check block: %w", err)
	}
	if ttl > 0 {
		return false, ttl, nil
	}

	attemptsKey := "portal:uam:attempts:" + key
	count, err := l.rdb.Incr(ctx, attemptsKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr attempts: %w", err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, attemptsKey, l.cfg.Window).Err(); err != nil {
			return false, 0, fmt.Errorf("set attempts ttl: %w", err)
		}
	}
	if count > int64(l.cfg.MaxAttempts) {
		if err := l.rdb.Set(ctx, blockKey, 1, l.cfg.BlockDuration).Err(); err != nil {
			return false, 0, fmt.Errorf("set block: %w", err)
		}
		return false, l.cfg.BlockDuration, nil
	}
	return true, 0, nil
}

// dangerousQueryParamPrefixes: query parameters whose names start with one
// of these are stripped from any echoed or redirected URL regardless of
// allow-list configuration (spec.md §4.3's open-redirect guard).
var dangerousQueryParamPrefixes = []string{"on", "javascript"}

// ValidateRedirectURL enforces spec.md §4.3's open-redirect guards: http/https
// scheme only, 2048-byte cap, dangerous query parameters stripped, and
// (when allowedDomains is non-empty) the host must match or be a subdomain
// of one of them. Returns the sanitized URL string.
func ValidateRedirectURL(raw string, allowedDomains []string) (string, error) {
	if len(raw) > 2048 {
		return "", fmt.Errorf("redirect url exceeds 2048 bytes")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("disallowed redirect scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("redirect url missing host")
	}

	if len(allowedDomains) > 0 {
		host := strings.ToLower(u.Hostname())
		allowed := false
		for _, d := range allowedDomains {
			d = strings.ToLower(d)
			if host == d || strings.HasSuffix(host, "."+d) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", fmt.Errorf("redirect host %q not in allow-list", host)
		}
	}

	q := u.Query()
	for param := range q {
		lower := strings.ToLower(param)
		for _, prefix := range dangerousQueryParamPrefixes {
			if strings.HasPrefix(lower, prefix) {
				q.Del(param)
				break
			}
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// ValidateUAMIP enforces spec.md §4.3's router-IP validation guard: uamip
// must be a private IPv4 address unless allowPublic is set (testing
// override); IPv6 is refused (see ValidateUAMIPv6).
func ValidateUAMIP(uamip string, allowPublic bool) error {
	return ValidateUAMIPv6(uamip, allowPublic, false)
}

// ValidateUAMIPv6 is ValidateUAMIP with control over whether an IPv6
// address is accepted at all; most deployed sites are IPv4-only, so the
// default is to refuse IPv6 outright rather than rely on the private-range
// check alone.
func ValidateUAMIPv6(uamip string, allowPublic, allowIPv6 bool) error {
	if allowPublic {
		return nil
	}
	ip := parseIP(uamip)
	if ip == nil {
		return fmt.Errorf("invalid uamip %q", uamip)
	}
	if !allowIPv6 && ip.To4() == nil {
		return fmt.Errorf("uamip %q is IPv6, not permitted for this deployment", uamip)
	}
	if !isPrivateHostAddress(ip) {
		return fmt.Errorf("uamip %q is not a private address", uamip)
	}
	return nil
}

// LoopDetectorConfig configures redirect-loop detection.
type LoopDetectorConfig struct {
	Window      time.Duration
	MaxAttempts int
}

// DefaultLoopDetectorConfig returns spec.md §4.3's thresholds: >5 attempts
// on the same normalized path within a 30s window is a loop.
func DefaultLoopDetectorConfig() LoopDetectorConfig {
	return LoopDetectorConfig{Window: 30 * time.Second, MaxAttempts: 5}
}

// LoopDetector tracks, per session-id, how many times the same normalized
// redirect path has been attempted recently. It is process-local: a false
// negative if a session's requests land on different replicas only delays
// detection, it doesn't defeat it, since the loop keeps retrying.
type LoopDetector struct {
	cfg LoopDetectorConfig
	mu  sync.Mutex
	hit map[string][]time.Time
}

// NewLoopDetector constructs a LoopDetector and starts its idle-entry
// cleanup goroutine, mirroring internal/middleware/ratelimit.go's
// TokenBucket cleanup idiom.
func NewLoopDetector(cfg LoopDetectorConfig) *LoopDetector {
	d := &LoopDetector{cfg: cfg, hit: make(map[string][]time.Time)}
	go d.cleanup()
	return d
}

// Record logs an attempt at path for sessionID and reports whether the
// loop threshold has been exceeded.
func (d *LoopDetector) Record(sessionID, path string) bool {
	key := sessionID + "|" + normalizeLoopPath(path)
	now := time.Now()
	cutoff := now.Add(-d.cfg.Window)

	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.hit[key][:0]
	for _, t := range d.hit[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	d.hit[key] = kept

	return len(kept) > d.cfg.MaxAttempts
}

func (d *LoopDetector) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-d.cfg.Window)
		d.mu.Lock()
		for key, times := range d.hit {
			if len(times) == 0 || times[len(times)-1].Before(cutoff) {
				delete(d.hit, key)
			}
		}
		d.mu.Unlock()
	}
}

func normalizeLoopPath(path string) string {
	if u, err := url.Parse(path); err == nil {
		return u.Path
	}
	return path
}

// SecurityHeaders returns an Echo middleware emitting the CSP and hardening
// headers spec.md §4.3 requires on every portal response.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}
