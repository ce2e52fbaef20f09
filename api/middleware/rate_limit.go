package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dropone-app/dropone-backend/api/responses"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
)

type windowCounter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy throttles a public route per client IP and, optionally,
// per value of one top-level JSON string field such as store_slug.
type RateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int64
	field      string
	fieldLimit int64
}

// NewRateLimitPolicy builds a policy. A zero limit disables that counter.
func NewRateLimitPolicy(name string, window time.Duration, ipLimit int, field string, fieldLimit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "public"
	}
	p := RateLimitPolicy{name: name, window: window, ipLimit: int64(ipLimit)}
	if field = strings.TrimSpace(field); field != "" && fieldLimit > 0 {
		p.field, p.fieldLimit = field, int64(fieldLimit)
	}
	return p
}

func (p RateLimitPolicy) active() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.fieldLimit > 0)
}

// RateLimit answers 429 once a counter passes its limit. When the counter
// store is unreachable requests go through and a warning is logged.
func RateLimit(policy RateLimitPolicy, counter windowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.active() || counter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if policy.ipLimit > 0 {
				if ip := clientIP(r); ip != "" {
					scope := policy.name + ":ip:" + ip
					if !admit(ctx, counter, logg, scope, policy.ipLimit, policy.window) {
						rejectRateLimited(ctx, logg, w, policy, "ip", ip)
						return
					}
				}
			}

			if policy.fieldLimit > 0 {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				if digest := fieldDigest(body, policy.field); digest != "" {
					scope := policy.name + ":" + policy.field + ":" + digest
					if !admit(ctx, counter, logg, scope, policy.fieldLimit, policy.window) {
						rejectRateLimited(ctx, logg, w, policy, policy.field, digest)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func admit(ctx context.Context, counter windowCounter, logg *logger.Logger, scope string, limit int64, window time.Duration) bool {
	allowed, _, err := counter.FixedWindowAllow(ctx, scope, limit, window)
	if err != nil {
		if logg != nil {
			logg.Warn(logg.WithField(ctx, "scope", scope), "rate limiter unavailable, admitting request")
		}
		return true
	}
	return allowed
}

func rejectRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy RateLimitPolicy, by, value string) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":         policy.name,
			"limited_by":     by,
			"value":          value,
			"window_seconds": int(policy.window.Seconds()),
		}), "request rate limited")
	}
	w.Header().Set("Retry-After", retryAfter(policy.window))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, policy.name+" rate limit exceeded"))
}

func retryAfter(window time.Duration) string {
	secs := int64(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// fieldDigest hashes the normalized field value so raw slugs or emails never
// end up in Redis keys.
func fieldDigest(body []byte, field string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	var value string
	if err := json.Unmarshal(fields[field], &value); err != nil {
		return ""
	}
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:16])
}
