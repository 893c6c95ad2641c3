package auth

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/intercooperative/agoranet/pkg/agoraerr"
	"github.com/intercooperative/agoranet/pkg/logger"
)

// jsonError writes a JSON-shaped error body, matching the {"error": "..."}
// envelope the rest of the HTTP surface uses.
func jsonError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// SecConfig mirrors the security-related configuration driving
// authentication, CORS and rate limiting behavior.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
}

// unauthenticatedPaths are reachable without a bearer token regardless of
// method (liveness/readiness probes).
var unauthenticatedPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/health":  true,
}

// Middleware builds the request gate: CORS, IP whitelist, bearer-token
// verification and per-subject rate limiting, in that order. On success the
// verified subject DID is attached to the request context for handlers and
// Authorize to read via SubjectFromContext.
func Middleware(cfg SecConfig, v *Verifier) func(http.Handler) http.Handler {
	limiters := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.LogRequest(r)

			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,PATCH,OPTIONS")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if len(cfg.IPWhitelist) > 0 {
				ip := clientIP(r)
				if !ipWhitelisted(ip, cfg.IPWhitelist) {
					jsonError(w, http.StatusForbidden, "forbidden")
					logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", r.URL.Path)
					return
				}
			}

			if unauthenticatedPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			// Per spec.md §6, reads (GET) are public; only mutating verbs
			// (POST/DELETE/PUT/PATCH) require a verified bearer identity.
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				jsonError(w, http.StatusUnauthorized, "missing bearer token")
				logger.Warn("request_unauthorized", "reason", "missing_token", "path", r.URL.Path)
				return
			}
			identity, err := v.Verify(token)
			if err != nil {
				jsonError(w, http.StatusUnauthorized, err.Error())
				logger.Warn("request_unauthorized", "reason", agoraerr.KindOf(err).String(), "path", r.URL.Path)
				return
			}

			if !limiters.Allow(identity.SubjectDID) {
				jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
				logger.Warn("rate_limited", "subject", identity.SubjectDID, "path", r.URL.Path)
				return
			}

			r = r.WithContext(withSubject(r.Context(), identity.SubjectDID))
			logger.Info("request_allowed", "method", r.Method, "path", r.URL.Path, "subject", identity.SubjectDID)
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[len("bearer "):])
	}
	return ""
}

func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}
