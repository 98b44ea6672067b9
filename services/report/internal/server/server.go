package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"sinapsisdata/internal/ratelimit"
	"sinapsisdata/internal/util"
	"sinapsisdata/pkg/domain"
	"sinapsisdata/services/report/internal/app"
	"sinapsisdata/services/report/internal/security"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// Redis backs the rate limiters. Nil disables rate limiting.
	Redis                      redis.UniversalClient
	GenerateRateLimitPerMinute int
	LoginRateLimitPerMinute    int
	MaxUploadBytes             int64
	AllowedExtensions          []string
	TrustedProxies             *util.TrustedProxies
	CORSOrigins                []string
}

// Server exposes the report engine over HTTP.
type Server struct {
	app               *app.App
	mux               *http.ServeMux
	maxUploadBytes    int64
	allowedExtensions map[string]struct{}
	trustedProxies    *util.TrustedProxies
	corsOrigins       []string
	generateLimiter   ratelimit.Limiter
	loginLimiter      ratelimit.Limiter
	alerter           *security.Alerter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	generateLimit := cfg.GenerateRateLimitPerMinute
	if generateLimit <= 0 {
		generateLimit = 10
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	newLimiter := func(name string, limit int) (ratelimit.Limiter, error) {
		if cfg.Redis == nil {
			return ratelimit.Unlimited{}, nil
		}
		limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "sinapsis:report:ratelimit:"+name, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	generateLimiter, err := newLimiter("generate", generateLimit)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:               cfg.App,
		mux:               http.NewServeMux(),
		maxUploadBytes:    normalizeMaxBytes(cfg.MaxUploadBytes),
		allowedExtensions: normalizeExtensions(cfg.AllowedExtensions),
		trustedProxies:    cfg.TrustedProxies,
		corsOrigins:       cfg.CORSOrigins,
		generateLimiter:   generateLimiter,
		loginLimiter:      loginLimiter,
		alerter:           security.NewAlerter(cfg.Redis, "sinapsis:report:alerts"),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("report", util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.Handle("/api/auth/logout", s.authenticated(s.handleLogout))
	s.mux.Handle("/api/auth/logout-all", s.authenticated(s.handleLogoutAll))
	s.mux.Handle("/api/auth/me", s.authenticated(s.handleMe))
	s.mux.HandleFunc("/.well-known/jwks.json", s.handleJWKS)

	// projects, reports and feedback
	s.mux.Handle("/api/projects", s.authenticated(s.handleProjects))
	s.mux.Handle("/api/projects/", s.authenticated(s.handleProjectByPath))
	s.mux.Handle("/api/reports/", s.authenticated(s.handleReportByPath))
	s.mux.Handle("/api/questions/", s.authenticated(s.handleQuestionByPath))
	s.mux.Handle("/api/proposals/", s.authenticated(s.handleProposalByPath))
	s.mux.Handle("/api/jobs/", s.authenticated(s.handleJob))
	s.mux.Handle("/api/usage", s.authenticated(s.handleUsage))

	// published documents
	s.mux.HandleFunc("/r/", s.handlePublicReport)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			s.audit(r, "report.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	return s.app.UserFromToken(token)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.trustedProxies)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	alert, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Warn("security alert evaluation failed", "event", event, "err", err)
		return
	}
	if alert.Triggered {
		logger.Error("security_alert", "event", event, "outcome", outcome, "ip", ip,
			"count", alert.Count, "threshold", alert.Threshold, "window", alert.Window.String())
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, key, msg string) bool {
	decision := limiter.Allow(r.Context(), key)
	if decision.Allowed {
		return true
	}
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) isExtensionAllowed(filename string) bool {
	if len(s.allowedExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := s.allowedExtensions[ext]
	return ok
}

// pathParts splits the remainder of r.URL.Path after prefix.
func pathParts(r *http.Request, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 50 * 1024 * 1024
	}
	return value
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = []string{".csv", ".tsv", ".txt"}
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}

// logHandlerError records unexpected failures before they are masked as
// internal errors.
func logHandlerError(r *http.Request, err error) {
	util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
}
