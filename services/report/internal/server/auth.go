package server

import (
	"encoding/json"
	"io"
	"net/http"

	"sinapsisdata/internal/util"
	"sinapsisdata/pkg/domain"
)

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	key := "login|" + util.ClientIP(r, s.trustedProxies)
	if !s.allowRate(w, r, s.loginLimiter, key, "too many login attempts") {
		s.audit(r, "report.login", "rate_limited")
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "report.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		s.audit(r, "report.login", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "report.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, _ := bearerToken(r)
	if err := s.app.Logout(token); err != nil {
		s.audit(r, "report.logout", "fail", "user_id", user.ID, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "report.logout", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.LogoutAll(user); err != nil {
		s.audit(r, "report.logout_all", "fail", "user_id", user.ID, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "report.logout_all", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": s.app.JWKS()})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	summary, err := s.app.Usage(user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	parts := pathParts(r, "/api/jobs/")
	if len(parts) != 1 {
		notFound(w, "not found")
		return
	}
	job, err := s.app.GetJob(r.Context(), user, parts[0])
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
