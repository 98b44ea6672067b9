package server

import (
	"encoding/json"
	"io"
	"net/http"

	"sinapsisdata/pkg/domain"
	"sinapsisdata/services/report/internal/app"
)

type projectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	AIContext   *string `json:"aiContext"`
	Status      *string `json:"status"`
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		projects, err := s.app.ListProjects(user)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": projects, "count": len(projects)})
	case http.MethodPost:
		var req projectRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		project, err := s.app.CreateProject(user, app.NewProject{
			Name:        deref(req.Name),
			Description: deref(req.Description),
			AIContext:   deref(req.AIContext),
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, project)
	default:
		methodNotAllowed(w)
	}
}

// /api/projects/{slug}[/reports[/upload]|/overview|/questions|/proposals]
func (s *Server) handleProjectByPath(w http.ResponseWriter, r *http.Request, user domain.User) {
	parts := pathParts(r, "/api/projects/")
	if len(parts) == 0 {
		notFound(w, "not found")
		return
	}
	slug := parts[0]
	switch {
	case len(parts) == 1:
		s.handleProject(w, r, user, slug)
	case len(parts) == 2 && parts[1] == "reports":
		s.handleProjectReports(w, r, user, slug)
	case len(parts) == 3 && parts[1] == "reports" && parts[2] == "upload":
		s.handleUploadHTML(w, r, user, slug)
	case len(parts) == 2 && parts[1] == "overview":
		s.handleOverview(w, r, user, slug)
	case len(parts) == 2 && parts[1] == "questions":
		s.handleListQuestions(w, r, user, slug)
	case len(parts) == 2 && parts[1] == "proposals":
		s.handleListProposals(w, r, user, slug)
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request, user domain.User, slug string) {
	switch r.Method {
	case http.MethodGet:
		project, err := s.app.GetProject(user, slug)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case http.MethodPatch:
		var req projectRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		project, err := s.app.UpdateProject(user, slug, app.ProjectUpdate{
			Name:        req.Name,
			Description: req.Description,
			AIContext:   req.AIContext,
			Status:      req.Status,
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request, user domain.User, slug string) {
	switch r.Method {
	case http.MethodGet:
		overview, err := s.app.GetOverview(user, slug)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"overview": overview})
	case http.MethodPost:
		if !s.allowRate(w, r, s.generateLimiter, "generate|"+user.ID, "too many generation requests") {
			s.audit(r, "report.overview", "rate_limited", "user_id", user.ID)
			return
		}
		overview, jobID, err := s.app.TriggerOverview(r.Context(), user, slug)
		if err != nil {
			s.audit(r, "report.overview", "fail", "user_id", user.ID, "reason", err.Error())
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "report.overview", "success", "user_id", user.ID, "report_id", overview.ID)
		resp := map[string]any{"success": true, "overviewId": overview.ID}
		if jobID != "" {
			resp["jobId"] = jobID
		}
		writeJSON(w, http.StatusAccepted, resp)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request, user domain.User, slug string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.ListQuestions(user, slug, r.URL.Query().Get("status"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request, user domain.User, slug string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.ListProposals(user, slug, r.URL.Query().Get("status"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
