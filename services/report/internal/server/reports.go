package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"sinapsisdata/internal/util"
	"sinapsisdata/pkg/domain"
	"sinapsisdata/pkg/generation"
	"sinapsisdata/services/report/internal/app"
)

type createReportRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
	PeriodFrom  string `json:"periodFrom"`
	PeriodTo    string `json:"periodTo"`
}

type updateReportRequest struct {
	Title            *string `json:"title"`
	Description      *string `json:"description"`
	Prompt           *string `json:"prompt"`
	ExecutiveSummary *string `json:"executiveSummary"`
	Strengths        *string `json:"strengths"`
	Opportunities    *string `json:"opportunities"`
}

type refineRequest struct {
	Prompt          string                 `json:"prompt"`
	AdditionalFiles []generation.NamedText `json:"additionalFiles"`
}

type publishRequest struct {
	IsPublic *bool `json:"isPublic"`
}

func (s *Server) handleProjectReports(w http.ResponseWriter, r *http.Request, user domain.User, slug string) {
	switch r.Method {
	case http.MethodGet:
		reports, err := s.app.ListReports(user, slug, r.URL.Query().Get("status"))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": reports, "count": len(reports)})
	case http.MethodPost:
		var req createReportRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		from, okFrom := parseDate(req.PeriodFrom)
		to, okTo := parseDate(req.PeriodTo)
		if !okFrom || !okTo {
			writeError(w, http.StatusBadRequest, "invalid period date")
			return
		}
		report, err := s.app.CreateReport(user, slug, app.NewReport{
			Title:       req.Title,
			Description: req.Description,
			Prompt:      req.Prompt,
			PeriodFrom:  from,
			PeriodTo:    to,
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, report)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUploadHTML(w http.ResponseWriter, r *http.Request, user domain.User, slug string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	file, filename, ok := s.formFile(w, r)
	if !ok {
		return
	}
	defer file.Close()
	if ext := strings.ToLower(filepath.Ext(filename)); ext != ".html" && ext != ".htm" {
		writeError(w, http.StatusBadRequest, "unsupported file type: expected .html")
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	report, err := s.app.UploadHTML(r.Context(), user, slug, filename, r.FormValue("title"), content)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// /api/reports/{id}[/generate|/refine|/files[/{fileId}]|/publish|/unpublish]
func (s *Server) handleReportByPath(w http.ResponseWriter, r *http.Request, user domain.User) {
	parts := pathParts(r, "/api/reports/")
	if len(parts) == 0 || len(parts) > 3 {
		notFound(w, "not found")
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		s.handleReport(w, r, user, id)
		return
	}
	if len(parts) == 3 {
		if parts[1] != "files" {
			notFound(w, "not found")
			return
		}
		s.handleFileLink(w, r, user, id, parts[2])
		return
	}
	switch parts[1] {
	case "generate":
		s.handleGenerate(w, r, user, id)
	case "refine":
		s.handleRefine(w, r, user, id)
	case "files":
		s.handleReportFiles(w, r, user, id)
	case "publish":
		s.handlePublish(w, r, user, id)
	case "unpublish":
		s.handleUnpublish(w, r, user, id)
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	switch r.Method {
	case http.MethodGet:
		report, err := s.app.GetReport(user, id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	case http.MethodPatch:
		var req updateReportRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		report, err := s.app.UpdateReport(user, id, app.ReportUpdate{
			Title:            req.Title,
			Description:      req.Description,
			Prompt:           req.Prompt,
			ExecutiveSummary: req.ExecutiveSummary,
			Strengths:        req.Strengths,
			Opportunities:    req.Opportunities,
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	case http.MethodDelete:
		if err := s.app.DeleteReport(r.Context(), user, id); err != nil {
			s.audit(r, "report.delete", "fail", "user_id", user.ID, "report_id", id, "reason", err.Error())
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "report.delete", "success", "user_id", user.ID, "report_id", id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.generateLimiter, "generate|"+user.ID, "too many generation requests") {
		s.audit(r, "report.generate", "rate_limited", "user_id", user.ID)
		return
	}
	jobID, err := s.app.TriggerGenerate(r.Context(), user, id)
	if err != nil {
		s.audit(r, "report.generate", "fail", "user_id", user.ID, "report_id", id, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "report.generate", "success", "user_id", user.ID, "report_id", id)
	resp := map[string]any{"success": true, "reportId": id}
	if jobID != "" {
		resp["jobId"] = jobID
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.generateLimiter, "generate|"+user.ID, "too many generation requests") {
		s.audit(r, "report.refine", "rate_limited", "user_id", user.ID)
		return
	}
	var req refineRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, s.maxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	report, err := s.app.Refine(r.Context(), user, id, req.Prompt, req.AdditionalFiles)
	if err != nil {
		s.audit(r, "report.refine", "fail", "user_id", user.ID, "report_id", id, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "report.refine", "success", "user_id", user.ID, "report_id", id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "report": report})
}

func (s *Server) handleReportFiles(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	switch r.Method {
	case http.MethodGet:
		files, err := s.app.ListFiles(user, id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": files, "count": len(files)})
	case http.MethodPost:
		file, filename, ok := s.formFile(w, r)
		if !ok {
			return
		}
		defer file.Close()
		if !s.isExtensionAllowed(filename) {
			writeError(w, http.StatusBadRequest, "unsupported file type")
			return
		}
		rec, err := s.app.UploadFile(r.Context(), user, id, filename, file, file.Size())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleFileLink(w http.ResponseWriter, r *http.Request, user domain.User, reportID, fileID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	url, ttl, err := s.app.FileDownloadURL(r.Context(), user, reportID, fileID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url, "expiresIn": int(ttl.Seconds())})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req publishRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}
	report, publicURL, err := s.app.Publish(user, id, isPublic)
	if err != nil {
		s.audit(r, "report.publish", "fail", "user_id", user.ID, "report_id", id, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "report.publish", "success", "user_id", user.ID, "report_id", id, "public", isPublic)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "report": report, "publicUrl": publicURL})
}

func (s *Server) handleUnpublish(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	report, err := s.app.Unpublish(user, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "report.unpublish", "success", "user_id", user.ID, "report_id", id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "report": report})
}

// /r/{projectSlug}/{slug}
func (s *Server) handlePublicReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}
	parts := pathParts(r, "/r/")
	if len(parts) != 2 {
		notFound(w, "not found")
		return
	}
	var viewer *domain.User
	if user, ok := s.authorize(r); ok {
		viewer = &user
	}
	report, err := s.app.PublicReport(parts[0], parts[1], viewer)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Security-Policy", util.ReportDocumentCSP)
	h.Set("X-Frame-Options", "SAMEORIGIN")
	if !report.IsPublic {
		h.Set("Cache-Control", "private, no-store")
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = io.WriteString(w, *report.HTMLContent)
	}
}

// formFile reads the multipart "file" field under the upload size limit.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request) (multipartFile, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return nil, "", false
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return nil, "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return nil, "", false
	}
	if header.Size > s.maxUploadBytes {
		file.Close()
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return nil, "", false
	}
	return sizedFile{File: file, size: header.Size}, header.Filename, true
}

// parseDate accepts RFC 3339 timestamps and plain dates. Empty is nil.
func parseDate(raw string) (*time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	return nil, false
}
