package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"sinapsisdata/internal/util"
	"sinapsisdata/pkg/domain"
	"sinapsisdata/pkg/generation"
	"sinapsisdata/pkg/store"
)

// NewReport is the input of CreateReport.
type NewReport struct {
	Title       string
	Description string
	Prompt      string
	PeriodFrom  *time.Time
	PeriodTo    *time.Time
}

// ReportUpdate carries optional edits. Nil fields are left untouched.
type ReportUpdate struct {
	Title            *string
	Description      *string
	Prompt           *string
	ExecutiveSummary *string
	Strengths        *string
	Opportunities    *string
}

// CreateReport adds a DRAFT custom report to a project.
func (a *App) CreateReport(actor domain.User, projectSlug string, in NewReport) (domain.Report, error) {
	if !canOperate(actor) {
		return domain.Report{}, ErrForbidden
	}
	project, err := a.projectForActor(actor, projectSlug)
	if err != nil {
		return domain.Report{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Report{}, ErrTitleRequired
	}
	if in.PeriodFrom != nil && in.PeriodTo != nil && in.PeriodTo.Before(*in.PeriodFrom) {
		return domain.Report{}, ErrInvalidPeriod
	}
	now := a.now()
	report := domain.Report{
		ID:          util.NewID(),
		ProjectID:   project.ID,
		Type:        domain.ReportCustom,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Prompt:      strings.TrimSpace(in.Prompt),
		Status:      domain.StatusDraft,
		PeriodFrom:  in.PeriodFrom,
		PeriodTo:    in.PeriodTo,
		CreatedByID: actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.SaveReport(report); err != nil {
		return domain.Report{}, fmt.Errorf("save report: %w", err)
	}
	return report, nil
}

// ListReports lists a project's reports, newest first. Clients only see
// READY ones.
func (a *App) ListReports(actor domain.User, projectSlug, status string) ([]domain.Report, error) {
	project, err := a.projectForActor(actor, projectSlug)
	if err != nil {
		return nil, err
	}
	var filter store.ReportFilter
	if strings.TrimSpace(status) != "" {
		st, ok := domain.ParseReportStatus(status)
		if !ok {
			return nil, ErrInvalidStatus
		}
		filter.Status = st
	}
	if actor.Role == domain.RoleClient {
		if filter.Status != "" && filter.Status != domain.StatusReady {
			return []domain.Report{}, nil
		}
		filter.Status = domain.StatusReady
	}
	reports, err := a.store.ListReports(project.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

func (a *App) GetReport(actor domain.User, reportID string) (domain.Report, error) {
	report, _, err := a.reportForActor(actor, reportID)
	return report, err
}

// UpdateReport applies title, description, prompt and overlay edits.
func (a *App) UpdateReport(actor domain.User, reportID string, in ReportUpdate) (domain.Report, error) {
	report, _, err := a.editableReport(actor, reportID)
	if err != nil {
		return domain.Report{}, err
	}
	if a.busy(report) {
		return domain.Report{}, ErrReportBusy
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return domain.Report{}, ErrTitleRequired
		}
		report.Title = title
	}
	if in.Description != nil {
		report.Description = strings.TrimSpace(*in.Description)
	}
	if in.Prompt != nil {
		report.Prompt = strings.TrimSpace(*in.Prompt)
	}
	if in.ExecutiveSummary != nil {
		report.ExecutiveSummary = strings.TrimSpace(*in.ExecutiveSummary)
	}
	if in.Strengths != nil {
		report.Strengths = strings.TrimSpace(*in.Strengths)
	}
	if in.Opportunities != nil {
		report.Opportunities = strings.TrimSpace(*in.Opportunities)
	}
	report.UpdatedAt = a.now()
	if err := a.store.SaveReport(report); err != nil {
		return domain.Report{}, fmt.Errorf("save report: %w", err)
	}
	return report, nil
}

// DeleteReport removes a report, its feedback records and stored objects.
// Admins and project owners or consultants may delete.
func (a *App) DeleteReport(ctx context.Context, actor domain.User, reportID string) error {
	report, project, err := a.editableReport(actor, reportID)
	if err != nil {
		return err
	}
	member, err := a.membership(actor, project.ID)
	if err != nil {
		return err
	}
	if member.Role != domain.MemberOwner && member.Role != domain.MemberConsultant {
		return ErrForbidden
	}
	files, err := a.store.ListFiles(report.ID)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	if err := a.store.DeleteReport(report.ID); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	keys := make([]string, 0, len(files)+1)
	for _, f := range files {
		keys = append(keys, f.StoragePath)
	}
	if report.AIMetadata != nil && report.AIMetadata.Uploaded() {
		keys = append(keys, uploadedHTMLKey(report.ID))
	}
	for _, key := range keys {
		if err := a.objects.Delete(ctx, key); err != nil {
			slog.Warn("delete stored object", "report_id", report.ID, "key", key, "err", err)
		}
	}
	return nil
}

// ListFiles returns the data files attached to a report.
func (a *App) ListFiles(actor domain.User, reportID string) ([]domain.ReportFile, error) {
	report, _, err := a.editableReport(actor, reportID)
	if err != nil {
		return nil, err
	}
	return a.store.ListFiles(report.ID)
}

// fileLinkTTL bounds presigned download links for data files.
const fileLinkTTL = 15 * time.Minute

// FileDownloadURL returns a short-lived link to a stored data file.
func (a *App) FileDownloadURL(ctx context.Context, actor domain.User, reportID, fileID string) (string, time.Duration, error) {
	files, err := a.ListFiles(actor, reportID)
	if err != nil {
		return "", 0, err
	}
	for _, f := range files {
		if f.ID != fileID {
			continue
		}
		url, err := a.objects.PresignGet(ctx, f.StoragePath, fileLinkTTL)
		if err != nil {
			return "", 0, fmt.Errorf("presign file: %w", err)
		}
		return url, fileLinkTTL, nil
	}
	return "", 0, ErrFileNotFound
}

// UploadFile stores a data file for a later generation. Parsing happens
// when the generation job runs.
func (a *App) UploadFile(ctx context.Context, actor domain.User, reportID, filename string, r io.Reader, size int64) (domain.ReportFile, error) {
	if strings.TrimSpace(filename) == "" || r == nil {
		return domain.ReportFile{}, ErrFileRequired
	}
	report, _, err := a.editableReport(actor, reportID)
	if err != nil {
		return domain.ReportFile{}, err
	}
	if report.Type != domain.ReportCustom {
		return domain.ReportFile{}, ErrNotCustomReport
	}
	id := util.NewID()
	key := buildStorageKey(report.ID, id, filename)
	contentType := contentTypeFor(filename)
	if err := a.objects.Put(ctx, key, r, size, contentType); err != nil {
		return domain.ReportFile{}, fmt.Errorf("save file: %w", err)
	}
	file := domain.ReportFile{
		ID:          id,
		ReportID:    report.ID,
		Filename:    filepath.Base(filename),
		MimeType:    contentType,
		Size:        size,
		StoragePath: key,
		CreatedAt:   a.now(),
	}
	if err := a.store.SaveFile(file); err != nil {
		_ = a.objects.Delete(ctx, key)
		return domain.ReportFile{}, fmt.Errorf("save file record: %w", err)
	}
	return file, nil
}

// UploadHTML creates a READY report from a finished HTML document. Its
// usage is the zero-cost upload marker.
func (a *App) UploadHTML(ctx context.Context, actor domain.User, projectSlug, filename, title string, content []byte) (domain.Report, error) {
	if !canOperate(actor) {
		return domain.Report{}, ErrForbidden
	}
	project, err := a.projectForActor(actor, projectSlug)
	if err != nil {
		return domain.Report{}, err
	}
	doc := string(content)
	if strings.TrimSpace(doc) == "" {
		return domain.Report{}, ErrFileRequired
	}
	if !generation.LooksLikeHTML(doc) {
		return domain.Report{}, ErrInvalidHTML
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = generation.DocumentTitle(doc)
	}
	if title == "" {
		title = titleFromName(filename)
	}

	now := a.now()
	usage := domain.UploadedMetadata()
	report := domain.Report{
		ID:          util.NewID(),
		ProjectID:   project.ID,
		Type:        domain.ReportCustom,
		Title:       title,
		Prompt:      "Uploaded HTML document",
		Status:      domain.StatusReady,
		HTMLContent: &doc,
		AIMetadata:  &usage,
		CreatedByID: actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	key := uploadedHTMLKey(report.ID)
	if err := a.objects.Put(ctx, key, bytes.NewReader(content), int64(len(content)), "text/html; charset=utf-8"); err != nil {
		return domain.Report{}, fmt.Errorf("save html: %w", err)
	}
	if err := a.store.SaveReport(report); err != nil {
		_ = a.objects.Delete(ctx, key)
		return domain.Report{}, fmt.Errorf("save report: %w", err)
	}
	return report, nil
}

// Publish exposes a READY report at /r/{projectSlug}/{slug}. The slug is
// assigned on first publish and kept afterwards.
func (a *App) Publish(actor domain.User, reportID string, isPublic bool) (domain.Report, string, error) {
	report, project, err := a.editableReport(actor, reportID)
	if err != nil {
		return domain.Report{}, "", err
	}
	if report.Status != domain.StatusReady {
		return domain.Report{}, "", ErrReportNotReady
	}
	if report.Slug == "" {
		slug, err := util.UniqueSlug(util.Slugify(report.Title), func(candidate string) (bool, error) {
			return a.store.ReportSlugTaken(project.ID, candidate)
		})
		if err != nil {
			return domain.Report{}, "", fmt.Errorf("assign slug: %w", err)
		}
		report.Slug = slug
	}
	now := a.now()
	if !report.IsPublished || report.PublishedAt == nil {
		report.PublishedAt = &now
	}
	report.IsPublished = true
	report.IsPublic = isPublic
	report.UpdatedAt = now
	if err := a.store.SaveReport(report); err != nil {
		return domain.Report{}, "", fmt.Errorf("save report: %w", err)
	}
	return report, PublicURL(project.Slug, report.Slug), nil
}

// Unpublish hides a report again. The slug is kept for a later publish.
func (a *App) Unpublish(actor domain.User, reportID string) (domain.Report, error) {
	report, _, err := a.editableReport(actor, reportID)
	if err != nil {
		return domain.Report{}, err
	}
	report.IsPublished = false
	report.IsPublic = false
	report.PublishedAt = nil
	report.UpdatedAt = a.now()
	if err := a.store.SaveReport(report); err != nil {
		return domain.Report{}, fmt.Errorf("save report: %w", err)
	}
	return report, nil
}

// PublicReport resolves a published document. Non-public reports need a
// viewer who is an admin or a project member.
func (a *App) PublicReport(projectSlug, slug string, viewer *domain.User) (domain.Report, error) {
	project, ok, err := a.store.GetProjectBySlug(projectSlug)
	if err != nil {
		return domain.Report{}, fmt.Errorf("get project: %w", err)
	}
	if !ok {
		return domain.Report{}, ErrReportNotFound
	}
	report, ok, err := a.store.GetPublishedReport(project.ID, slug)
	if err != nil {
		return domain.Report{}, fmt.Errorf("get report: %w", err)
	}
	if !ok || report.HTMLContent == nil {
		return domain.Report{}, ErrReportNotFound
	}
	if !report.IsPublic {
		if viewer == nil {
			return domain.Report{}, ErrUnauthorized
		}
		if _, err := a.membership(*viewer, project.ID); err != nil {
			return domain.Report{}, err
		}
	}
	return report, nil
}

// PublicURL is the path a published report is served at.
func PublicURL(projectSlug, reportSlug string) string {
	return "/r/" + projectSlug + "/" + reportSlug
}

func uploadedHTMLKey(reportID string) string {
	return path.Join("reports", reportID, "uploaded.html")
}

func buildStorageKey(reportID, fileID, filename string) string {
	name := sanitizeFilename(filepath.Base(filename))
	if name == "" {
		name = "data.csv"
	}
	return path.Join("reports", reportID, fileID+"-"+name)
}

func contentTypeFor(filename string) string {
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return contentType
}

func titleFromName(name string) string {
	base := filepath.Base(name)
	title := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if title == "" || title == "." {
		return "Uploaded report"
	}
	return title
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "._")
}
