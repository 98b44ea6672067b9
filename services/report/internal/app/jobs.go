package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sinapsisdata/internal/util"
	"sinapsisdata/pkg/ai"
	"sinapsisdata/pkg/domain"
	"sinapsisdata/pkg/generation"
	"sinapsisdata/pkg/queue"
	"sinapsisdata/pkg/store"
	"sinapsisdata/pkg/tabular"
)

const rawExcerptLen = 500

// TriggerGenerate moves a CUSTOM report to PROCESSING and dispatches its
// generation. Input problems are reported before any state changes.
func (a *App) TriggerGenerate(ctx context.Context, actor domain.User, reportID string) (string, error) {
	report, _, err := a.editableReport(actor, reportID)
	if err != nil {
		return "", err
	}
	if report.Type != domain.ReportCustom {
		return "", ErrNotCustomReport
	}
	if a.busy(report) {
		return "", ErrReportBusy
	}
	if strings.TrimSpace(report.Prompt) == "" {
		return "", ErrPromptRequired
	}
	files, err := a.store.ListFiles(report.ID)
	if err != nil {
		return "", fmt.Errorf("list files: %w", err)
	}
	if len(files) == 0 {
		return "", ErrNoData
	}
	return a.start(ctx, report.ID, queue.KindGenerate)
}

// TriggerOverview finds or creates the project's single overview and
// dispatches its generation.
func (a *App) TriggerOverview(ctx context.Context, actor domain.User, projectSlug string) (domain.Report, string, error) {
	if !canOperate(actor) {
		return domain.Report{}, "", ErrForbidden
	}
	project, err := a.projectForActor(actor, projectSlug)
	if err != nil {
		return domain.Report{}, "", err
	}
	ready, err := a.store.ListReports(project.ID, store.ReportFilter{Type: domain.ReportCustom, Status: domain.StatusReady})
	if err != nil {
		return domain.Report{}, "", fmt.Errorf("list reports: %w", err)
	}
	if len(ready) == 0 {
		return domain.Report{}, "", ErrNoReadyReports
	}

	now := a.now()
	overview, created, err := a.store.FindOrCreateOverview(domain.Report{
		ID:          util.NewID(),
		ProjectID:   project.ID,
		Type:        domain.ReportOverview,
		Title:       "Overview - " + project.Name,
		Description: "Executive dashboard consolidating every report and the feedback of the project",
		Prompt:      "Automatic overview generation",
		Status:      domain.StatusDraft,
		CreatedByID: actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Report{}, "", fmt.Errorf("find or create overview: %w", err)
	}
	if !created && a.busy(overview) {
		return domain.Report{}, "", ErrReportBusy
	}
	jobID, err := a.start(ctx, overview.ID, queue.KindOverview)
	if err != nil {
		return domain.Report{}, "", err
	}
	overview.Status = domain.StatusProcessing
	overview.HTMLContent = nil
	overview.ErrorMessage = ""
	return overview, jobID, nil
}

// GetOverview returns the project's overview, or nil when none exists or
// the actor may not see it yet.
func (a *App) GetOverview(actor domain.User, projectSlug string) (*domain.Report, error) {
	project, err := a.projectForActor(actor, projectSlug)
	if err != nil {
		return nil, err
	}
	found, err := a.store.ListReports(project.ID, store.ReportFilter{Type: domain.ReportOverview})
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	overview := found[0]
	if actor.Role == domain.RoleClient && overview.Status != domain.StatusReady {
		return nil, nil
	}
	return &overview, nil
}

// start sets PROCESSING synchronously, then dispatches. A dispatch failure
// resolves the report to ERROR so it never stays PROCESSING.
func (a *App) start(ctx context.Context, reportID, kind string) (string, error) {
	if err := a.store.MarkProcessing(reportID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrReportNotFound
		}
		return "", fmt.Errorf("mark processing: %w", err)
	}
	jobID, err := a.dispatch(ctx, reportID, kind)
	if err != nil {
		if failErr := a.store.FailReport(reportID, failureMessage(err)); failErr != nil {
			slog.Error("record dispatch failure", "report_id", reportID, "err", failErr)
		}
		return "", err
	}
	return jobID, nil
}

// Refine edits a READY report in place. It runs synchronously and the
// previous document stays stored until the refined one replaces it; on
// failure the report is READY again with that document.
func (a *App) Refine(ctx context.Context, actor domain.User, reportID, instruction string, files []generation.NamedText) (domain.Report, error) {
	report, project, err := a.editableReport(actor, reportID)
	if err != nil {
		return domain.Report{}, err
	}
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return domain.Report{}, ErrPromptRequired
	}
	if a.busy(report) {
		return domain.Report{}, ErrReportBusy
	}
	if report.HTMLContent == nil || strings.TrimSpace(*report.HTMLContent) == "" {
		return domain.Report{}, ErrNoContent
	}
	previous := *report.HTMLContent
	logger := util.LoggerFromContext(ctx).With("report_id", report.ID, "kind", string(generation.KindRefine))

	prompt := a.prompts.Refine(generation.RefineInput{
		CurrentHTML:     previous,
		ProjectContext:  project.PromptContext(),
		Instruction:     instruction,
		AdditionalFiles: files,
	})
	if err := a.store.MarkRefining(report.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Report{}, ErrReportNotFound
		}
		return domain.Report{}, fmt.Errorf("mark refining: %w", err)
	}

	completion, usage, genErr := a.generate(ctx, logger, prompt)
	var refined string
	if genErr == nil {
		refined, genErr = generation.ParseRefine(completion.Text)
		if genErr != nil {
			logger.Warn("refined output rejected", "raw_excerpt", util.Excerpt(completion.Text, rawExcerptLen))
		}
	}
	if genErr != nil {
		if err := a.store.CompleteReport(report.ID, store.Completion{HTMLContent: previous, Usage: usage}); err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.Error("restore report after failed refine", "err", err)
		}
		return domain.Report{}, fmt.Errorf("%w: %v", ErrGenerationFailed, genErr)
	}
	if err := a.store.CompleteReport(report.ID, store.Completion{HTMLContent: refined, Usage: usage}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Report{}, ErrReportNotFound
		}
		return domain.Report{}, fmt.Errorf("complete report: %w", err)
	}
	updated, ok, err := a.store.GetReport(report.ID)
	if err != nil {
		return domain.Report{}, fmt.Errorf("get report: %w", err)
	}
	if !ok {
		return domain.Report{}, ErrReportNotFound
	}
	return updated, nil
}

func (a *App) runReport(ctx context.Context, logger *slog.Logger, reportID string) error {
	report, project, err := a.loadForJob(reportID)
	if err != nil {
		return err
	}
	files, err := a.store.ListFiles(report.ID)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	rows := a.ingest(ctx, logger, files)
	if len(rows) == 0 {
		return ErrNoData
	}

	feedback, err := a.feedback.Load(ctx, project.ID)
	if err != nil {
		return err
	}
	in := generation.ReportInput{
		ProjectContext: project.PromptContext(),
		Instructions:   report.Prompt,
		Rows:           rows,
	}
	if !feedback.Empty() {
		in.Feedback = &feedback
	}
	prompt, err := a.prompts.Report(in)
	if err != nil {
		return err
	}
	if prompt.Omitted.Any() {
		logger.Info("prompt capped", "rows_omitted", prompt.Omitted.Rows, "rows_total", len(rows))
	}

	completion, usage, err := a.generate(ctx, logger, prompt)
	if err != nil {
		return err
	}
	result, err := generation.ParseReport(completion.Text)
	if err != nil {
		logger.Warn("model answer rejected", "err", err, "raw_excerpt", util.Excerpt(completion.Text, rawExcerptLen))
		return err
	}
	if result.Dropped > 0 {
		logger.Info("malformed feedback records dropped", "dropped", result.Dropped)
	}

	now := a.now()
	questions := make([]domain.Question, 0, len(result.Questions))
	for _, q := range result.Questions {
		questions = append(questions, domain.Question{
			ID:        util.NewID(),
			ProjectID: project.ID,
			ReportID:  report.ID,
			Question:  q.Question,
			Context:   q.Context,
			Status:    domain.QuestionPending,
			CreatedAt: now,
		})
	}
	proposals := make([]domain.Proposal, 0, len(result.Proposals))
	for _, p := range result.Proposals {
		proposals = append(proposals, domain.Proposal{
			ID:          util.NewID(),
			ProjectID:   project.ID,
			ReportID:    report.ID,
			Type:        p.Type,
			Title:       p.Title,
			Description: p.Description,
			Priority:    p.Priority,
			Status:      domain.ProposalPending,
			CreatedAt:   now,
		})
	}
	if err := a.store.CompleteReport(report.ID, store.Completion{
		HTMLContent: result.HTML,
		Usage:       usage,
		Questions:   questions,
		Proposals:   proposals,
	}); err != nil {
		return fmt.Errorf("complete report: %w", err)
	}
	logger.Info("report ready", "questions", len(questions), "proposals", len(proposals))
	return nil
}

func (a *App) runOverview(ctx context.Context, logger *slog.Logger, reportID string) error {
	overview, project, err := a.loadForJob(reportID)
	if err != nil {
		return err
	}
	ready, err := a.store.ListReports(project.ID, store.ReportFilter{Type: domain.ReportCustom, Status: domain.StatusReady})
	if err != nil {
		return fmt.Errorf("list reports: %w", err)
	}
	sources := make([]generation.OverviewReport, 0, len(ready))
	for _, r := range ready {
		if r.HTMLContent == nil {
			continue
		}
		sources = append(sources, generation.OverviewReport{
			Title:            r.Title,
			Date:             r.CreatedAt,
			PeriodFrom:       r.PeriodFrom,
			PeriodTo:         r.PeriodTo,
			HTML:             *r.HTMLContent,
			ExecutiveSummary: r.ExecutiveSummary,
		})
	}
	if len(sources) == 0 {
		return ErrNoReadyReports
	}

	feedback, err := a.feedback.Load(ctx, project.ID)
	if err != nil {
		return err
	}
	prompt, err := a.prompts.Overview(generation.OverviewInput{
		ProjectName:    project.Name,
		ProjectContext: project.PromptContext(),
		Reports:        sources,
		Feedback:       feedback,
	})
	if err != nil {
		return err
	}
	if prompt.Omitted.Any() {
		logger.Info("prompt capped", "docs_truncated", prompt.Omitted.TruncatedDocs, "html_chars_omitted", prompt.Omitted.HTMLChars)
	}

	completion, usage, err := a.generate(ctx, logger, prompt)
	if err != nil {
		return err
	}
	result, err := generation.ParseOverview(completion.Text)
	if err != nil {
		logger.Warn("model answer rejected", "err", err, "raw_excerpt", util.Excerpt(completion.Text, rawExcerptLen))
		return err
	}
	lowered := strings.ToLower(result.HTML)
	for _, title := range feedback.RejectedTitles {
		if t := strings.ToLower(strings.TrimSpace(title)); t != "" && strings.Contains(lowered, t) {
			logger.Warn("overview mentions a rejected proposal", "title", title)
		}
	}

	usage.ProjectStatus = result.ProjectStatus
	summary := result.Summary
	if err := a.store.CompleteReport(overview.ID, store.Completion{
		HTMLContent:      result.HTML,
		ExecutiveSummary: &summary,
		Usage:            usage,
	}); err != nil {
		return fmt.Errorf("complete report: %w", err)
	}
	logger.Info("overview ready", "project_status", result.ProjectStatus, "sources", len(sources))
	return nil
}

func (a *App) loadForJob(reportID string) (domain.Report, domain.Project, error) {
	report, ok, err := a.store.GetReport(reportID)
	if err != nil {
		return domain.Report{}, domain.Project{}, fmt.Errorf("get report: %w", err)
	}
	if !ok {
		return domain.Report{}, domain.Project{}, store.ErrNotFound
	}
	project, ok, err := a.store.GetProject(report.ProjectID)
	if err != nil {
		return domain.Report{}, domain.Project{}, fmt.Errorf("get project: %w", err)
	}
	if !ok {
		return domain.Report{}, domain.Project{}, store.ErrNotFound
	}
	return report, project, nil
}

// ingest returns the combined rows of all files, parsing each stored file
// on first use. A file that cannot be read or parsed contributes nothing.
func (a *App) ingest(ctx context.Context, logger *slog.Logger, files []domain.ReportFile) []domain.Row {
	var rows []domain.Row
	for _, f := range files {
		if f.Ingested() {
			rows = append(rows, f.ParsedData...)
			continue
		}
		parsed, err := a.parseStored(ctx, f)
		if err != nil {
			logger.Warn("file ingestion failed", "file_id", f.ID, "filename", f.Filename, "err", err)
			continue
		}
		if len(parsed.Errors) > 0 {
			logger.Warn("file has malformed rows", "file_id", f.ID, "filename", f.Filename, "errors", len(parsed.Errors), "first", parsed.Errors[0])
		}
		if err := a.store.SetFileParsed(f.ID, parsed.Rows, parsed.Columns); err != nil {
			logger.Warn("store parsed file", "file_id", f.ID, "err", err)
		}
		rows = append(rows, parsed.Rows...)
	}
	return rows
}

func (a *App) parseStored(ctx context.Context, f domain.ReportFile) (tabular.Result, error) {
	body, err := a.objects.Get(ctx, f.StoragePath)
	if err != nil {
		return tabular.Result{}, fmt.Errorf("read object: %w", err)
	}
	defer body.Close()
	return tabular.Parse(body)
}

// generate performs one bounded provider call and returns its usage.
func (a *App) generate(ctx context.Context, logger *slog.Logger, prompt generation.Prompt) (ai.Completion, domain.AIMetadata, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	completion, err := a.generator.Generate(callCtx, ai.Request{
		System: prompt.System,
		User:   prompt.User,
		Kind:   string(prompt.Kind),
	})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("generation failed", "duration_ms", elapsed, "err", err)
		return ai.Completion{}, domain.AIMetadata{}, fmt.Errorf("generate %s: %w", prompt.Kind, err)
	}
	usage := domain.AIMetadata{
		Model:        completion.Model,
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
		Duration:     elapsed,
	}
	logger.Info("generation completed",
		"model", completion.Model,
		"duration_ms", elapsed,
		"input_tokens", completion.InputTokens,
		"output_tokens", completion.OutputTokens,
	)
	return completion, usage, nil
}
