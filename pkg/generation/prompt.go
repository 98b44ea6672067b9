package generation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"sinapsisdata/pkg/domain"
)

// Kind names the three generation contracts.
type Kind string

const (
	KindReport   Kind = "report"
	KindRefine   Kind = "refine"
	KindOverview Kind = "overview"
)

// Prompt is a system and user instruction pair ready for a Generator.
type Prompt struct {
	Kind    Kind
	System  string
	User    string
	Omitted Omissions
}

// Omissions reports what the caps cut from a prompt.
type Omissions struct {
	Rows          int
	TruncatedDocs int
	HTMLChars     int
}

// Any reports whether anything was left out.
func (o Omissions) Any() bool {
	return o.Rows > 0 || o.TruncatedDocs > 0 || o.HTMLChars > 0
}

// ApprovedProposal is an approved proposal as fed back into prompts.
type ApprovedProposal struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Type        domain.ProposalType `json:"type,omitempty"`
	ApprovedAt  *time.Time          `json:"approvedAt,omitempty"`
}

// AnsweredQuestion is a question with its human answer.
type AnsweredQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Feedback is the learned context of a project.
type Feedback struct {
	Approved       []ApprovedProposal
	RejectedTitles []string
	Answered       []AnsweredQuestion
}

// Empty reports whether there is nothing to feed back.
func (f Feedback) Empty() bool {
	return len(f.Approved) == 0 && len(f.RejectedTitles) == 0 && len(f.Answered) == 0
}

type ReportInput struct {
	ProjectContext string
	Instructions   string
	Rows           []domain.Row
	// Feedback is omitted from the prompt when nil or empty.
	Feedback *Feedback
}

// NamedText is an extra file attached to a refinement.
type NamedText struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type RefineInput struct {
	CurrentHTML     string
	ProjectContext  string
	Instruction     string
	AdditionalFiles []NamedText
}

// OverviewReport is one prior READY report summarised for the overview.
type OverviewReport struct {
	Title            string
	Date             time.Time
	PeriodFrom       *time.Time
	PeriodTo         *time.Time
	HTML             string
	ExecutiveSummary string
}

type OverviewInput struct {
	ProjectName    string
	ProjectContext string
	// Reports must be ordered most recent first.
	Reports  []OverviewReport
	Feedback Feedback
}

// Builder assembles prompts under a Policy.
type Builder struct {
	policy Policy
}

func NewBuilder(p Policy) *Builder {
	return &Builder{policy: p.withDefaults()}
}

// Policy returns the effective policy.
func (b *Builder) Policy() Policy { return b.policy }

// Report builds the full report generation prompt.
func (b *Builder) Report(in ReportInput) (Prompt, error) {
	rows := in.Rows
	omitted := 0
	if len(rows) > b.policy.MaxPromptRows {
		omitted = len(rows) - b.policy.MaxPromptRows
		rows = rows[:b.policy.MaxPromptRows]
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return Prompt{}, fmt.Errorf("encode rows: %w", err)
	}

	var u strings.Builder
	u.WriteString("PROJECT CONTEXT:\n")
	u.WriteString(orDefault(in.ProjectContext, "No additional context"))
	u.WriteString("\n\nSPECIFIC INSTRUCTIONS FOR THIS REPORT:\n")
	u.WriteString(strings.TrimSpace(in.Instructions))
	u.WriteString("\n\nDATA TO ANALYZE:\n")
	u.Write(data)
	u.WriteString("\n")
	if omitted > 0 {
		fmt.Fprintf(&u, "\n... (%d additional rows omitted)\n", omitted)
	}
	if in.Feedback != nil && !in.Feedback.Empty() {
		fb := in.Feedback
		approved := make([]string, 0, len(fb.Approved))
		for _, p := range fb.Approved {
			approved = append(approved, p.Title)
		}
		answered, err := json.Marshal(nonNil(fb.Answered))
		if err != nil {
			return Prompt{}, fmt.Errorf("encode answered questions: %w", err)
		}
		u.WriteString("\nPREVIOUS FEEDBACK (use it to improve your analysis):\n")
		fmt.Fprintf(&u, "- Approved proposals: %s\n", joinOr(approved, "None"))
		fmt.Fprintf(&u, "- Rejected proposals (do not suggest them again): %s\n", joinOr(fb.RejectedTitles, "None"))
		fmt.Fprintf(&u, "- Answered questions: %s\n", answered)
	}
	u.WriteString("\nGenerate the report following the instructions. Reply ONLY with valid JSON, without markdown code fences.")

	return Prompt{
		Kind:    KindReport,
		System:  b.reportSystem(),
		User:    u.String(),
		Omitted: Omissions{Rows: omitted},
	}, nil
}

// Refine builds the in-place edit prompt for an existing document.
func (b *Builder) Refine(in RefineInput) Prompt {
	var u strings.Builder
	if ctx := strings.TrimSpace(in.ProjectContext); ctx != "" {
		u.WriteString("PROJECT CONTEXT:\n")
		u.WriteString(ctx)
		u.WriteString("\n\n")
	}
	u.WriteString("CURRENT HTML DOCUMENT:\n")
	u.WriteString(in.CurrentHTML)
	u.WriteString("\n\nREQUESTED CHANGE:\n")
	u.WriteString(strings.TrimSpace(in.Instruction))
	u.WriteString("\n")
	for i, f := range in.AdditionalFiles {
		name := orDefault(f.Name, fmt.Sprintf("file-%d", i+1))
		fmt.Fprintf(&u, "\nADDITIONAL FILE %d: %s\n<<<\n%s\n>>>\n", i+1, name, f.Content)
	}
	u.WriteString("\nReturn the complete modified HTML document only.")
	return Prompt{Kind: KindRefine, System: b.refineSystem(), User: u.String()}
}

// Overview builds the executive dashboard prompt.
func (b *Builder) Overview(in OverviewInput) (Prompt, error) {
	var (
		u       strings.Builder
		omitted Omissions
	)
	u.WriteString("PROJECT: ")
	u.WriteString(orDefault(in.ProjectName, "Unnamed project"))
	u.WriteString("\n\nPROJECT CONTEXT:\n")
	u.WriteString(orDefault(in.ProjectContext, "No additional context"))
	fmt.Fprintf(&u, "\n\nGENERATED REPORTS (%d, most recent first):\n", len(in.Reports))
	for i, r := range in.Reports {
		fmt.Fprintf(&u, "\n### Report %d: %s\n", i+1, r.Title)
		fmt.Fprintf(&u, "Date: %s\n", r.Date.UTC().Format("2006-01-02"))
		if period := formatPeriod(r.PeriodFrom, r.PeriodTo); period != "" {
			fmt.Fprintf(&u, "Period: %s\n", period)
		}
		if s := strings.TrimSpace(r.ExecutiveSummary); s != "" {
			fmt.Fprintf(&u, "Executive summary: %s\n", s)
		}
		body, cut := truncateRunes(BodyMarkup(r.HTML), b.policy.MaxOverviewHTMLChars)
		u.WriteString("Content:\n")
		u.WriteString(body)
		u.WriteString("\n")
		if cut > 0 {
			omitted.TruncatedDocs++
			omitted.HTMLChars += cut
			fmt.Fprintf(&u, "[content truncated: %d characters omitted]\n", cut)
		}
	}

	approved, err := json.MarshalIndent(nonNil(in.Feedback.Approved), "", "  ")
	if err != nil {
		return Prompt{}, fmt.Errorf("encode approved proposals: %w", err)
	}
	answered, err := json.MarshalIndent(nonNil(in.Feedback.Answered), "", "  ")
	if err != nil {
		return Prompt{}, fmt.Errorf("encode answered questions: %w", err)
	}
	u.WriteString("\nAPPROVED PROPOSALS (use them for milestones and next steps):\n")
	u.Write(approved)
	u.WriteString("\n\nLEARNED CONTEXT (answered questions):\n")
	u.Write(answered)
	u.WriteString("\n")
	if len(in.Feedback.RejectedTitles) > 0 {
		u.WriteString("\nEXCLUSIONS: do not suggest anything similar to the following. Never mention, quote or reference them in the output:\n")
		for _, t := range in.Feedback.RejectedTitles {
			fmt.Fprintf(&u, "- %s\n", t)
		}
	}
	u.WriteString("\nGenerate the executive overview that synthesises all of the project's knowledge. Reply ONLY with valid JSON.")

	return Prompt{
		Kind:    KindOverview,
		System:  b.overviewSystem(),
		User:    u.String(),
		Omitted: omitted,
	}, nil
}

func (b *Builder) brandRules() string {
	p := b.policy
	return fmt.Sprintf(`- Use Apache ECharts for charts (include the CDN: %s)
- Use Tailwind CSS via CDN for styling (%s)
- Colour palette:
  - Primary: %s
  - Accent: %s
  - Background: %s
  - Text: %s
- Typography: %s
- Charts must use the brand colours
- Write all visible text in %s`,
		p.ChartLibraryURL, p.CSSFrameworkURL,
		p.Palette.Primary, p.Palette.Accent, p.Palette.Background, p.Palette.Text,
		p.FontFamily, p.Language)
}

func (b *Builder) reportSystem() string {
	return `You are an expert data analyst at a data consulting agency.
Your job is to produce professional analytical reports in HTML.

HTML RULES:
- The HTML must be a complete, self-contained document
` + b.brandRules() + `
- The report must include:
  - Executive summary
  - Key metrics with their variations
  - Relevant interactive charts
  - Conclusions and recommendations
- Responsive, professional layout

IMPORTANT: reply ONLY with valid JSON (no markdown code fences) with exactly this structure:
{
  "html": "<!DOCTYPE html>...",
  "questions": [
    {"question": "...", "context": "..."}
  ],
  "proposals": [
    {
      "type": "ACTION|INSIGHT|RISK|OPPORTUNITY",
      "title": "...",
      "description": "...",
      "priority": "LOW|MEDIUM|HIGH|CRITICAL"
    }
  ]
}`
}

func (b *Builder) refineSystem() string {
	return `You are an expert data analyst editing an existing HTML report.

RULES:
- Edit the document in place and apply ONLY the requested change
- Preserve the existing structure, styling, typography and charts
- Keep every CDN reference already present
` + b.brandRules() + `
- Reply with the complete modified HTML document only: no JSON, no explanations, no markdown code fences`
}

func (b *Builder) overviewSystem() string {
	var s strings.Builder
	s.WriteString(`You are a strategy analyst at a data consulting agency.
Your job is to produce an executive OVERVIEW dashboard of the overall state of a project,
synthesising every report generated so far and the knowledge approved by the team.

The dashboard MUST follow this structure, in this order:
`)
	for i, section := range b.overviewSections() {
		fmt.Fprintf(&s, "%d. %s\n", i+1, section)
	}
	s.WriteString(`
HTML RULES:
- The HTML must be a complete, self-contained document
` + b.brandRules() + `
- Never use line or bar charts
- Rejected items listed as exclusions must never appear in the output

IMPORTANT: reply ONLY with valid JSON (no markdown code fences) with exactly this structure:
{
  "html": "<!DOCTYPE html>...",
  "projectStatus": "GREEN|YELLOW|RED",
  "summary": "2-3 sentence executive summary"
}`)
	return s.String()
}

func (b *Builder) overviewSections() []string {
	if len(b.policy.OverviewSections) > 0 {
		return b.policy.OverviewSections
	}
	p := b.policy
	return []string{
		"Header with the project name and a traffic-light status badge (GREEN, YELLOW or RED)",
		"Executive summary of 2-3 paragraphs",
		fmt.Sprintf("Up to %d key KPIs, each with a directional delta (up, down or flat)", p.OverviewMaxKPIs),
		fmt.Sprintf("Report highlights in reverse chronological order, at most %d items", p.OverviewMaxHighlights),
		fmt.Sprintf("Up to %d milestones derived from approved proposals", p.OverviewMaxMilestones),
		fmt.Sprintf("Up to %d insight bullets", p.OverviewMaxInsights),
		"Distribution charts (pie only) when, and only when, the reports contain distribution data",
		fmt.Sprintf("Prioritised next steps, %d to %d items", p.OverviewMinNextSteps, p.OverviewMaxNextSteps),
		"Learned context built from the answered questions",
	}
}

func formatPeriod(from, to *time.Time) string {
	switch {
	case from != nil && to != nil:
		return from.UTC().Format("2006-01-02") + " to " + to.UTC().Format("2006-01-02")
	case from != nil:
		return "from " + from.UTC().Format("2006-01-02")
	case to != nil:
		return "until " + to.UTC().Format("2006-01-02")
	default:
		return ""
	}
}

// truncateRunes cuts s to limit runes and reports how many were dropped.
func truncateRunes(s string, limit int) (string, int) {
	n := utf8.RuneCountInString(s)
	if limit <= 0 || n <= limit {
		return s, 0
	}
	cut := 0
	for i := range s {
		if cut == limit {
			return s[:i], n - limit
		}
		cut++
	}
	return s, 0
}

func orDefault(s, fallback string) string {
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
