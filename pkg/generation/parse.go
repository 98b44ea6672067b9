package generation

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"sinapsisdata/internal/util"
	"sinapsisdata/pkg/domain"
)

const (
	excerptLen = 500

	// DefaultOverviewSummary is stored when the model omits the summary.
	DefaultOverviewSummary = "Executive summary not available."
)

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	fencedHTML = regexp.MustCompile("(?s)```(?:html)?\\s*(.*?)```")
	htmlMarker = []string{"<!doctype", "<html", "<div"}
)

// QuestionDraft is a question proposed by the model.
type QuestionDraft struct {
	Question string
	Context  string
}

// ProposalDraft is a proposal with its enums already coerced.
type ProposalDraft struct {
	Type        domain.ProposalType
	Title       string
	Description string
	Priority    domain.ProposalPriority
}

// ReportResult is a validated report generation answer.
type ReportResult struct {
	HTML      string
	Questions []QuestionDraft
	Proposals []ProposalDraft
	// Dropped counts question and proposal records discarded as malformed.
	Dropped int
}

// OverviewResult is a validated overview answer.
type OverviewResult struct {
	HTML          string
	ProjectStatus domain.ProjectHealth
	Summary       string
}

// ExtractJSON locates the JSON payload in a model answer: a fenced block
// first, then the span from the first '{' to the last '}', then the trimmed
// text itself.
func ExtractJSON(text string) string {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first != -1 && last > first {
		return text[first : last+1]
	}
	return strings.TrimSpace(text)
}

// ParseReport decodes and validates a report generation answer.
func ParseReport(raw string) (ReportResult, error) {
	fields, err := decodeEnvelope(raw)
	if err != nil {
		return ReportResult{}, err
	}
	htmlDoc, ok := stringField(fields, "html")
	if !ok {
		return ReportResult{}, &MissingArtifactError{Field: "html"}
	}

	res := ReportResult{HTML: htmlDoc, Questions: []QuestionDraft{}, Proposals: []ProposalDraft{}}
	for _, item := range objectList(fields["questions"]) {
		q, ok := stringField(item, "question")
		if !ok {
			res.Dropped++
			continue
		}
		ctx, _ := stringField(item, "context")
		res.Questions = append(res.Questions, QuestionDraft{Question: q, Context: ctx})
	}
	for _, item := range objectList(fields["proposals"]) {
		title, okTitle := stringField(item, "title")
		desc, okDesc := stringField(item, "description")
		if !okTitle || !okDesc {
			res.Dropped++
			continue
		}
		typ, _ := rawString(item["type"])
		prio, _ := rawString(item["priority"])
		res.Proposals = append(res.Proposals, ProposalDraft{
			Type:        domain.ParseProposalType(typ),
			Title:       title,
			Description: desc,
			Priority:    domain.ParseProposalPriority(prio),
		})
	}
	return res, nil
}

// ParseOverview decodes and validates an overview answer. Status and
// summary fall back to defaults; only a missing html is fatal.
func ParseOverview(raw string) (OverviewResult, error) {
	fields, err := decodeEnvelope(raw)
	if err != nil {
		return OverviewResult{}, err
	}
	htmlDoc, ok := stringField(fields, "html")
	if !ok {
		return OverviewResult{}, &MissingArtifactError{Field: "html"}
	}
	status, _ := rawString(fields["projectStatus"])
	summary, ok := stringField(fields, "summary")
	if !ok {
		summary = DefaultOverviewSummary
	}
	return OverviewResult{
		HTML:          htmlDoc,
		ProjectStatus: domain.ParseProjectHealth(status),
		Summary:       summary,
	}, nil
}

// ParseRefine extracts the edited document from a refinement answer.
func ParseRefine(raw string) (string, error) {
	doc := strings.TrimSpace(raw)
	if m := fencedHTML.FindStringSubmatch(raw); m != nil {
		doc = strings.TrimSpace(m[1])
	}
	if LooksLikeHTML(doc) {
		return doc, nil
	}
	return "", &InvalidArtifactError{Excerpt: util.Excerpt(raw, excerptLen)}
}

// LooksLikeHTML reports whether doc carries a doctype, html or div tag.
func LooksLikeHTML(doc string) bool {
	lower := strings.ToLower(doc)
	for _, marker := range htmlMarker {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func decodeEnvelope(raw string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &fields); err != nil {
		return nil, &ParseError{Excerpt: util.Excerpt(raw, excerptLen), Err: err}
	}
	if fields == nil {
		return nil, &ParseError{Excerpt: util.Excerpt(raw, excerptLen), Err: errors.New("payload is null")}
	}
	return fields, nil
}

// objectList returns the object elements of a JSON array. Anything that is
// not an array yields nil; non-object elements are skipped by the caller's
// field checks because they decode to an empty map.
func objectList(raw json.RawMessage) []map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]map[string]json.RawMessage, 0, len(items))
	for _, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
			obj = map[string]json.RawMessage{}
		}
		out = append(out, obj)
	}
	return out
}

// stringField returns a field that is a string with non-blank content.
func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	s, ok := rawString(fields[key])
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
