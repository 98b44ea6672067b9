package generation

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"sinapsisdata/pkg/domain"
)

const q1Payload = `{"html": "<!DOCTYPE html><html><body>Q1</body></html>", "questions": [{"question":"What is the target audience?","context":"not specified"}], "proposals": [{"type":"RISK","title":"Declining conversion","description":"Conversion fell in March","priority":"HIGH"}]}`

func TestExtractJSONFencedAndBareAgree(t *testing.T) {
	fenced := "Here you go:\n```json\n" + q1Payload + "\n```\nThanks!"
	untagged := "```\n" + q1Payload + "\n```"
	bare := "Sure. " + q1Payload + " Let me know."

	want, err := ParseReport(q1Payload)
	if err != nil {
		t.Fatalf("parse plain: %v", err)
	}
	for name, raw := range map[string]string{"fenced": fenced, "untagged": untagged, "bare": bare} {
		got, err := ParseReport(raw)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("%s: got %+v, want %+v", name, got, want)
		}
	}
}

func TestParseReportQ1Scenario(t *testing.T) {
	res, err := ParseReport(q1Payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.HasPrefix(res.HTML, "<!DOCTYPE html>") {
		t.Fatalf("html = %q", res.HTML)
	}
	if len(res.Questions) != 1 || res.Questions[0].Question != "What is the target audience?" || res.Questions[0].Context != "not specified" {
		t.Fatalf("questions = %+v", res.Questions)
	}
	if len(res.Proposals) != 1 {
		t.Fatalf("proposals = %+v", res.Proposals)
	}
	p := res.Proposals[0]
	if p.Type != domain.ProposalRisk || p.Priority != domain.PriorityHigh || p.Title != "Declining conversion" {
		t.Fatalf("proposal = %+v", p)
	}
}

func TestParseReportMalformedIsParseError(t *testing.T) {
	raw := "Sure! Here's your report: <html><body>" + strings.Repeat("x", 2000) + "</body></html>"
	_, err := ParseReport(raw)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %T %v", err, err)
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Fatalf("message should mention parsing: %q", err.Error())
	}
	if len(perr.Excerpt) > 600 || !strings.HasPrefix(perr.Excerpt, "Sure!") {
		t.Fatalf("excerpt not bounded: %d chars", len(perr.Excerpt))
	}
}

func TestParseReportMissingHTML(t *testing.T) {
	for _, raw := range []string{`{"questions": []}`, `{"html": ""}`, `{"html": "   "}`, `{"html": 42}`} {
		_, err := ParseReport(raw)
		var merr *MissingArtifactError
		if !errors.As(err, &merr) {
			t.Fatalf("%s: expected *MissingArtifactError, got %v", raw, err)
		}
	}
}

func TestParseReportCoercesAndDrops(t *testing.T) {
	raw := `{
		"html": "<div>ok</div>",
		"questions": [{"question": ""}, {"context": "no question"}, "not an object", {"question": "Kept?"}],
		"proposals": [
			{"title": "No description"},
			{"title": "  ", "description": "blank title"},
			{"type": "suggestion", "title": "Odd enums", "description": "d", "priority": "urgent"},
			{"type": "opportunity", "title": "Lower case", "description": "d", "priority": "low"}
		]
	}`
	res, err := ParseReport(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(res.Questions) != 1 || res.Questions[0].Question != "Kept?" {
		t.Fatalf("questions = %+v", res.Questions)
	}
	if len(res.Proposals) != 2 {
		t.Fatalf("proposals = %+v", res.Proposals)
	}
	if res.Proposals[0].Type != domain.ProposalInsight || res.Proposals[0].Priority != domain.PriorityMedium {
		t.Fatalf("defaults not applied: %+v", res.Proposals[0])
	}
	if res.Proposals[1].Type != domain.ProposalOpportunity || res.Proposals[1].Priority != domain.PriorityLow {
		t.Fatalf("case-insensitive enums not applied: %+v", res.Proposals[1])
	}
	if res.Dropped != 5 {
		t.Fatalf("dropped = %d, want 5", res.Dropped)
	}
}

func TestParseReportNonArrayListsBecomeEmpty(t *testing.T) {
	res, err := ParseReport(`{"html": "<div></div>", "questions": "none", "proposals": {"a": 1}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Questions == nil || res.Proposals == nil || len(res.Questions)+len(res.Proposals) != 0 {
		t.Fatalf("expected empty non-nil lists: %+v", res)
	}
}

func TestParseOverviewDefaults(t *testing.T) {
	res, err := ParseOverview(`{"html": "<html></html>", "projectStatus": "purple"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.ProjectStatus != domain.HealthYellow || res.Summary != DefaultOverviewSummary {
		t.Fatalf("defaults not applied: %+v", res)
	}
	res, err = ParseOverview("```json\n{\"html\": \"<html></html>\", \"projectStatus\": \"red\", \"summary\": \"Behind plan.\"}\n```")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.ProjectStatus != domain.HealthRed || res.Summary != "Behind plan." {
		t.Fatalf("unexpected: %+v", res)
	}
}

func TestParseRefine(t *testing.T) {
	got, err := ParseRefine("```html\n<!DOCTYPE html><html><body>v2</body></html>\n```")
	if err != nil || got != "<!DOCTYPE html><html><body>v2</body></html>" {
		t.Fatalf("fenced: %q %v", got, err)
	}
	got, err = ParseRefine("  <div class=\"kpi\">42</div>  ")
	if err != nil || got != `<div class="kpi">42</div>` {
		t.Fatalf("bare: %q %v", got, err)
	}
	_, err = ParseRefine("I cannot do that.")
	var ierr *InvalidArtifactError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected *InvalidArtifactError, got %v", err)
	}
}
