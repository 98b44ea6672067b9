package store

import (
	"errors"
	"testing"
	"time"

	"sinapsisdata/pkg/domain"
)

func TestMemoryStoreResolveQuestionIsTerminal(t *testing.T) {
	s := NewMemoryStore()
	created := time.Now().UTC()
	_ = s.SaveReport(domain.Report{ID: "r1", ProjectID: "p1", Status: domain.StatusDraft})
	if err := s.CompleteReport("r1", Completion{
		HTMLContent: "<html></html>",
		Questions:   []domain.Question{{ID: "q1", ProjectID: "p1", ReportID: "r1", Question: "Why?", Status: domain.QuestionPending, CreatedAt: created}},
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	answer := "Because."
	first := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	q, err := s.ResolveQuestion("q1", QuestionResolution{Status: domain.QuestionAnswered, Answer: &answer, AnsweredByID: "u1", At: first})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if q.Status != domain.QuestionAnswered || q.AnsweredAt == nil || !q.AnsweredAt.Equal(first) {
		t.Fatalf("unexpected question: %+v", q)
	}

	q, err = s.ResolveQuestion("q1", QuestionResolution{Status: domain.QuestionDismissed, AnsweredByID: "u2", At: first.Add(time.Hour)})
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	if q.Status != domain.QuestionAnswered || !q.AnsweredAt.Equal(first) || q.AnsweredByID != "u1" {
		t.Fatalf("second resolution changed state: %+v", q)
	}

	if _, err := s.ResolveQuestion("missing", QuestionResolution{Status: domain.QuestionDismissed}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreCompleteAccumulatesUsage(t *testing.T) {
	s := NewMemoryStore()
	_ = s.SaveReport(domain.Report{ID: "r1", ProjectID: "p1", Status: domain.StatusDraft})
	for _, in := range []int64{100, 50} {
		if err := s.MarkProcessing("r1"); err != nil {
			t.Fatalf("mark processing: %v", err)
		}
		if err := s.CompleteReport("r1", Completion{HTMLContent: "<div></div>", Usage: domain.AIMetadata{Model: "m", InputTokens: in, OutputTokens: 1, Duration: 10}}); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}
	r, _, _ := s.GetReport("r1")
	if r.AIMetadata == nil || r.AIMetadata.InputTokens != 150 || r.AIMetadata.OutputTokens != 2 || r.AIMetadata.Duration != 20 {
		t.Fatalf("unexpected metadata: %+v", r.AIMetadata)
	}
	if err := s.MarkProcessing("gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreOverviewIsSingleton(t *testing.T) {
	s := NewMemoryStore()
	first, created, err := s.FindOrCreateOverview(domain.Report{ID: "o1", ProjectID: "p1", Status: domain.StatusDraft})
	if err != nil || !created {
		t.Fatalf("first overview: created=%v err=%v", created, err)
	}
	second, created, err := s.FindOrCreateOverview(domain.Report{ID: "o2", ProjectID: "p1", Status: domain.StatusDraft})
	if err != nil || created || second.ID != first.ID {
		t.Fatalf("second overview: id=%s created=%v err=%v", second.ID, created, err)
	}
	reports, _ := s.ListReports("p1", ReportFilter{Type: domain.ReportOverview})
	if len(reports) != 1 {
		t.Fatalf("overviews = %d", len(reports))
	}
}

func TestMemoryStoreDeleteReportCascades(t *testing.T) {
	s := NewMemoryStore()
	_ = s.SaveReport(domain.Report{ID: "r1", ProjectID: "p1"})
	_ = s.SaveFile(domain.ReportFile{ID: "f1", ReportID: "r1"})
	_ = s.CompleteReport("r1", Completion{
		HTMLContent: "<div></div>",
		Proposals:   []domain.Proposal{{ID: "pr1", ProjectID: "p1", ReportID: "r1", Status: domain.ProposalPending}},
	})
	if err := s.DeleteReport("r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	files, _ := s.ListFiles("r1")
	proposals, _ := s.ListProposals("p1", "")
	if len(files) != 0 || len(proposals) != 0 {
		t.Fatalf("children survived: files=%d proposals=%d", len(files), len(proposals))
	}
}

func TestMemoryStoreClaimReportOnce(t *testing.T) {
	s := NewMemoryStore()
	_ = s.SaveReport(domain.Report{ID: "r1", ProjectID: "p1", Status: domain.StatusDraft})
	if ok, err := s.ClaimReport("r1"); err != nil || ok {
		t.Fatalf("draft claimed: ok=%v err=%v", ok, err)
	}
	_ = s.MarkProcessing("r1")
	if ok, err := s.ClaimReport("r1"); err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.ClaimReport("r1"); ok {
		t.Fatalf("second claim succeeded")
	}
	_ = s.MarkProcessing("r1")
	if ok, _ := s.ClaimReport("r1"); !ok {
		t.Fatalf("new job could not claim")
	}
	_ = s.CompleteReport("r1", Completion{HTMLContent: "<div></div>"})
	if ok, _ := s.ClaimReport("r1"); ok {
		t.Fatalf("settled report claimed")
	}
	if err := s.MarkRefining("r1"); err != nil {
		t.Fatalf("mark refining: %v", err)
	}
	r, _, _ := s.GetReport("r1")
	if r.Status != domain.StatusProcessing || r.HTMLContent == nil {
		t.Fatalf("refining dropped the document: %+v", r)
	}
	if ok, _ := s.ClaimReport("r1"); ok {
		t.Fatalf("refining report claimed by a worker")
	}
	if _, err := s.ClaimReport("gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreRecoverStale(t *testing.T) {
	s := NewMemoryStore()
	_ = s.SaveReport(domain.Report{ID: "gen", ProjectID: "p1"})
	_ = s.SaveReport(domain.Report{ID: "ref", ProjectID: "p1"})
	_ = s.SaveReport(domain.Report{ID: "ready", ProjectID: "p1"})
	_ = s.MarkProcessing("gen")
	_ = s.CompleteReport("ref", Completion{HTMLContent: "<div>v1</div>"})
	_ = s.MarkRefining("ref")
	_ = s.CompleteReport("ready", Completion{HTMLContent: "<div></div>"})

	if n, _ := s.RecoverStale(time.Now().Add(-time.Hour), "interrupted"); n != 0 {
		t.Fatalf("fresh rows recovered: %d", n)
	}
	n, err := s.RecoverStale(time.Now().Add(time.Second), "interrupted")
	if err != nil || n != 2 {
		t.Fatalf("recover: n=%d err=%v", n, err)
	}
	gen, _, _ := s.GetReport("gen")
	if gen.Status != domain.StatusError || gen.ErrorMessage != "interrupted" {
		t.Fatalf("unexpected generate recovery: %+v", gen)
	}
	ref, _, _ := s.GetReport("ref")
	if ref.Status != domain.StatusReady || ref.HTMLContent == nil || *ref.HTMLContent != "<div>v1</div>" {
		t.Fatalf("unexpected refine recovery: %+v", ref)
	}
}

func TestMemoryStoreFeedbackOrderBreaksTiesByID(t *testing.T) {
	s := NewMemoryStore()
	_ = s.SaveReport(domain.Report{ID: "r1", ProjectID: "p1"})
	created := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	ids := []string{"q-c", "q-a", "q-d", "q-b"}
	var questions []domain.Question
	var proposals []domain.Proposal
	for _, id := range ids {
		questions = append(questions, domain.Question{ID: id, ProjectID: "p1", ReportID: "r1", Status: domain.QuestionPending, CreatedAt: created})
		proposals = append(proposals, domain.Proposal{ID: "p" + id, ProjectID: "p1", ReportID: "r1", Status: domain.ProposalPending, CreatedAt: created})
	}
	_ = s.CompleteReport("r1", Completion{HTMLContent: "<div></div>", Questions: questions, Proposals: proposals})

	answer := "same time"
	at := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	for _, id := range ids {
		if _, err := s.ResolveQuestion(id, QuestionResolution{Status: domain.QuestionAnswered, Answer: &answer, At: at}); err != nil {
			t.Fatalf("answer %s: %v", id, err)
		}
		if _, err := s.ResolveProposal("p"+id, ProposalResolution{Status: domain.ProposalApproved, At: at}); err != nil {
			t.Fatalf("approve %s: %v", id, err)
		}
	}

	for i := 0; i < 5; i++ {
		qs, _ := s.ListQuestions("p1", domain.QuestionAnswered)
		ps, _ := s.ListProposals("p1", domain.ProposalApproved)
		for j, want := range []string{"q-a", "q-b", "q-c", "q-d"} {
			if qs[j].ID != want || ps[j].ID != "p"+want {
				t.Fatalf("order %d: questions=%v proposals=%v", j, questionIDs(qs), proposalIDs(ps))
			}
		}
	}
}

func questionIDs(qs []domain.Question) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.ID)
	}
	return out
}

func proposalIDs(ps []domain.Proposal) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}
