package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"sinapsisdata/pkg/domain"
)

// MemoryStore is an in-process Store for tests and single-node demos.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User
	projects  map[string]domain.Project
	members   map[string]domain.Member
	reports   map[string]domain.Report
	files     map[string]domain.ReportFile
	questions map[string]domain.Question
	proposals map[string]domain.Proposal
	// claimed holds PROCESSING reports a worker has taken.
	claimed map[string]bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		projects:  make(map[string]domain.Project),
		members:   make(map[string]domain.Member),
		reports:   make(map[string]domain.Report),
		files:     make(map[string]domain.ReportFile),
		questions: make(map[string]domain.Question),
		proposals: make(map[string]domain.Proposal),
		claimed:   make(map[string]bool),
	}
}

func memberKey(projectID, userID string) string { return projectID + "/" + userID }

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) UserCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *MemoryStore) SaveProject(p domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	return nil
}

func (s *MemoryStore) GetProject(id string) (domain.Project, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	return p, ok, nil
}

func (s *MemoryStore) GetProjectBySlug(slug string) (domain.Project, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if p.Slug == slug {
			return p, true, nil
		}
	}
	return domain.Project{}, false, nil
}

func (s *MemoryStore) ListProjects() ([]domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) ListProjectsForUser(userID string) ([]domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Project, 0)
	for _, m := range s.members {
		if m.UserID != userID {
			continue
		}
		if p, ok := s.projects[m.ProjectID]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) ProjectSlugTaken(slug string) (bool, error) {
	_, ok, err := s.GetProjectBySlug(slug)
	return ok, err
}

func (s *MemoryStore) SaveMember(m domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey(m.ProjectID, m.UserID)
	if existing, ok := s.members[key]; ok {
		m.CreatedAt = existing.CreatedAt
	}
	s.members[key] = m
	return nil
}

func (s *MemoryStore) GetMember(projectID, userID string) (domain.Member, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberKey(projectID, userID)]
	return m, ok, nil
}

func (s *MemoryStore) SaveReport(r domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = r
	return nil
}

func (s *MemoryStore) GetReport(id string) (domain.Report, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	return r, ok, nil
}

func (s *MemoryStore) ListReports(projectID string, filter ReportFilter) ([]domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Report, 0)
	for _, r := range s.reports {
		if r.ProjectID != projectID {
			continue
		}
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListReadyReportUsage() ([]domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Report, 0)
	for _, r := range s.reports {
		if r.Status != domain.StatusReady {
			continue
		}
		r.HTMLContent = nil
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteReport(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, id)
	delete(s.claimed, id)
	for fid, f := range s.files {
		if f.ReportID == id {
			delete(s.files, fid)
		}
	}
	for qid, q := range s.questions {
		if q.ReportID == id {
			delete(s.questions, qid)
		}
	}
	for pid, p := range s.proposals {
		if p.ReportID == id {
			delete(s.proposals, pid)
		}
	}
	return nil
}

func (s *MemoryStore) FindOrCreateOverview(candidate domain.Report) (domain.Report, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reports {
		if r.ProjectID == candidate.ProjectID && r.Type == domain.ReportOverview {
			return r, false, nil
		}
	}
	candidate.Type = domain.ReportOverview
	s.reports[candidate.ID] = candidate
	return candidate, true, nil
}

func (s *MemoryStore) MarkProcessing(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = domain.StatusProcessing
	r.HTMLContent = nil
	r.ErrorMessage = ""
	r.UpdatedAt = time.Now().UTC()
	s.reports[id] = r
	delete(s.claimed, id)
	return nil
}

func (s *MemoryStore) MarkRefining(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = domain.StatusProcessing
	r.ErrorMessage = ""
	r.UpdatedAt = time.Now().UTC()
	s.reports[id] = r
	s.claimed[id] = true
	return nil
}

func (s *MemoryStore) ClaimReport(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != domain.StatusProcessing || s.claimed[id] {
		return false, nil
	}
	r.UpdatedAt = time.Now().UTC()
	s.reports[id] = r
	s.claimed[id] = true
	return true, nil
}

func (s *MemoryStore) CompleteReport(id string, c Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return ErrNotFound
	}
	html := c.HTMLContent
	merged := domain.Accumulate(r.AIMetadata, c.Usage)
	r.Status = domain.StatusReady
	r.HTMLContent = &html
	r.ErrorMessage = ""
	r.AIMetadata = &merged
	if c.ExecutiveSummary != nil {
		r.ExecutiveSummary = *c.ExecutiveSummary
	}
	r.UpdatedAt = time.Now().UTC()
	s.reports[id] = r
	delete(s.claimed, id)
	for _, q := range c.Questions {
		s.questions[q.ID] = q
	}
	for _, p := range c.Proposals {
		s.proposals[p.ID] = p
	}
	return nil
}

func (s *MemoryStore) FailReport(id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = domain.StatusError
	r.HTMLContent = nil
	r.ErrorMessage = message
	r.UpdatedAt = time.Now().UTC()
	s.reports[id] = r
	delete(s.claimed, id)
	return nil
}

func (s *MemoryStore) RecoverStale(before time.Time, message string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for id, r := range s.reports {
		if r.Status != domain.StatusProcessing || !r.UpdatedAt.Before(before) {
			continue
		}
		if r.HTMLContent != nil {
			r.Status = domain.StatusReady
		} else {
			r.Status = domain.StatusError
			r.ErrorMessage = message
		}
		r.UpdatedAt = now
		s.reports[id] = r
		delete(s.claimed, id)
		n++
	}
	return n, nil
}

func (s *MemoryStore) ReportSlugTaken(projectID, slug string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reports {
		if r.ProjectID == projectID && r.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetPublishedReport(projectID, slug string) (domain.Report, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reports {
		if r.ProjectID == projectID && r.Slug == slug && r.IsPublished {
			return r, true, nil
		}
	}
	return domain.Report{}, false, nil
}

func (s *MemoryStore) SaveFile(f domain.ReportFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[f.ID] = f
	return nil
}

func (s *MemoryStore) ListFiles(reportID string) ([]domain.ReportFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ReportFile, 0)
	for _, f := range s.files {
		if f.ReportID == reportID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SetFileParsed(id string, rows []domain.Row, columns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return ErrNotFound
	}
	if columns == nil {
		columns = []string{}
	}
	f.ParsedData = rows
	f.Columns = columns
	f.RowCount = len(rows)
	s.files[id] = f
	return nil
}

func (s *MemoryStore) GetQuestion(id string) (domain.Question, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	return q, ok, nil
}

func (s *MemoryStore) ListQuestions(projectID string, status domain.QuestionStatus) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, 0)
	for _, q := range s.questions {
		if q.ProjectID == projectID && (status == "" || q.Status == status) {
			out = append(out, q)
		}
	}
	answered := status == domain.QuestionAnswered
	sort.Slice(out, func(i, j int) bool {
		if answered {
			return earlier(timeOf(out[i].AnsweredAt), timeOf(out[j].AnsweredAt), out[i].ID, out[j].ID)
		}
		return earlier(out[j].CreatedAt, out[i].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *MemoryStore) ResolveQuestion(id string, r QuestionResolution) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, ErrNotFound
	}
	if q.Status != domain.QuestionPending {
		return q, ErrAlreadyResolved
	}
	at := r.At.UTC()
	q.Status = r.Status
	q.Answer = r.Answer
	q.AnsweredByID = r.AnsweredByID
	q.AnsweredAt = &at
	s.questions[id] = q
	return q, nil
}

func (s *MemoryStore) GetProposal(id string) (domain.Proposal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	return p, ok, nil
}

func (s *MemoryStore) ListProposals(projectID string, status domain.ProposalStatus) ([]domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Proposal, 0)
	for _, p := range s.proposals {
		if p.ProjectID == projectID && (status == "" || p.Status == status) {
			out = append(out, p)
		}
	}
	voted := status == domain.ProposalApproved || status == domain.ProposalRejected
	sort.Slice(out, func(i, j int) bool {
		if voted {
			return earlier(timeOf(out[i].VotedAt), timeOf(out[j].VotedAt), out[i].ID, out[j].ID)
		}
		return earlier(out[j].CreatedAt, out[i].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *MemoryStore) ResolveProposal(id string, r ProposalResolution) (domain.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok {
		return domain.Proposal{}, ErrNotFound
	}
	if p.Status != domain.ProposalPending {
		return p, ErrAlreadyResolved
	}
	at := r.At.UTC()
	p.Status = r.Status
	p.VoteComment = r.Comment
	p.VotedByID = r.VotedByID
	p.VotedAt = &at
	s.proposals[id] = p
	return p, nil
}

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// earlier orders by time, then by id so equal timestamps sort stably.
func earlier(a, b time.Time, idA, idB string) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return idA < idB
}
