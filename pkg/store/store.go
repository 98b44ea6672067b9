package store

import (
	"errors"
	"time"

	"sinapsisdata/pkg/domain"
)

var (
	// ErrNotFound is returned by conditional writes whose target row is gone.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyResolved is returned when a question or proposal is no longer PENDING.
	ErrAlreadyResolved = errors.New("already resolved")
)

// ReportFilter narrows ListReports. Zero values match everything.
type ReportFilter struct {
	Type   domain.ReportType
	Status domain.ReportStatus
}

// Completion is the READY transition of a report, written atomically.
type Completion struct {
	HTMLContent      string
	ExecutiveSummary *string
	Usage            domain.AIMetadata
	Questions        []domain.Question
	Proposals        []domain.Proposal
}

// QuestionResolution is a terminal answer or dismissal.
type QuestionResolution struct {
	Status       domain.QuestionStatus
	Answer       *string
	AnsweredByID string
	At           time.Time
}

// ProposalResolution is a terminal approve or reject vote.
type ProposalResolution struct {
	Status    domain.ProposalStatus
	Comment   string
	VotedByID string
	At        time.Time
}

// Store defines persistence operations for the reporting domain.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	UserCount() (int, error)

	// projects and membership
	SaveProject(domain.Project) error
	GetProject(id string) (domain.Project, bool, error)
	GetProjectBySlug(slug string) (domain.Project, bool, error)
	ListProjects() ([]domain.Project, error)
	ListProjectsForUser(userID string) ([]domain.Project, error)
	ProjectSlugTaken(slug string) (bool, error)
	SaveMember(domain.Member) error
	GetMember(projectID, userID string) (domain.Member, bool, error)

	// reports
	SaveReport(domain.Report) error
	GetReport(id string) (domain.Report, bool, error)
	ListReports(projectID string, filter ReportFilter) ([]domain.Report, error)
	ListReadyReportUsage() ([]domain.Report, error)
	DeleteReport(id string) error
	FindOrCreateOverview(candidate domain.Report) (domain.Report, bool, error)
	MarkProcessing(id string) error
	MarkRefining(id string) error
	ClaimReport(id string) (bool, error)
	CompleteReport(id string, c Completion) error
	FailReport(id string, message string) error
	RecoverStale(before time.Time, message string) (int, error)
	ReportSlugTaken(projectID, slug string) (bool, error)
	GetPublishedReport(projectID, slug string) (domain.Report, bool, error)

	// files
	SaveFile(domain.ReportFile) error
	ListFiles(reportID string) ([]domain.ReportFile, error)
	SetFileParsed(id string, rows []domain.Row, columns []string) error

	// feedback
	GetQuestion(id string) (domain.Question, bool, error)
	ListQuestions(projectID string, status domain.QuestionStatus) ([]domain.Question, error)
	ResolveQuestion(id string, res QuestionResolution) (domain.Question, error)
	GetProposal(id string) (domain.Proposal, bool, error)
	ListProposals(projectID string, status domain.ProposalStatus) ([]domain.Proposal, error)
	ResolveProposal(id string, res ProposalResolution) (domain.Proposal, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// UserSessionRevoker is an optional capability that revokes all sessions
// issued for a user since a cutoff time.
type UserSessionRevoker interface {
	RevokeUserSessions(userID string, since time.Time) error
}
