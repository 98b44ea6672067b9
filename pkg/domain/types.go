package domain

import "time"

type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleConsultant UserRole = "CONSULTANT"
	RoleClient     UserRole = "CLIENT"
)

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

type MemberRole string

const (
	MemberOwner      MemberRole = "OWNER"
	MemberConsultant MemberRole = "CONSULTANT"
	MemberViewer     MemberRole = "VIEWER"
)

type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "ACTIVE"
	ProjectPaused   ProjectStatus = "PAUSED"
	ProjectArchived ProjectStatus = "ARCHIVED"
)

type ReportType string

const (
	ReportCustom   ReportType = "CUSTOM"
	ReportOverview ReportType = "OVERVIEW"
)

type ReportStatus string

const (
	StatusDraft      ReportStatus = "DRAFT"
	StatusProcessing ReportStatus = "PROCESSING"
	StatusReady      ReportStatus = "READY"
	StatusError      ReportStatus = "ERROR"
)

type QuestionStatus string

const (
	QuestionPending   QuestionStatus = "PENDING"
	QuestionAnswered  QuestionStatus = "ANSWERED"
	QuestionDismissed QuestionStatus = "DISMISSED"
)

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "PENDING"
	ProposalApproved ProposalStatus = "APPROVED"
	ProposalRejected ProposalStatus = "REJECTED"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Role         UserRole   `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Slug        string        `json:"slug"`
	Description string        `json:"description,omitempty"`
	AIContext   string        `json:"aiContext,omitempty"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// PromptContext is the steering text handed to the model for this project.
func (p Project) PromptContext() string {
	switch {
	case p.AIContext != "":
		return p.AIContext
	case p.Description != "":
		return p.Description
	default:
		return "Project: " + p.Name
	}
}

type Member struct {
	ProjectID string     `json:"projectId"`
	UserID    string     `json:"userId"`
	Role      MemberRole `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
}

type Report struct {
	ID               string       `json:"id"`
	ProjectID        string       `json:"projectId"`
	Type             ReportType   `json:"type"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	Prompt           string       `json:"prompt"`
	Status           ReportStatus `json:"status"`
	HTMLContent      *string      `json:"htmlContent,omitempty"`
	ErrorMessage     string       `json:"errorMessage,omitempty"`
	AIMetadata       *AIMetadata  `json:"aiMetadata,omitempty"`
	ExecutiveSummary string       `json:"executiveSummary,omitempty"`
	Strengths        string       `json:"strengths,omitempty"`
	Opportunities    string       `json:"opportunities,omitempty"`
	IsPublished      bool         `json:"isPublished"`
	IsPublic         bool         `json:"isPublic"`
	Slug             string       `json:"slug,omitempty"`
	PublishedAt      *time.Time   `json:"publishedAt,omitempty"`
	PeriodFrom       *time.Time   `json:"periodFrom,omitempty"`
	PeriodTo         *time.Time   `json:"periodTo,omitempty"`
	CreatedByID      string       `json:"createdById"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// Row is one ingested record keyed by column name.
type Row map[string]any

type ReportFile struct {
	ID          string    `json:"id"`
	ReportID    string    `json:"reportId"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mimeType"`
	Size        int64     `json:"size"`
	StoragePath string    `json:"-"`
	ParsedData  []Row     `json:"-"`
	Columns     []string  `json:"columns,omitempty"`
	RowCount    int       `json:"rowCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Ingested reports whether the parse step already ran for this file.
func (f ReportFile) Ingested() bool {
	return f.Columns != nil
}

type Question struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"projectId"`
	ReportID     string         `json:"reportId"`
	Question     string         `json:"question"`
	Context      string         `json:"context,omitempty"`
	Status       QuestionStatus `json:"status"`
	Answer       *string        `json:"answer,omitempty"`
	AnsweredByID string         `json:"answeredById,omitempty"`
	AnsweredAt   *time.Time     `json:"answeredAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type Proposal struct {
	ID          string           `json:"id"`
	ProjectID   string           `json:"projectId"`
	ReportID    string           `json:"reportId"`
	Type        ProposalType     `json:"type"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Priority    ProposalPriority `json:"priority"`
	Status      ProposalStatus   `json:"status"`
	VotedByID   string           `json:"votedById,omitempty"`
	VotedAt     *time.Time       `json:"votedAt,omitempty"`
	VoteComment string           `json:"voteComment,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}
