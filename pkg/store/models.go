package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	Status       string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ProjectModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	Slug        string `gorm:"uniqueIndex;not null"`
	Description string `gorm:"type:text"`
	AIContext   string `gorm:"type:text"`
	Status      string `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type MemberModel struct {
	ProjectID string    `gorm:"primaryKey"`
	UserID    string    `gorm:"primaryKey;index"`
	Role      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type ReportModel struct {
	ID               string `gorm:"primaryKey"`
	ProjectID        string `gorm:"not null;index"`
	Type             string `gorm:"not null;index"`
	Title            string `gorm:"not null"`
	Description      string
	Prompt           string  `gorm:"type:text"`
	Status           string  `gorm:"not null;index"`
	HTMLContent      *string `gorm:"type:text"`
	ErrorMessage     string
	AIMetadata       datatypes.JSON `gorm:"type:jsonb"`
	ExecutiveSummary string         `gorm:"type:text"`
	Strengths        string         `gorm:"type:text"`
	Opportunities    string         `gorm:"type:text"`
	IsPublished      bool           `gorm:"not null;default:false"`
	IsPublic         bool           `gorm:"not null;default:false"`
	Slug             string
	PublishedAt      *time.Time
	PeriodFrom       *time.Time
	PeriodTo         *time.Time
	CreatedByID      string
	ClaimedAt        *time.Time
	CreatedAt        time.Time `gorm:"not null;index"`
	UpdatedAt        time.Time `gorm:"not null"`
}

type ReportFileModel struct {
	ID          string `gorm:"primaryKey"`
	ReportID    string `gorm:"not null;index"`
	Filename    string `gorm:"not null"`
	MimeType    string
	Size        int64  `gorm:"not null"`
	StoragePath string `gorm:"not null"`
	ParsedData  datatypes.JSON `gorm:"type:jsonb"`
	Columns     datatypes.JSON `gorm:"type:jsonb"`
	RowCount    int
	CreatedAt   time.Time `gorm:"not null"`
}

type QuestionModel struct {
	ID           string `gorm:"primaryKey"`
	ProjectID    string `gorm:"not null;index"`
	ReportID     string `gorm:"not null;index"`
	Question     string `gorm:"type:text;not null"`
	Context      string `gorm:"type:text"`
	Status       string `gorm:"not null;index"`
	Answer       *string `gorm:"type:text"`
	AnsweredByID string
	AnsweredAt   *time.Time
	CreatedAt    time.Time `gorm:"not null"`
}

type ProposalModel struct {
	ID          string `gorm:"primaryKey"`
	ProjectID   string `gorm:"not null;index"`
	ReportID    string `gorm:"not null;index"`
	Type        string `gorm:"not null"`
	Title       string `gorm:"not null"`
	Description string `gorm:"type:text;not null"`
	Priority    string `gorm:"not null"`
	Status      string `gorm:"not null;index"`
	VotedByID   string
	VotedAt     *time.Time
	VoteComment string `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null"`
}
