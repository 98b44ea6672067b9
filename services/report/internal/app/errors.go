package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// The message is shown to end users and must not enable account enumeration.
	ErrInvalidCredentials = errors.New("incorrect email address or password")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrUserDisabled       = errors.New("account disabled")

	ErrProjectNotFound  = errors.New("project not found")
	ErrReportNotFound   = errors.New("report not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrProposalNotFound = errors.New("proposal not found")
	ErrJobNotFound      = errors.New("job not found")
	ErrFileNotFound     = errors.New("file not found")

	ErrNameRequired      = errors.New("name is required")
	ErrTitleRequired     = errors.New("title is required")
	ErrPromptRequired    = errors.New("prompt is required")
	ErrAnswerRequired    = errors.New("answer is required")
	ErrInvalidVote       = errors.New(`action must be "approve" or "reject"`)
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidPeriod     = errors.New("periodFrom must not be after periodTo")
	ErrNoData            = errors.New("no data to analyze")
	ErrNoContent         = errors.New("report has no content to modify")
	ErrNoReadyReports    = errors.New("at least one generated report is required to create the overview")
	ErrNotCustomReport   = errors.New("operation only applies to custom reports")
	ErrReportNotReady    = errors.New("report is not ready")
	ErrReportBusy        = errors.New("report is already processing")
	ErrAlreadyResolved   = errors.New("already resolved")
	ErrFileRequired      = errors.New("file is required")
	ErrInvalidHTML       = errors.New("uploaded file is not an HTML document")
	ErrJobsUnavailable   = errors.New("job tracking requires queue dispatch")
	ErrRevokeUnsupported = errors.New("session store cannot revoke all sessions")
	ErrGenerationFailed  = errors.New("generation failed")
	ErrInterrupted       = errors.New("generation interrupted")
)
