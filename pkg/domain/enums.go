package domain

import "strings"

type ProposalType string

const (
	ProposalAction      ProposalType = "ACTION"
	ProposalInsight     ProposalType = "INSIGHT"
	ProposalRisk        ProposalType = "RISK"
	ProposalOpportunity ProposalType = "OPPORTUNITY"
)

// DefaultProposalType is used when the model returns an unknown type.
const DefaultProposalType = ProposalInsight

type ProposalPriority string

const (
	PriorityLow      ProposalPriority = "LOW"
	PriorityMedium   ProposalPriority = "MEDIUM"
	PriorityHigh     ProposalPriority = "HIGH"
	PriorityCritical ProposalPriority = "CRITICAL"
)

// DefaultProposalPriority is used when the model returns an unknown priority.
const DefaultProposalPriority = PriorityMedium

// ProjectHealth is the traffic-light status an Overview assigns to a project.
type ProjectHealth string

const (
	HealthGreen  ProjectHealth = "GREEN"
	HealthYellow ProjectHealth = "YELLOW"
	HealthRed    ProjectHealth = "RED"
)

// DefaultProjectHealth is used when the model omits or garbles the status.
const DefaultProjectHealth = HealthYellow

// ParseProposalType maps raw model output onto a known type or the default.
func ParseProposalType(raw string) ProposalType {
	switch t := ProposalType(strings.ToUpper(strings.TrimSpace(raw))); t {
	case ProposalAction, ProposalInsight, ProposalRisk, ProposalOpportunity:
		return t
	default:
		return DefaultProposalType
	}
}

// ParseProposalPriority maps raw model output onto a known priority or the default.
func ParseProposalPriority(raw string) ProposalPriority {
	switch p := ProposalPriority(strings.ToUpper(strings.TrimSpace(raw))); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return p
	default:
		return DefaultProposalPriority
	}
}

// ParseProjectHealth maps raw model output onto a known health or the default.
func ParseProjectHealth(raw string) ProjectHealth {
	switch h := ProjectHealth(strings.ToUpper(strings.TrimSpace(raw))); h {
	case HealthGreen, HealthYellow, HealthRed:
		return h
	default:
		return DefaultProjectHealth
	}
}

func ParseReportStatus(raw string) (ReportStatus, bool) {
	switch s := ReportStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusDraft, StatusProcessing, StatusReady, StatusError:
		return s, true
	default:
		return "", false
	}
}

func ParseQuestionStatus(raw string) (QuestionStatus, bool) {
	switch s := QuestionStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case QuestionPending, QuestionAnswered, QuestionDismissed:
		return s, true
	default:
		return "", false
	}
}

func ParseProposalStatus(raw string) (ProposalStatus, bool) {
	switch s := ProposalStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case ProposalPending, ProposalApproved, ProposalRejected:
		return s, true
	default:
		return "", false
	}
}

func ParseProjectStatus(raw string) (ProjectStatus, bool) {
	switch s := ProjectStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case ProjectActive, ProjectPaused, ProjectArchived:
		return s, true
	default:
		return "", false
	}
}
