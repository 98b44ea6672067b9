package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"sinapsisdata/pkg/domain"
	"sinapsisdata/pkg/generation"
	"sinapsisdata/pkg/store"
)

// FeedbackAccessor reads the resolved feedback of a project. It never
// caches: every prompt sees the state at the time it is built.
type FeedbackAccessor struct {
	store store.Store
}

func NewFeedbackAccessor(s store.Store) *FeedbackAccessor {
	return &FeedbackAccessor{store: s}
}

// Load runs the three feedback queries concurrently.
func (f *FeedbackAccessor) Load(ctx context.Context, projectID string) (generation.Feedback, error) {
	var (
		approved []domain.Proposal
		rejected []domain.Proposal
		answered []domain.Question
	)
	if err := ctx.Err(); err != nil {
		return generation.Feedback{}, err
	}
	var g errgroup.Group
	g.Go(func() error {
		var err error
		approved, err = f.store.ListProposals(projectID, domain.ProposalApproved)
		return err
	})
	g.Go(func() error {
		var err error
		rejected, err = f.store.ListProposals(projectID, domain.ProposalRejected)
		return err
	})
	g.Go(func() error {
		var err error
		answered, err = f.store.ListQuestions(projectID, domain.QuestionAnswered)
		return err
	})
	if err := g.Wait(); err != nil {
		return generation.Feedback{}, fmt.Errorf("load feedback: %w", err)
	}

	fb := generation.Feedback{
		Approved:       make([]generation.ApprovedProposal, 0, len(approved)),
		RejectedTitles: make([]string, 0, len(rejected)),
		Answered:       make([]generation.AnsweredQuestion, 0, len(answered)),
	}
	for _, p := range approved {
		fb.Approved = append(fb.Approved, generation.ApprovedProposal{
			Title:       p.Title,
			Description: p.Description,
			Type:        p.Type,
			ApprovedAt:  p.VotedAt,
		})
	}
	for _, p := range rejected {
		fb.RejectedTitles = append(fb.RejectedTitles, p.Title)
	}
	for _, q := range answered {
		// Status alone is not trusted: an ANSWERED row must carry an answer.
		if q.Answer == nil || strings.TrimSpace(*q.Answer) == "" {
			continue
		}
		fb.Answered = append(fb.Answered, generation.AnsweredQuestion{Question: q.Question, Answer: *q.Answer})
	}
	return fb, nil
}

// ListQuestions lists a project's questions, optionally by status.
func (a *App) ListQuestions(actor domain.User, projectSlug, status string) ([]domain.Question, error) {
	project, err := a.projectForActor(actor, projectSlug)
	if err != nil {
		return nil, err
	}
	var st domain.QuestionStatus
	if strings.TrimSpace(status) != "" {
		parsed, ok := domain.ParseQuestionStatus(status)
		if !ok {
			return nil, ErrInvalidStatus
		}
		st = parsed
	}
	return a.store.ListQuestions(project.ID, st)
}

// ListProposals lists a project's proposals, optionally by status.
func (a *App) ListProposals(actor domain.User, projectSlug, status string) ([]domain.Proposal, error) {
	project, err := a.projectForActor(actor, projectSlug)
	if err != nil {
		return nil, err
	}
	var st domain.ProposalStatus
	if strings.TrimSpace(status) != "" {
		parsed, ok := domain.ParseProposalStatus(status)
		if !ok {
			return nil, ErrInvalidStatus
		}
		st = parsed
	}
	return a.store.ListProposals(project.ID, st)
}

// AnswerQuestion resolves a PENDING question with a human answer.
func (a *App) AnswerQuestion(actor domain.User, id, answer string) (domain.Question, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return domain.Question{}, ErrAnswerRequired
	}
	return a.resolveQuestion(actor, id, domain.QuestionAnswered, &answer)
}

// DismissQuestion resolves a PENDING question without an answer.
func (a *App) DismissQuestion(actor domain.User, id string) (domain.Question, error) {
	return a.resolveQuestion(actor, id, domain.QuestionDismissed, nil)
}

func (a *App) resolveQuestion(actor domain.User, id string, status domain.QuestionStatus, answer *string) (domain.Question, error) {
	if !canOperate(actor) {
		return domain.Question{}, ErrForbidden
	}
	q, ok, err := a.store.GetQuestion(id)
	if err != nil {
		return domain.Question{}, fmt.Errorf("get question: %w", err)
	}
	if !ok {
		return domain.Question{}, ErrQuestionNotFound
	}
	if _, err := a.membership(actor, q.ProjectID); err != nil {
		return domain.Question{}, err
	}
	updated, err := a.store.ResolveQuestion(id, store.QuestionResolution{
		Status:       status,
		Answer:       answer,
		AnsweredByID: actor.ID,
		At:           a.now(),
	})
	switch {
	case errors.Is(err, store.ErrAlreadyResolved):
		return updated, ErrAlreadyResolved
	case errors.Is(err, store.ErrNotFound):
		return domain.Question{}, ErrQuestionNotFound
	case err != nil:
		return domain.Question{}, fmt.Errorf("resolve question: %w", err)
	}
	return updated, nil
}

// VoteProposal approves or rejects a PENDING proposal.
func (a *App) VoteProposal(actor domain.User, id, action, comment string) (domain.Proposal, error) {
	if !canOperate(actor) {
		return domain.Proposal{}, ErrForbidden
	}
	var status domain.ProposalStatus
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "approve":
		status = domain.ProposalApproved
	case "reject":
		status = domain.ProposalRejected
	default:
		return domain.Proposal{}, ErrInvalidVote
	}
	p, ok, err := a.store.GetProposal(id)
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("get proposal: %w", err)
	}
	if !ok {
		return domain.Proposal{}, ErrProposalNotFound
	}
	if _, err := a.membership(actor, p.ProjectID); err != nil {
		return domain.Proposal{}, err
	}
	updated, err := a.store.ResolveProposal(id, store.ProposalResolution{
		Status:    status,
		Comment:   strings.TrimSpace(comment),
		VotedByID: actor.ID,
		At:        a.now(),
	})
	switch {
	case errors.Is(err, store.ErrAlreadyResolved):
		return updated, ErrAlreadyResolved
	case errors.Is(err, store.ErrNotFound):
		return domain.Proposal{}, ErrProposalNotFound
	case err != nil:
		return domain.Proposal{}, fmt.Errorf("resolve proposal: %w", err)
	}
	return updated, nil
}
