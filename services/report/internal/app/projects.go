package app

import (
	"fmt"
	"strings"

	"sinapsisdata/internal/util"
	"sinapsisdata/pkg/domain"
)

// NewProject is the input of CreateProject.
type NewProject struct {
	Name        string
	Description string
	AIContext   string
}

// ProjectUpdate carries optional edits. Nil fields are left untouched.
type ProjectUpdate struct {
	Name        *string
	Description *string
	AIContext   *string
	Status      *string
}

// ListProjects returns every project for admins and the actor's
// memberships otherwise.
func (a *App) ListProjects(actor domain.User) ([]domain.Project, error) {
	if actor.Role == domain.RoleAdmin {
		return a.store.ListProjects()
	}
	return a.store.ListProjectsForUser(actor.ID)
}

// CreateProject adds a project with a unique slug. The creator becomes its
// owner.
func (a *App) CreateProject(actor domain.User, in NewProject) (domain.Project, error) {
	if !canOperate(actor) {
		return domain.Project{}, ErrForbidden
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Project{}, ErrNameRequired
	}
	base := util.Slugify(name)
	if base == "" {
		base = "project"
	}
	slug, err := util.UniqueSlug(base, a.store.ProjectSlugTaken)
	if err != nil {
		return domain.Project{}, fmt.Errorf("assign slug: %w", err)
	}
	now := a.now()
	project := domain.Project{
		ID:          util.NewID(),
		Name:        name,
		Slug:        slug,
		Description: strings.TrimSpace(in.Description),
		AIContext:   strings.TrimSpace(in.AIContext),
		Status:      domain.ProjectActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.SaveProject(project); err != nil {
		return domain.Project{}, fmt.Errorf("save project: %w", err)
	}
	owner := domain.Member{ProjectID: project.ID, UserID: actor.ID, Role: domain.MemberOwner, CreatedAt: now}
	if err := a.store.SaveMember(owner); err != nil {
		return domain.Project{}, fmt.Errorf("save owner: %w", err)
	}
	return project, nil
}

func (a *App) GetProject(actor domain.User, slug string) (domain.Project, error) {
	return a.projectForActor(actor, slug)
}

// UpdateProject edits name, description, AI context and status.
func (a *App) UpdateProject(actor domain.User, slug string, in ProjectUpdate) (domain.Project, error) {
	if !canOperate(actor) {
		return domain.Project{}, ErrForbidden
	}
	project, err := a.projectForActor(actor, slug)
	if err != nil {
		return domain.Project{}, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return domain.Project{}, ErrNameRequired
		}
		project.Name = name
	}
	if in.Description != nil {
		project.Description = strings.TrimSpace(*in.Description)
	}
	if in.AIContext != nil {
		project.AIContext = strings.TrimSpace(*in.AIContext)
	}
	if in.Status != nil {
		status, ok := domain.ParseProjectStatus(*in.Status)
		if !ok {
			return domain.Project{}, ErrInvalidStatus
		}
		project.Status = status
	}
	project.UpdatedAt = a.now()
	if err := a.store.SaveProject(project); err != nil {
		return domain.Project{}, fmt.Errorf("save project: %w", err)
	}
	return project, nil
}
