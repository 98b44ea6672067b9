package app

import (
	"fmt"

	"sinapsisdata/pkg/domain"
)

// canOperate reports whether the role may change reports and feedback.
// Clients are read-only.
func canOperate(u domain.User) bool {
	return u.Role == domain.RoleAdmin || u.Role == domain.RoleConsultant
}

// projectForActor loads a project by slug and checks membership.
func (a *App) projectForActor(actor domain.User, slug string) (domain.Project, error) {
	project, ok, err := a.store.GetProjectBySlug(slug)
	if err != nil {
		return domain.Project{}, fmt.Errorf("get project: %w", err)
	}
	if !ok {
		return domain.Project{}, ErrProjectNotFound
	}
	if _, err := a.membership(actor, project.ID); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// membership returns the actor's membership in a project. Admins pass with
// a synthetic OWNER membership.
func (a *App) membership(actor domain.User, projectID string) (domain.Member, error) {
	if actor.Role == domain.RoleAdmin {
		return domain.Member{ProjectID: projectID, UserID: actor.ID, Role: domain.MemberOwner}, nil
	}
	m, ok, err := a.store.GetMember(projectID, actor.ID)
	if err != nil {
		return domain.Member{}, fmt.Errorf("get member: %w", err)
	}
	if !ok {
		return domain.Member{}, ErrForbidden
	}
	return m, nil
}

// reportForActor loads a report and its project, enforcing membership.
// Clients never see reports that are not READY.
func (a *App) reportForActor(actor domain.User, reportID string) (domain.Report, domain.Project, error) {
	report, ok, err := a.store.GetReport(reportID)
	if err != nil {
		return domain.Report{}, domain.Project{}, fmt.Errorf("get report: %w", err)
	}
	if !ok {
		return domain.Report{}, domain.Project{}, ErrReportNotFound
	}
	project, ok, err := a.store.GetProject(report.ProjectID)
	if err != nil {
		return domain.Report{}, domain.Project{}, fmt.Errorf("get project: %w", err)
	}
	if !ok {
		return domain.Report{}, domain.Project{}, ErrReportNotFound
	}
	if _, err := a.membership(actor, project.ID); err != nil {
		return domain.Report{}, domain.Project{}, err
	}
	if actor.Role == domain.RoleClient && report.Status != domain.StatusReady {
		return domain.Report{}, domain.Project{}, ErrReportNotFound
	}
	return report, project, nil
}

// editableReport is reportForActor plus the operator role check.
func (a *App) editableReport(actor domain.User, reportID string) (domain.Report, domain.Project, error) {
	if !canOperate(actor) {
		return domain.Report{}, domain.Project{}, ErrForbidden
	}
	return a.reportForActor(actor, reportID)
}
