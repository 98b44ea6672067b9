package app

import (
	"fmt"
	"sort"

	"sinapsisdata/pkg/domain"
)

// Usage aggregates the model usage of every READY report by project and
// by calendar month. Admin only.
func (a *App) Usage(actor domain.User) (domain.UsageSummary, error) {
	if actor.Role != domain.RoleAdmin {
		return domain.UsageSummary{}, ErrForbidden
	}
	reports, err := a.store.ListReadyReportUsage()
	if err != nil {
		return domain.UsageSummary{}, fmt.Errorf("list usage: %w", err)
	}
	projects, err := a.store.ListProjects()
	if err != nil {
		return domain.UsageSummary{}, fmt.Errorf("list projects: %w", err)
	}
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}

	summary := domain.UsageSummary{
		Total:     domain.UsageBucket{Key: "total"},
		ByProject: []domain.UsageBucket{},
		ByMonth:   []domain.UsageBucket{},
	}
	byProject := map[string]*domain.UsageBucket{}
	byMonth := map[string]*domain.UsageBucket{}
	for _, r := range reports {
		var meta domain.AIMetadata
		if r.AIMetadata != nil {
			meta = *r.AIMetadata
		}
		summary.Total.Include(meta)

		pb, ok := byProject[r.ProjectID]
		if !ok {
			pb = &domain.UsageBucket{Key: r.ProjectID, Label: names[r.ProjectID]}
			byProject[r.ProjectID] = pb
		}
		pb.Include(meta)

		month := r.CreatedAt.UTC().Format("2006-01")
		mb, ok := byMonth[month]
		if !ok {
			mb = &domain.UsageBucket{Key: month}
			byMonth[month] = mb
		}
		mb.Include(meta)
	}
	for _, b := range byProject {
		summary.ByProject = append(summary.ByProject, *b)
	}
	for _, b := range byMonth {
		summary.ByMonth = append(summary.ByMonth, *b)
	}
	sort.Slice(summary.ByProject, func(i, j int) bool {
		if summary.ByProject[i].CostUSD != summary.ByProject[j].CostUSD {
			return summary.ByProject[i].CostUSD > summary.ByProject[j].CostUSD
		}
		return summary.ByProject[i].Key < summary.ByProject[j].Key
	})
	sort.Slice(summary.ByMonth, func(i, j int) bool { return summary.ByMonth[i].Key < summary.ByMonth[j].Key })
	return summary, nil
}
