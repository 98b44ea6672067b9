// Package generation builds model prompts for reports, refinements and
// overviews, and turns raw model answers into validated results.
package generation

// Palette is the brand colour set every generated document must use.
type Palette struct {
	Primary    string
	Accent     string
	Background string
	Text       string
}

// Policy holds the tunable parts of the prompt contract. Section ceilings
// and caps change often, so none of them are hardcoded in the builder.
type Policy struct {
	// MaxPromptRows caps the rows embedded in a report prompt.
	MaxPromptRows int
	// MaxOverviewHTMLChars caps each prior report body in an overview prompt.
	MaxOverviewHTMLChars int

	OverviewMaxKPIs       int
	OverviewMaxHighlights int
	OverviewMaxMilestones int
	OverviewMaxInsights   int
	OverviewMinNextSteps  int
	OverviewMaxNextSteps  int
	// OverviewSections replaces the default nine-section structure when set.
	OverviewSections []string

	Language        string
	ChartLibraryURL string
	CSSFrameworkURL string
	FontFamily      string
	Palette         Palette
}

// DefaultPolicy returns the production prompt policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxPromptRows:         500,
		MaxOverviewHTMLChars:  15000,
		OverviewMaxKPIs:       4,
		OverviewMaxHighlights: 10,
		OverviewMaxMilestones: 6,
		OverviewMaxInsights:   5,
		OverviewMinNextSteps:  3,
		OverviewMaxNextSteps:  5,
		Language:              "Spanish",
		ChartLibraryURL:       "https://cdn.jsdelivr.net/npm/echarts@5/dist/echarts.min.js",
		CSSFrameworkURL:       "https://cdn.tailwindcss.com",
		FontFamily:            "Inter, system-ui, sans-serif",
		Palette: Palette{
			Primary:    "#215A6B",
			Accent:     "#F8AE00",
			Background: "#F5F5F5",
			Text:       "#1A1A1A",
		},
	}
}

// withDefaults fills zero fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxPromptRows <= 0 {
		p.MaxPromptRows = d.MaxPromptRows
	}
	if p.MaxOverviewHTMLChars <= 0 {
		p.MaxOverviewHTMLChars = d.MaxOverviewHTMLChars
	}
	if p.OverviewMaxKPIs <= 0 {
		p.OverviewMaxKPIs = d.OverviewMaxKPIs
	}
	if p.OverviewMaxHighlights <= 0 {
		p.OverviewMaxHighlights = d.OverviewMaxHighlights
	}
	if p.OverviewMaxMilestones <= 0 {
		p.OverviewMaxMilestones = d.OverviewMaxMilestones
	}
	if p.OverviewMaxInsights <= 0 {
		p.OverviewMaxInsights = d.OverviewMaxInsights
	}
	if p.OverviewMinNextSteps <= 0 {
		p.OverviewMinNextSteps = d.OverviewMinNextSteps
	}
	if p.OverviewMaxNextSteps < p.OverviewMinNextSteps {
		p.OverviewMaxNextSteps = max(d.OverviewMaxNextSteps, p.OverviewMinNextSteps)
	}
	if p.Language == "" {
		p.Language = d.Language
	}
	if p.ChartLibraryURL == "" {
		p.ChartLibraryURL = d.ChartLibraryURL
	}
	if p.CSSFrameworkURL == "" {
		p.CSSFrameworkURL = d.CSSFrameworkURL
	}
	if p.FontFamily == "" {
		p.FontFamily = d.FontFamily
	}
	if p.Palette == (Palette{}) {
		p.Palette = d.Palette
	}
	return p
}
