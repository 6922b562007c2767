package report

// CorrectionModule is one dashboard practice card derived from recurring
// weaknesses across past interviews.
type CorrectionModule struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Description string `json:"description"`
	Theme       string `json:"theme"`
}

// DrillItem is one practice drill generated for a correction module.
type DrillItem struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Source      string   `json:"source"`
	Date        string   `json:"date"`
	Summary     string   `json:"summary"`
	Tags        []string `json:"tags"`
	ImpactScore int      `json:"impactScore"`
	Framework   string   `json:"framework"`
}
