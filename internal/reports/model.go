package reports

import "time"

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Report represents an uploaded medical checkup report and its analysis job.
type Report struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"userId"`
	FileName      string    `json:"fileName"`
	FileSizeBytes int64     `json:"fileSize"`
	MimeType      string    `json:"mimeType"`
	StorageKey    string    `json:"-"`
	Status        string    `json:"status"`
	FailureReason string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// AnalysisResult is the structured outcome persisted for a completed report.
type AnalysisResult struct {
	ReportID            string              `json:"reportId"`
	HealthSummary       string              `json:"healthSummary"`
	AbnormalIndicators  []AbnormalIndicator `json:"abnormalIndicators"`
	Recommendations     []Recommendation    `json:"recommendations"`
	RiskFactors         []string            `json:"riskFactors"`
	FollowUpSuggestions []string            `json:"followUpSuggestions"`
	CreatedAt           time.Time           `json:"createdAt"`
}

// AbnormalIndicator is one out-of-range measurement from the report.
type AbnormalIndicator struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	NormalRange string `json:"normalRange"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Recommendation is one actionable suggestion derived from the findings.
type Recommendation struct {
	Category   string `json:"category"`
	Suggestion string `json:"suggestion"`
	Priority   string `json:"priority"`
}
