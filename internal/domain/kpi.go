package domain

// Fact sources recorded on ingested rows.
const (
	FactSourceCSV = "CSV_UPLOAD"
	FactSourceGA4 = "GA4_SYNC"
)

// KPIDefinition is one metric dictionary entry, keyed by KPIKey.
type KPIDefinition struct {
	KPIKey               string `json:"kpi_key"`
	KPIName              string `json:"kpi_name"`
	Description          string `json:"description"`
	Formula              string `json:"formula"`
	InputMetrics         string `json:"input_metrics"`
	Owner                string `json:"owner"`
	BusinessGoalRelation string `json:"business_goal_relation"`
	NorthStarAlignment   string `json:"north_star_alignment"`
}

// NewDraftDefinition seeds a definition for a dangling metric key discovered
// during ingestion. The key doubles as the display name until the owner fills
// in the descriptive fields.
func NewDraftDefinition(key string) KPIDefinition {
	return KPIDefinition{
		KPIKey:  key,
		KPIName: key,
	}
}

// KPIFact is one tenant/site/date row of numeric metric values.
type KPIFact struct {
	TenantID string             `json:"tenant_id"`
	SiteID   *string            `json:"site_id,omitempty"`
	KPIDate  string             `json:"kpi_date"`
	Source   string             `json:"source"`
	KPIs     map[string]float64 `json:"kpis"`
}

// KPIThreshold holds per-tenant alerting bounds for a metric.
type KPIThreshold struct {
	TenantID         string  `json:"tenant_id"`
	KPIKey           string  `json:"kpi_key"`
	KPIName          string  `json:"kpi_name,omitempty"`
	TargetValue      float64 `json:"target_value"`
	WarningThreshold float64 `json:"warning_threshold"`
	FailureThreshold float64 `json:"failure_threshold"`
	ThresholdType    string  `json:"threshold_type"`
	AlertPriority    string  `json:"alert_priority"`
	AlertFrequency   string  `json:"alert_frequency"`
}
