package platform

// HealthStatus is the liveness payload returned by the platform.
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// OrgInfo identifies the org the platform is connected to.
type OrgInfo struct {
	OrgID    string `json:"org_id"`
	OrgName  string `json:"org_name"`
	Instance string `json:"instance,omitempty"`
	Edition  string `json:"edition,omitempty"`
}

// QueryResult is the record list returned by an executed query. Records are
// flattened attribute maps; the agent only relies on TotalSize and field
// names.
type QueryResult struct {
	TotalSize int              `json:"total_size"`
	Records   []map[string]any `json:"records"`
}

// SuggestedQuery is a query shape the platform recommends for an object.
type SuggestedQuery struct {
	Description string   `json:"description"`
	Fields      []string `json:"fields"`
}

// ObjectInsights summarizes what the platform has discovered about an object.
type ObjectInsights struct {
	ObjectName       string           `json:"object_name"`
	FieldCount       int              `json:"field_count"`
	RecordTypes      []string         `json:"record_types,omitempty"`
	CommonFields     []string         `json:"common_fields,omitempty"`
	SuggestedQueries []SuggestedQuery `json:"suggested_queries,omitempty"`
}

// FieldUsage is one entry of the ranked most-used-fields analytics.
type FieldUsage struct {
	Field      string  `json:"field"`
	UsageScore float64 `json:"usage_score"`
}

// BundleOptions controls context-bundle generation.
type BundleOptions struct {
	IncludeSamples bool `json:"include_samples,omitempty"`
	MaxFields      int  `json:"max_fields,omitempty"`
}

// ContextBundle references the artifacts persisted by a bundle generation.
type ContextBundle struct {
	BundleID  string   `json:"bundle_id"`
	Artifacts []string `json:"artifacts,omitempty"`
}
