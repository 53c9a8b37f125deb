package domain

// QuerySpec is a bounded, schema-validated description of a record query.
// Fields and filter field names are always a subset of the object's
// discovered available fields at synthesis time, and Limit is always a
// positive value no greater than the configured cap.
type QuerySpec struct {
	Object  string   `json:"object"`
	Fields  []string `json:"fields"`
	Filters []Filter `json:"filters,omitempty"`
	Limit   int      `json:"limit"`
}
