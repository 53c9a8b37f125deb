package domain

// Operation is the structured interpretation of what a user utterance asks
// the agent to do.
type Operation string

const (
	OpInspectSchema Operation = "inspect-schema"
	OpListRecords   Operation = "list-records"
	OpAggregate     Operation = "aggregate"
	OpRecallMemory  Operation = "recall-memory"
	OpSmalltalk     Operation = "smalltalk"
)

// Filter is a single predicate extracted from an utterance. Value is kept as
// a string; the data platform interprets operator-specific literals (for
// example date macros) on its side.
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Intent is the resolved interpretation of one utterance. Limit is zero when
// the utterance did not name one. Degraded marks intents produced by the
// heuristic fallback after a failed classifier escalation.
type Intent struct {
	Operation    Operation `json:"operation"`
	TargetObject string    `json:"target_object"`
	Filters      []Filter  `json:"filters,omitempty"`
	Limit        int       `json:"limit,omitempty"`
	Degraded     bool      `json:"degraded,omitempty"`
}
