package domain

import "time"

// CapabilityResult is the structured payload returned by a capability call.
// Beyond the record count and field names the agent treats Records as opaque.
type CapabilityResult struct {
	RecordCount int              `json:"record_count"`
	Fields      []string         `json:"fields,omitempty"`
	Records     []map[string]any `json:"records,omitempty"`
	Summary     string           `json:"summary,omitempty"`
}

// Turn is one request/response exchange recorded in a session. Append-only;
// owned by the conversation store.
type Turn struct {
	ID             string
	UserID         string
	Utterance      string
	Intent         Intent
	FunctionCalled string
	FunctionResult *CapabilityResult
	ErrorDetail    string
	Reply          string
	Timestamp      time.Time
	DurationMs     int64
}

// SessionStats summarizes one user's session. MessageCount counts every turn
// ever appended, not just those surviving the retention window.
type SessionStats struct {
	MessageCount int
	Duration     time.Duration
	StartedAt    time.Time
}
