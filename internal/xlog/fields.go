package xlog

// Canonical field name constants for structured logging, trimmed to the
// handful this system actually emits.
const (
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldEvent    = "event"
	FieldCarName  = "car"
)
