// internal/types/models.go
package types

// InteractionData is a single decrypted interaction. Timestamp is
// milliseconds since the Unix epoch.
type InteractionData struct {
	ComponentID ComponentID `json:"componentId"`
	ActionType  ActionType  `json:"actionType"`
	Timestamp   int64       `json:"timestamp"`
}

// StoredInteraction is the persisted, encrypted form of an interaction.
// All fields except Timestamp are base64 strings. The action type is
// sealed with a fresh random IV per row; the component id is sealed with
// its deterministic IV so the secondary index stays usable for equality
// lookup.
type StoredInteraction struct {
	ActionType    string `json:"actionType"`
	ActionTypeIV  string `json:"actionTypeIV"`
	ComponentID   string `json:"componentId"`
	ComponentIDIV string `json:"componentIdIV"`
	Timestamp     int64  `json:"timestamp"`
}

// ComponentDescriptor describes a preloadable UI unit registered by the
// application.
type ComponentDescriptor struct {
	ID       ComponentID    `json:"id"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Prediction is the result of a next-action query. The zero value means
// no prediction. ComponentID may be empty even when Action is set, when
// the predicted action has no registered binding.
type Prediction struct {
	Action      ActionType  `json:"action,omitempty"`
	ComponentID ComponentID `json:"componentId,omitempty"`
}

// None reports whether the prediction is empty.
func (p Prediction) None() bool {
	return p.Action == ""
}

// GlobalModel is a decrypted server-aggregated model used to seed a cold
// client: per-action totals and per-action hour-of-day histograms. The
// transition matrix is never seeded from the server.
type GlobalModel struct {
	ActionCounts map[ActionType]int64
	TimePatterns map[ActionType][24]int64
}
