package domain

import "time"

// RoleAssignment binds a user to a role for the duration of one session.
// At most one user per role and one role per user per session.
type RoleAssignment struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	UserID    string `json:"user_id"`

	// Guest marks a placeholder participant without a registered account.
	// Options requiring a registered user are hidden from guests.
	Guest bool `json:"guest,omitempty"`
}

// DecisionKind distinguishes scored decisions from narrative advances in the
// audit log.
const (
	DecisionKindChoice  = "choice"
	DecisionKindAdvance = "advance"
)

// DecisionRecord is one append-only audit entry per accepted decision or
// narrative advance. Records are written once and never mutated; instructor
// evaluations reference them out-of-band.
type DecisionRecord struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`

	// NodeID is the node that was current when the decision was accepted.
	NodeID   string `json:"node_id"`
	OptionID string `json:"option_id,omitempty"`

	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`

	// LatencyMs is the client-reported time between seeing the node and
	// submitting, used by instructors when reviewing performance.
	LatencyMs int64 `json:"latency_ms,omitempty"`

	// Score is the weight of the chosen option (zero for advances).
	Score int `json:"score"`

	CreatedAt time.Time `json:"created_at"`
}
