package domain

import "time"

// Status defines the lifecycle of a session instance.
type Status string

const (
	// StatusScheduled means the session exists but has not been started.
	StatusScheduled Status = "scheduled"
	// StatusStarted means the session sits at the start node, before the
	// first advance.
	StatusStarted Status = "started"
	// StatusInProgress means at least one decision or advance was accepted.
	StatusInProgress Status = "in_progress"
	// StatusPaused means an instructor suspended the session.
	StatusPaused Status = "paused"
	// StatusFinished means a terminal node (or terminal branch) was reached.
	StatusFinished Status = "finished"
)

// Active reports whether the session currently accepts decisions.
func (s Status) Active() bool {
	return s == StatusStarted || s == StatusInProgress
}

// SessionInstance is one live run of a dialogue graph, bound to a scheduled
// training session. The current-node pointer and the variables map are owned
// exclusively by this instance; they only change through CompareAndAdvance.
type SessionInstance struct {
	ID      string `json:"id"`
	GraphID string `json:"graph_id"`

	// CurrentNodeID is empty until the session starts, and empty again if
	// the session finished through a terminal branch with no destination.
	CurrentNodeID string `json:"current_node_id,omitempty"`

	Status Status `json:"status"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Variables carries free-form key-value state across nodes.
	Variables map[string]any `json:"variables,omitempty"`

	// History is the ordered list of visited node IDs, for audit and
	// progress reporting.
	History []string `json:"history,omitempty"`

	// Score accumulates the weights of chosen options.
	Score int `json:"score"`

	// Archived soft-deletes the session. Instances are never hard-deleted.
	Archived bool `json:"archived,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewSession creates a scheduled session for a graph.
func NewSession(id, graphID string) *SessionInstance {
	return &SessionInstance{
		ID:        id,
		GraphID:   graphID,
		Status:    StatusScheduled,
		Variables: make(map[string]any),
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy, so store snapshots cannot be mutated through
// shared maps or slices.
func (s *SessionInstance) Clone() *SessionInstance {
	out := *s
	out.Variables = make(map[string]any, len(s.Variables))
	for k, v := range s.Variables {
		out.Variables[k] = v
	}
	out.History = append([]string(nil), s.History...)
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	return &out
}

// StateChange describes the transition applied by CompareAndAdvance when the
// expected current node still matches.
type StateChange struct {
	// NodeID is the new current node. Empty when the session finishes
	// through a terminal branch with no destination.
	NodeID string `json:"node_id,omitempty"`

	Status Status `json:"status"`

	// Variables replaces the session's variables map wholesale.
	Variables map[string]any `json:"variables,omitempty"`

	// ScoreDelta is added to the accumulated score.
	ScoreDelta int `json:"score_delta,omitempty"`

	// StartedAt / EndedAt are set on the instance when non-nil.
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Apply mutates the instance with the change. Shared by store adapters so
// they all advance state identically.
func (s *SessionInstance) Apply(change StateChange) {
	s.CurrentNodeID = change.NodeID
	s.Status = change.Status
	if change.Variables != nil {
		s.Variables = change.Variables
	}
	s.Score += change.ScoreDelta
	if change.NodeID != "" {
		s.History = append(s.History, change.NodeID)
	}
	if change.StartedAt != nil {
		s.StartedAt = change.StartedAt
	}
	if change.EndedAt != nil {
		s.EndedAt = change.EndedAt
	}
}
