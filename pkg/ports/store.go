package ports

import (
	"context"

	"github.com/oralsim/tribunal/pkg/domain"
)

// SessionStore is the durable, read-after-write-consistent store for session
// instances, role assignments, and the decision log.
//
// Concurrency control is optimistic: CompareAndAdvance is the single
// primitive serializing concurrent decisions on the same session. Readers
// never block writers and vice versa; GetState returns an isolated snapshot.
//
// Storage faults (connectivity, constraint violations) are wrapped in
// domain.ErrStorageUnavailable so callers can tell them apart from domain
// outcomes like domain.ErrConflict.
type SessionStore interface {
	// CreateSession persists a new scheduled session.
	// Returns domain.ErrSessionExists if the ID is taken.
	CreateSession(ctx context.Context, session *domain.SessionInstance) error

	// GetState retrieves a snapshot of the session.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	GetState(ctx context.Context, sessionID string) (*domain.SessionInstance, error)

	// CompareAndAdvance applies the change atomically, but only if the
	// stored current node still equals expectedNodeID at the moment of the
	// write. Returns domain.ErrConflict otherwise: another decision already
	// advanced the session, and the caller must re-read fresh state.
	CompareAndAdvance(ctx context.Context, sessionID, expectedNodeID string, change domain.StateChange) error

	// AppendDecision inserts an audit record. Insert-only: no update or
	// delete operation exists for decision records.
	AppendDecision(ctx context.Context, record *domain.DecisionRecord) error

	// ListDecisions returns the session's decision log in append order.
	ListDecisions(ctx context.Context, sessionID string) ([]domain.DecisionRecord, error)

	// AssignRole binds a user to a role for the session. Returns
	// domain.ErrRoleTaken or domain.ErrUserTaken when the one-user-per-role
	// or one-role-per-user invariant would break.
	AssignRole(ctx context.Context, assignment domain.RoleAssignment) error

	// GetRoleAssignments returns a read-only snapshot of role bindings,
	// keyed by role.
	GetRoleAssignments(ctx context.Context, sessionID string) (map[string]domain.RoleAssignment, error)

	// ArchiveSession soft-archives the session. Sessions are never deleted;
	// decision records survive archival for audit purposes.
	ArchiveSession(ctx context.Context, sessionID string) error
}
