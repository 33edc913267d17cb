// Package memory provides an in-memory SessionStore, used by tests and the
// single-process demo mode.
package memory

import (
	"context"
	"sync"

	"github.com/oralsim/tribunal/pkg/domain"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use; CompareAndAdvance is atomic under the store mutex.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*domain.SessionInstance
	decisions   map[string][]domain.DecisionRecord
	assignments map[string]map[string]domain.RoleAssignment // sessionID -> role -> assignment
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions:    make(map[string]*domain.SessionInstance),
		decisions:   make(map[string][]domain.DecisionRecord),
		assignments: make(map[string]map[string]domain.RoleAssignment),
	}
}

// CreateSession persists a new scheduled session.
func (s *Store) CreateSession(ctx context.Context, session *domain.SessionInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return domain.ErrSessionExists
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

// GetState returns an isolated snapshot of the session.
func (s *Store) GetState(ctx context.Context, sessionID string) (*domain.SessionInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// CompareAndAdvance applies the change only if the stored current node still
// matches expectedNodeID. Finished sessions never match: a terminal-branch
// finish leaves the node empty, the same value a scheduled session starts
// with, and the status guard keeps a stale start from resurrecting it.
func (s *Store) CompareAndAdvance(ctx context.Context, sessionID, expectedNodeID string, change domain.StateChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.CurrentNodeID != expectedNodeID || session.Status == domain.StatusFinished {
		return domain.ErrConflict
	}
	session.Apply(change)
	return nil
}

// AppendDecision inserts an audit record.
func (s *Store) AppendDecision(ctx context.Context, record *domain.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decisions[record.SessionID] = append(s.decisions[record.SessionID], *record)
	return nil
}

// ListDecisions returns the decision log in append order.
func (s *Store) ListDecisions(ctx context.Context, sessionID string) ([]domain.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.DecisionRecord(nil), s.decisions[sessionID]...), nil
}

// AssignRole binds a user to a role, enforcing one user per role and one
// role per user.
func (s *Store) AssignRole(ctx context.Context, assignment domain.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[assignment.SessionID]; !ok {
		return domain.ErrSessionNotFound
	}

	byRole := s.assignments[assignment.SessionID]
	if byRole == nil {
		byRole = make(map[string]domain.RoleAssignment)
		s.assignments[assignment.SessionID] = byRole
	}

	if _, taken := byRole[assignment.Role]; taken {
		return domain.ErrRoleTaken
	}
	for _, existing := range byRole {
		if existing.UserID == assignment.UserID {
			return domain.ErrUserTaken
		}
	}

	byRole[assignment.Role] = assignment
	return nil
}

// GetRoleAssignments returns a snapshot of role bindings keyed by role.
func (s *Store) GetRoleAssignments(ctx context.Context, sessionID string) (map[string]domain.RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.RoleAssignment, len(s.assignments[sessionID]))
	for role, a := range s.assignments[sessionID] {
		out[role] = a
	}
	return out, nil
}

// ArchiveSession soft-archives the session.
func (s *Store) ArchiveSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.Archived = true
	return nil
}
