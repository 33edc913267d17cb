package middleware

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oralsim/tribunal/pkg/domain"
	"github.com/oralsim/tribunal/pkg/ports"
)

type instrumentationMiddleware struct {
	next ports.SessionStore
	ops  *prometheus.CounterVec
}

// NewInstrumentationMiddleware counts store operations on a counter with
// "op" and "outcome" labels. Outcomes are ok, conflict, and error.
func NewInstrumentationMiddleware(ops *prometheus.CounterVec) Middleware {
	return func(next ports.SessionStore) ports.SessionStore {
		return &instrumentationMiddleware{next: next, ops: ops}
	}
}

func (m *instrumentationMiddleware) count(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrConflict):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	m.ops.WithLabelValues(op, outcome).Inc()
}

func (m *instrumentationMiddleware) CreateSession(ctx context.Context, session *domain.SessionInstance) error {
	err := m.next.CreateSession(ctx, session)
	m.count("create_session", err)
	return err
}

func (m *instrumentationMiddleware) GetState(ctx context.Context, sessionID string) (*domain.SessionInstance, error) {
	session, err := m.next.GetState(ctx, sessionID)
	m.count("get_state", err)
	return session, err
}

func (m *instrumentationMiddleware) CompareAndAdvance(ctx context.Context, sessionID, expectedNodeID string, change domain.StateChange) error {
	err := m.next.CompareAndAdvance(ctx, sessionID, expectedNodeID, change)
	m.count("compare_and_advance", err)
	return err
}

func (m *instrumentationMiddleware) AppendDecision(ctx context.Context, record *domain.DecisionRecord) error {
	err := m.next.AppendDecision(ctx, record)
	m.count("append_decision", err)
	return err
}

func (m *instrumentationMiddleware) ListDecisions(ctx context.Context, sessionID string) ([]domain.DecisionRecord, error) {
	records, err := m.next.ListDecisions(ctx, sessionID)
	m.count("list_decisions", err)
	return records, err
}

func (m *instrumentationMiddleware) AssignRole(ctx context.Context, assignment domain.RoleAssignment) error {
	err := m.next.AssignRole(ctx, assignment)
	m.count("assign_role", err)
	return err
}

func (m *instrumentationMiddleware) GetRoleAssignments(ctx context.Context, sessionID string) (map[string]domain.RoleAssignment, error) {
	assignments, err := m.next.GetRoleAssignments(ctx, sessionID)
	m.count("get_role_assignments", err)
	return assignments, err
}

func (m *instrumentationMiddleware) ArchiveSession(ctx context.Context, sessionID string) error {
	err := m.next.ArchiveSession(ctx, sessionID)
	m.count("archive_session", err)
	return err
}
