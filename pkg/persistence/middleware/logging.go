package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oralsim/tribunal/pkg/domain"
	"github.com/oralsim/tribunal/pkg/ports"
)

type loggingMiddleware struct {
	next   ports.SessionStore
	logger *slog.Logger
}

// NewLoggingMiddleware logs every store operation with its duration. Reads
// log at debug, writes at info, failures at error.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next ports.SessionStore) ports.SessionStore {
		return &loggingMiddleware{next: next, logger: logger}
	}
}

func (m *loggingMiddleware) observe(level slog.Level, op, sessionID string, start time.Time, err error) {
	if err != nil {
		m.logger.Error("store operation failed",
			"op", op,
			"session_id", sessionID,
			"duration", time.Since(start),
			"err", err,
		)
		return
	}
	m.logger.Log(context.Background(), level, "store operation",
		"op", op,
		"session_id", sessionID,
		"duration", time.Since(start),
	)
}

func (m *loggingMiddleware) CreateSession(ctx context.Context, session *domain.SessionInstance) error {
	start := time.Now()
	err := m.next.CreateSession(ctx, session)
	m.observe(slog.LevelInfo, "create_session", session.ID, start, err)
	return err
}

func (m *loggingMiddleware) GetState(ctx context.Context, sessionID string) (*domain.SessionInstance, error) {
	start := time.Now()
	session, err := m.next.GetState(ctx, sessionID)
	m.observe(slog.LevelDebug, "get_state", sessionID, start, err)
	return session, err
}

func (m *loggingMiddleware) CompareAndAdvance(ctx context.Context, sessionID, expectedNodeID string, change domain.StateChange) error {
	start := time.Now()
	err := m.next.CompareAndAdvance(ctx, sessionID, expectedNodeID, change)
	if errors.Is(err, domain.ErrConflict) {
		// Conflicts are expected under contention; do not log them as
		// failures.
		m.observe(slog.LevelDebug, "compare_and_advance", sessionID, start, nil)
		return err
	}
	m.observe(slog.LevelInfo, "compare_and_advance", sessionID, start, err)
	return err
}

func (m *loggingMiddleware) AppendDecision(ctx context.Context, record *domain.DecisionRecord) error {
	start := time.Now()
	err := m.next.AppendDecision(ctx, record)
	m.observe(slog.LevelInfo, "append_decision", record.SessionID, start, err)
	return err
}

func (m *loggingMiddleware) ListDecisions(ctx context.Context, sessionID string) ([]domain.DecisionRecord, error) {
	start := time.Now()
	records, err := m.next.ListDecisions(ctx, sessionID)
	m.observe(slog.LevelDebug, "list_decisions", sessionID, start, err)
	return records, err
}

func (m *loggingMiddleware) AssignRole(ctx context.Context, assignment domain.RoleAssignment) error {
	start := time.Now()
	err := m.next.AssignRole(ctx, assignment)
	m.observe(slog.LevelInfo, "assign_role", assignment.SessionID, start, err)
	return err
}

func (m *loggingMiddleware) GetRoleAssignments(ctx context.Context, sessionID string) (map[string]domain.RoleAssignment, error) {
	start := time.Now()
	assignments, err := m.next.GetRoleAssignments(ctx, sessionID)
	m.observe(slog.LevelDebug, "get_role_assignments", sessionID, start, err)
	return assignments, err
}

func (m *loggingMiddleware) ArchiveSession(ctx context.Context, sessionID string) error {
	start := time.Now()
	err := m.next.ArchiveSession(ctx, sessionID)
	m.observe(slog.LevelInfo, "archive_session", sessionID, start, err)
	return err
}
