// Package sqlite provides a durable SessionStore backed by SQLite.
//
// CompareAndAdvance is a conditional UPDATE checking the stored current node
// in the WHERE clause, so two racing decisions on the same session resolve
// to exactly one winner without any lock held across requests.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/oralsim/tribunal/pkg/adapters/sqlite/migrations"
	"github.com/oralsim/tribunal/pkg/domain"
	_ "modernc.org/sqlite"
)

// Store implements ports.SessionStore on SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (or creates) a store at the given path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func storageErr(op string, err error) error {
	return fmt.Errorf("sqlite %s: %w: %w", op, domain.ErrStorageUnavailable, err)
}

func encodeVariables(vars map[string]any) (string, error) {
	if len(vars) == 0 {
		return "{}", nil
	}
	encoded, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("marshal variables: %w", err)
	}
	return string(encoded), nil
}

func decodeVariables(value string) (map[string]any, error) {
	vars := make(map[string]any)
	if strings.TrimSpace(value) == "" {
		return vars, nil
	}
	if err := json.Unmarshal([]byte(value), &vars); err != nil {
		return nil, fmt.Errorf("unmarshal variables: %w", err)
	}
	return vars, nil
}

// CreateSession persists a new scheduled session.
func (s *Store) CreateSession(ctx context.Context, session *domain.SessionInstance) error {
	vars, err := encodeVariables(session.Variables)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO sessions (id, graph_id, current_node_id, status, variables, score, archived, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.GraphID, session.CurrentNodeID, string(session.Status),
		vars, session.Score, boolToInt(session.Archived), toMillis(session.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrSessionExists
		}
		return storageErr("insert session", err)
	}
	return nil
}

// GetState retrieves a session snapshot, including its visit history.
func (s *Store) GetState(ctx context.Context, sessionID string) (*domain.SessionInstance, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, graph_id, current_node_id, status, started_at, ended_at, variables, score, archived, created_at
FROM sessions WHERE id = ?`, sessionID)

	var (
		session   domain.SessionInstance
		status    string
		startedAt sql.NullInt64
		endedAt   sql.NullInt64
		varsRaw   string
		archived  int
		createdAt int64
	)
	err := row.Scan(&session.ID, &session.GraphID, &session.CurrentNodeID, &status,
		&startedAt, &endedAt, &varsRaw, &session.Score, &archived, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, storageErr("select session", err)
	}

	session.Status = domain.Status(status)
	session.Archived = archived != 0
	session.CreatedAt = fromMillis(createdAt)
	if startedAt.Valid {
		t := fromMillis(startedAt.Int64)
		session.StartedAt = &t
	}
	if endedAt.Valid {
		t := fromMillis(endedAt.Int64)
		session.EndedAt = &t
	}
	if session.Variables, err = decodeVariables(varsRaw); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT node_id FROM session_visits WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, storageErr("select visits", err)
	}
	defer rows.Close()

	for rows.Next() {
		var nodeID string
		if err := rows.Scan(&nodeID); err != nil {
			return nil, storageErr("scan visit", err)
		}
		session.History = append(session.History, nodeID)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate visits", err)
	}

	return &session, nil
}

// CompareAndAdvance performs the optimistic conditional write. The UPDATE
// only matches when the stored current node equals expectedNodeID and the
// session has not finished; zero affected rows with an existing session
// means another decision won. The status predicate matters because a
// terminal-branch finish leaves the node empty, the same value a scheduled
// session starts with.
func (s *Store) CompareAndAdvance(ctx context.Context, sessionID, expectedNodeID string, change domain.StateChange) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	var varsArg any
	if change.Variables != nil {
		encoded, err := encodeVariables(change.Variables)
		if err != nil {
			return err
		}
		varsArg = encoded
	}

	var startedArg, endedArg any
	if change.StartedAt != nil {
		startedArg = toMillis(*change.StartedAt)
	}
	if change.EndedAt != nil {
		endedArg = toMillis(*change.EndedAt)
	}

	res, err := tx.ExecContext(ctx, `
UPDATE sessions
SET current_node_id = ?,
    status = ?,
    variables = COALESCE(?, variables),
    score = score + ?,
    started_at = COALESCE(?, started_at),
    ended_at = COALESCE(?, ended_at)
WHERE id = ? AND current_node_id = ? AND status != ?`,
		change.NodeID, string(change.Status), varsArg, change.ScoreDelta,
		startedArg, endedArg, sessionID, expectedNodeID, string(domain.StatusFinished))
	if err != nil {
		return storageErr("update session", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if affected == 0 {
		var exists int
		row := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE id = ?`, sessionID)
		if err := row.Scan(&exists); err != nil {
			return storageErr("check session", err)
		}
		if exists == 0 {
			return domain.ErrSessionNotFound
		}
		return domain.ErrConflict
	}

	if change.NodeID != "" {
		_, err = tx.ExecContext(ctx, `
INSERT INTO session_visits (session_id, seq, node_id)
VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM session_visits WHERE session_id = ?), ?)`,
			sessionID, sessionID, change.NodeID)
		if err != nil {
			return storageErr("insert visit", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// AppendDecision inserts an audit record. There is no update or delete.
func (s *Store) AppendDecision(ctx context.Context, record *domain.DecisionRecord) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO decision_records (id, session_id, kind, node_id, option_id, user_id, role, latency_ms, score, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.SessionID, record.Kind, record.NodeID, record.OptionID,
		record.UserID, record.Role, record.LatencyMs, record.Score, toMillis(record.CreatedAt))
	if err != nil {
		return storageErr("insert decision", err)
	}
	return nil
}

// ListDecisions returns the session's audit trail in append order.
func (s *Store) ListDecisions(ctx context.Context, sessionID string) ([]domain.DecisionRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, kind, node_id, option_id, user_id, role, latency_ms, score, created_at
FROM decision_records WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, storageErr("select decisions", err)
	}
	defer rows.Close()

	var records []domain.DecisionRecord
	for rows.Next() {
		record := domain.DecisionRecord{SessionID: sessionID}
		var createdAt int64
		if err := rows.Scan(&record.ID, &record.Kind, &record.NodeID, &record.OptionID,
			&record.UserID, &record.Role, &record.LatencyMs, &record.Score, &createdAt); err != nil {
			return nil, storageErr("scan decision", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate decisions", err)
	}
	return records, nil
}

// AssignRole binds a user to a role, relying on the transaction plus the
// table's unique constraints for the one-per-role / one-per-user invariants.
func (s *Store) AssignRole(ctx context.Context, assignment domain.RoleAssignment) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	row := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE id = ?`, assignment.SessionID)
	if err := row.Scan(&exists); err != nil {
		return storageErr("check session", err)
	}
	if exists == 0 {
		return domain.ErrSessionNotFound
	}

	var roleTaken int
	row = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM role_assignments WHERE session_id = ? AND role = ?`,
		assignment.SessionID, assignment.Role)
	if err := row.Scan(&roleTaken); err != nil {
		return storageErr("check role", err)
	}
	if roleTaken > 0 {
		return domain.ErrRoleTaken
	}

	var userTaken int
	row = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM role_assignments WHERE session_id = ? AND user_id = ?`,
		assignment.SessionID, assignment.UserID)
	if err := row.Scan(&userTaken); err != nil {
		return storageErr("check user", err)
	}
	if userTaken > 0 {
		return domain.ErrUserTaken
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO role_assignments (session_id, role, user_id, guest)
VALUES (?, ?, ?, ?)`,
		assignment.SessionID, assignment.Role, assignment.UserID, boolToInt(assignment.Guest))
	if err != nil {
		return storageErr("insert assignment", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// GetRoleAssignments returns role bindings keyed by role.
func (s *Store) GetRoleAssignments(ctx context.Context, sessionID string) (map[string]domain.RoleAssignment, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT role, user_id, guest FROM role_assignments WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, storageErr("select assignments", err)
	}
	defer rows.Close()

	out := make(map[string]domain.RoleAssignment)
	for rows.Next() {
		assignment := domain.RoleAssignment{SessionID: sessionID}
		var guest int
		if err := rows.Scan(&assignment.Role, &assignment.UserID, &guest); err != nil {
			return nil, storageErr("scan assignment", err)
		}
		assignment.Guest = guest != 0
		out[assignment.Role] = assignment
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate assignments", err)
	}
	return out, nil
}

// ArchiveSession soft-archives the session; decision records stay.
func (s *Store) ArchiveSession(ctx context.Context, sessionID string) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE sessions SET archived = 1 WHERE id = ?`, sessionID)
	if err != nil {
		return storageErr("archive session", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if affected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
