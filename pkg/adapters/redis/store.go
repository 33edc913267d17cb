// Package redis provides a Redis-backed SessionStore.
//
// Concurrent decisions on the same session are serialized by optimistic
// concurrency: CompareAndAdvance runs inside a WATCH/MULTI transaction keyed
// on the session, so a racing write aborts the transaction instead of
// blocking behind a lock.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oralsim/tribunal/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.SessionStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for session keys. Zero means no expiration.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "tribunal:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) sessionKey(id string) string   { return s.prefix + "session:" + id }
func (s *Store) decisionsKey(id string) string { return s.prefix + "decisions:" + id }
func (s *Store) rolesKey(id string) string     { return s.prefix + "roles:" + id }

// storageErr tags backend failures so callers can tell them apart from
// domain outcomes.
func storageErr(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %w", op, domain.ErrStorageUnavailable, err)
}

// CreateSession persists a new session, failing if the ID is taken.
func (s *Store) CreateSession(ctx context.Context, session *domain.SessionInstance) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.sessionKey(session.ID), data, s.ttl).Result()
	if err != nil {
		return storageErr("setnx", err)
	}
	if !ok {
		return domain.ErrSessionExists
	}
	return nil
}

// GetState retrieves the session snapshot.
func (s *Store) GetState(ctx context.Context, sessionID string) (*domain.SessionInstance, error) {
	val, err := s.client.Get(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, storageErr("get", err)
	}

	var session domain.SessionInstance
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// CompareAndAdvance applies the change inside a WATCH transaction. If the
// session key is written between the read and the MULTI/EXEC, the
// transaction aborts and the conflict surfaces as domain.ErrConflict.
func (s *Store) CompareAndAdvance(ctx context.Context, sessionID, expectedNodeID string, change domain.StateChange) error {
	key := s.sessionKey(sessionID)

	txn := func(tx *backend.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, backend.Nil) {
				return domain.ErrSessionNotFound
			}
			return storageErr("get", err)
		}

		var session domain.SessionInstance
		if err := json.Unmarshal([]byte(val), &session); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		// Finished sessions never match: their node can be empty again
		// (terminal branch), and a stale start must not resurrect them.
		if session.CurrentNodeID != expectedNodeID || session.Status == domain.StatusFinished {
			return domain.ErrConflict
		}

		session.Apply(change)
		data, err := json.Marshal(&session)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, backend.TxFailedErr):
		return domain.ErrConflict
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrStorageUnavailable):
		return err
	default:
		return storageErr("watch", err)
	}
}

// AppendDecision pushes an audit record onto the session's log.
func (s *Store) AppendDecision(ctx context.Context, record *domain.DecisionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	if err := s.client.RPush(ctx, s.decisionsKey(record.SessionID), data).Err(); err != nil {
		return storageErr("rpush", err)
	}
	return nil
}

// ListDecisions returns the decision log in append order.
func (s *Store) ListDecisions(ctx context.Context, sessionID string) ([]domain.DecisionRecord, error) {
	vals, err := s.client.LRange(ctx, s.decisionsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, storageErr("lrange", err)
	}

	records := make([]domain.DecisionRecord, 0, len(vals))
	for _, val := range vals {
		var record domain.DecisionRecord
		if err := json.Unmarshal([]byte(val), &record); err != nil {
			return nil, fmt.Errorf("unmarshal decision: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// AssignRole binds a user to a role inside a WATCH transaction so the
// one-user-per-role and one-role-per-user invariants hold under concurrency.
func (s *Store) AssignRole(ctx context.Context, assignment domain.RoleAssignment) error {
	key := s.rolesKey(assignment.SessionID)

	txn := func(tx *backend.Tx) error {
		exists, err := tx.Exists(ctx, s.sessionKey(assignment.SessionID)).Result()
		if err != nil {
			return storageErr("exists", err)
		}
		if exists == 0 {
			return domain.ErrSessionNotFound
		}

		current, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return storageErr("hgetall", err)
		}
		for role, raw := range current {
			if role == assignment.Role {
				return domain.ErrRoleTaken
			}
			var existing domain.RoleAssignment
			if err := json.Unmarshal([]byte(raw), &existing); err != nil {
				return fmt.Errorf("unmarshal assignment: %w", err)
			}
			if existing.UserID == assignment.UserID {
				return domain.ErrUserTaken
			}
		}

		data, err := json.Marshal(assignment)
		if err != nil {
			return fmt.Errorf("marshal assignment: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.HSet(ctx, key, assignment.Role, data)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, backend.TxFailedErr):
		return domain.ErrConflict
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrRoleTaken),
		errors.Is(err, domain.ErrUserTaken),
		errors.Is(err, domain.ErrStorageUnavailable):
		return err
	default:
		return storageErr("watch", err)
	}
}

// GetRoleAssignments returns role bindings keyed by role.
func (s *Store) GetRoleAssignments(ctx context.Context, sessionID string) (map[string]domain.RoleAssignment, error) {
	raw, err := s.client.HGetAll(ctx, s.rolesKey(sessionID)).Result()
	if err != nil {
		return nil, storageErr("hgetall", err)
	}

	out := make(map[string]domain.RoleAssignment, len(raw))
	for role, val := range raw {
		var assignment domain.RoleAssignment
		if err := json.Unmarshal([]byte(val), &assignment); err != nil {
			return nil, fmt.Errorf("unmarshal assignment: %w", err)
		}
		out[role] = assignment
	}
	return out, nil
}

// ArchiveSession flips the archived flag through the same CAS-free watch
// discipline used by CompareAndAdvance, since it does not touch the
// current-node pointer.
func (s *Store) ArchiveSession(ctx context.Context, sessionID string) error {
	key := s.sessionKey(sessionID)

	txn := func(tx *backend.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, backend.Nil) {
				return domain.ErrSessionNotFound
			}
			return storageErr("get", err)
		}

		var session domain.SessionInstance
		if err := json.Unmarshal([]byte(val), &session); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		session.Archived = true

		data, err := json.Marshal(&session)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, backend.TxFailedErr):
		return domain.ErrConflict
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrStorageUnavailable):
		return err
	default:
		return storageErr("watch", err)
	}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
