package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/oralsim/tribunal/internal/logging"
	"github.com/oralsim/tribunal/pkg/domain"
	"github.com/oralsim/tribunal/pkg/graph"
	"github.com/oralsim/tribunal/pkg/ports"
)

// storageRetries bounds the backoff loop for transient storage faults on
// reads. Decision writes are never retried on storage faults, to avoid
// double-scoring.
const storageRetries = 2

const storageBackoff = 50 * time.Millisecond

// Caller identifies who is making a request and what they may do.
type Caller struct {
	UserID string

	// Instructor grants session control operations (start, archive) and the
	// right to push narrative nodes forward without holding a role.
	Instructor bool
}

// Outcome reports the result of an accepted decision or narrative advance.
type Outcome struct {
	// GraphID identifies the dialogue graph the session runs.
	GraphID string

	// NewNodeID is the node the session moved to, empty when the session
	// finished through a terminal branch.
	NewNodeID string

	// Finished is true when the session reached a terminal node or branch.
	Finished bool

	// Score is the weight awarded for the chosen option.
	Score int
}

// StateView is an assembled snapshot for polling clients.
type StateView struct {
	Session *domain.SessionInstance

	// Node is the current node, nil before start and after a terminal
	// branch finish.
	Node *domain.Node

	// WhoseTurn is the role authorized to decide, "" for narrative nodes
	// and inactive sessions.
	WhoseTurn string

	// Progress is visited-nodes over total-reachable-nodes, in [0,1].
	Progress float64

	// Elapsed is the running time since start, frozen once finished.
	Elapsed time.Duration
}

// Coordinator implements the turn-taking rules over a graph registry and a
// session store.
type Coordinator struct {
	graphs *graph.Registry
	store  ports.SessionStore
	logger *slog.Logger
	policy domain.TieBreakPolicy
	newID  func() string
	now    func() time.Time
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLogger configures a logger for data-integrity warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithTieBreakPolicy selects how multiple default options are resolved.
func WithTieBreakPolicy(policy domain.TieBreakPolicy) Option {
	return func(c *Coordinator) {
		c.policy = policy
	}
}

// WithIDGenerator overrides record ID generation, used by tests.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) {
		c.newID = fn
	}
}

// WithClock overrides time, used by tests.
func WithClock(fn func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = fn
	}
}

// New creates a Coordinator.
func New(graphs *graph.Registry, store ports.SessionStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		graphs: graphs,
		store:  store,
		logger: logging.NewNop(),
		policy: domain.TieBreakFirstByOrder,
		newID:  uuid.NewString,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// loadSession reads session state, retrying transient storage faults with
// bounded backoff. Reads are idempotent, so the retry is safe.
func (c *Coordinator) loadSession(ctx context.Context, sessionID string) (*domain.SessionInstance, error) {
	var lastErr error
	for attempt := 0; attempt <= storageRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(storageBackoff):
			}
		}
		session, err := c.store.GetState(ctx, sessionID)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, domain.ErrStorageUnavailable) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Coordinator) graphFor(session *domain.SessionInstance) (*domain.Graph, error) {
	return c.graphs.Get(session.GraphID)
}

// CreateSession registers a scheduled session for a graph, with its initial
// role assignments. An empty sessionID gets a generated one.
func (c *Coordinator) CreateSession(ctx context.Context, graphID, sessionID string, assignments []domain.RoleAssignment) (*domain.SessionInstance, error) {
	g, err := c.graphs.Get(graphID)
	if err != nil {
		return nil, err
	}

	if sessionID == "" {
		sessionID = c.newID()
	}
	session := domain.NewSession(sessionID, g.ID)

	if err := c.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	for _, a := range assignments {
		a.SessionID = sessionID
		if err := c.assignRole(ctx, g, a); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// AssignRole binds a user to a role before the session starts.
func (c *Coordinator) AssignRole(ctx context.Context, sessionID string, assignment domain.RoleAssignment) error {
	session, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusScheduled {
		return domain.ErrAlreadyStarted
	}

	g, err := c.graphFor(session)
	if err != nil {
		return err
	}
	assignment.SessionID = sessionID
	return c.assignRole(ctx, g, assignment)
}

func (c *Coordinator) assignRole(ctx context.Context, g *domain.Graph, assignment domain.RoleAssignment) error {
	if len(g.Roles) > 0 && !containsRole(g.Roles, assignment.Role) {
		return fmt.Errorf("role %q is not part of graph %s", assignment.Role, g.ID)
	}
	return c.store.AssignRole(ctx, assignment)
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// StartSession moves a scheduled session to its start node. Instructor-only;
// requires at least one role assignment.
func (c *Coordinator) StartSession(ctx context.Context, sessionID string, caller Caller) (*domain.SessionInstance, error) {
	if !caller.Instructor {
		return nil, domain.ErrNotInstructor
	}

	session, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case domain.StatusScheduled:
	case domain.StatusFinished:
		return nil, domain.ErrSessionFinished
	default:
		return nil, domain.ErrAlreadyStarted
	}

	assignments, err := c.store.GetRoleAssignments(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, domain.ErrNoAssignments
	}

	g, err := c.graphFor(session)
	if err != nil {
		return nil, err
	}

	now := c.now()
	err = c.store.CompareAndAdvance(ctx, sessionID, "", domain.StateChange{
		NodeID:    g.StartNode().ID,
		Status:    domain.StatusStarted,
		StartedAt: &now,
	})
	if errors.Is(err, domain.ErrConflict) {
		// Someone else started it between our read and write.
		return nil, domain.ErrAlreadyStarted
	}
	if err != nil {
		return nil, err
	}

	return c.loadSession(ctx, sessionID)
}

// WhoseTurn returns the role currently authorized to decide, or "" when the
// current node is narrative or the session is not accepting decisions.
func (c *Coordinator) WhoseTurn(ctx context.Context, sessionID string) (string, error) {
	session, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return c.whoseTurn(session)
}

func (c *Coordinator) whoseTurn(session *domain.SessionInstance) (string, error) {
	if !session.Status.Active() || session.CurrentNodeID == "" {
		return "", nil
	}
	g, err := c.graphFor(session)
	if err != nil {
		return "", err
	}
	node, ok := g.NodeByID(session.CurrentNodeID)
	if !ok {
		return "", fmt.Errorf("session %s points at unknown node %q", session.ID, session.CurrentNodeID)
	}
	return node.TurnRole(), nil
}

// AvailableOptions returns the current node's options for the turn-holder,
// filtered by eligibility. Any other caller gets an empty list: options
// never leak to non-active participants.
func (c *Coordinator) AvailableOptions(ctx context.Context, sessionID, userID string) ([]domain.Option, error) {
	session, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	role, err := c.whoseTurn(session)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return []domain.Option{}, nil
	}

	assignments, err := c.store.GetRoleAssignments(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	assignment, ok := assignments[role]
	if !ok || assignment.UserID != userID {
		return []domain.Option{}, nil
	}

	g, err := c.graphFor(session)
	if err != nil {
		return nil, err
	}
	node, _ := g.NodeByID(session.CurrentNodeID)

	options := make([]domain.Option, 0, len(node.Options))
	for _, opt := range node.Options {
		if opt.Eligible(assignment) {
			options = append(options, opt)
		}
	}
	return options, nil
}

// SubmitDecision validates and applies a decision from userID. On a
// concurrent conflict the validation re-runs once against fresh state; a
// second conflict surfaces domain.ErrStaleState.
func (c *Coordinator) SubmitDecision(ctx context.Context, sessionID, userID, optionID string, latency time.Duration) (*Outcome, error) {
	for attempt := 0; ; attempt++ {
		outcome, err := c.trySubmit(ctx, sessionID, userID, optionID, latency)
		if errors.Is(err, domain.ErrConflict) {
			if attempt == 0 {
				continue
			}
			return nil, domain.ErrStaleState
		}
		return outcome, err
	}
}

func (c *Coordinator) trySubmit(ctx context.Context, sessionID, userID, optionID string, latency time.Duration) (*Outcome, error) {
	session, g, node, err := c.activeNode(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	role := node.TurnRole()
	if role == "" {
		// Narrative node: decisions are not accepted, only advances.
		return nil, domain.ErrNotYourTurn
	}

	assignments, err := c.store.GetRoleAssignments(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	assignment, ok := assignments[role]
	if !ok || assignment.UserID != userID {
		return nil, domain.ErrNotYourTurn
	}

	// Dead-end node that nobody flagged terminal: finish instead of
	// stranding the session.
	if len(node.Options) == 0 && !node.IsTerminal() {
		return c.finishImplicitly(ctx, session, node)
	}

	option, ok := node.OptionByID(optionID)
	if !ok {
		return nil, domain.ErrInvalidOption
	}
	if !option.Eligible(assignment) {
		return nil, domain.ErrIneligibleOption
	}

	change, outcome := c.transitionFor(g, node, option)
	if err := c.store.CompareAndAdvance(ctx, sessionID, node.ID, change); err != nil {
		return nil, err
	}

	record := &domain.DecisionRecord{
		ID:        c.newID(),
		SessionID: sessionID,
		Kind:      domain.DecisionKindChoice,
		NodeID:    node.ID,
		OptionID:  option.ID,
		UserID:    userID,
		Role:      role,
		LatencyMs: latency.Milliseconds(),
		Score:     option.Score,
		CreatedAt: c.now(),
	}
	if err := c.store.AppendDecision(ctx, record); err != nil {
		// The advance already committed; losing the audit entry is worth a
		// loud log but not a client-facing failure.
		c.logger.Error("failed to append decision record",
			"session_id", sessionID,
			"node_id", node.ID,
			"err", err,
		)
	}

	return outcome, nil
}

// AdvanceNarrative pushes the session past a narrative node, or past a node
// with exactly one real path, without scoring. Any participant or the
// instructor may call it.
func (c *Coordinator) AdvanceNarrative(ctx context.Context, sessionID string, caller Caller) (*Outcome, error) {
	for attempt := 0; ; attempt++ {
		outcome, err := c.tryAdvance(ctx, sessionID, caller)
		if errors.Is(err, domain.ErrConflict) {
			if attempt == 0 {
				continue
			}
			return nil, domain.ErrStaleState
		}
		return outcome, err
	}
}

func (c *Coordinator) tryAdvance(ctx context.Context, sessionID string, caller Caller) (*Outcome, error) {
	session, g, node, err := c.activeNode(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !caller.Instructor {
		assignments, err := c.store.GetRoleAssignments(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if !isParticipant(assignments, caller.UserID) {
			return nil, domain.ErrNotYourTurn
		}
	}

	if len(node.Options) == 0 && !node.IsTerminal() {
		return c.finishImplicitly(ctx, session, node)
	}

	if node.TurnRole() != "" && len(node.Options) > 1 {
		// A real decision is pending; advancing would steal the turn.
		return nil, domain.ErrDecisionRequired
	}

	option := node.DefaultOption(c.policy)
	if option == nil {
		return nil, domain.ErrNoPathForward
	}

	change, outcome := c.transitionFor(g, node, option)
	change.ScoreDelta = 0 // narrative advances are never scored
	outcome.Score = 0

	if err := c.store.CompareAndAdvance(ctx, sessionID, node.ID, change); err != nil {
		return nil, err
	}

	record := &domain.DecisionRecord{
		ID:        c.newID(),
		SessionID: sessionID,
		Kind:      domain.DecisionKindAdvance,
		NodeID:    node.ID,
		OptionID:  option.ID,
		UserID:    caller.UserID,
		CreatedAt: c.now(),
	}
	if err := c.store.AppendDecision(ctx, record); err != nil {
		c.logger.Error("failed to append advance record",
			"session_id", sessionID,
			"node_id", node.ID,
			"err", err,
		)
	}

	return outcome, nil
}

// activeNode loads the session and resolves its current node, rejecting
// sessions that do not accept decisions.
func (c *Coordinator) activeNode(ctx context.Context, sessionID string) (*domain.SessionInstance, *domain.Graph, *domain.Node, error) {
	session, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, err
	}

	switch session.Status {
	case domain.StatusScheduled:
		return nil, nil, nil, domain.ErrSessionNotStarted
	case domain.StatusPaused:
		return nil, nil, nil, domain.ErrSessionPaused
	case domain.StatusFinished:
		return nil, nil, nil, domain.ErrSessionFinished
	}

	g, err := c.graphFor(session)
	if err != nil {
		return nil, nil, nil, err
	}
	node, ok := g.NodeByID(session.CurrentNodeID)
	if !ok {
		return nil, nil, nil, fmt.Errorf("session %s points at unknown node %q", sessionID, session.CurrentNodeID)
	}
	return session, g, node, nil
}

// transitionFor computes the state change and outcome of taking an option.
func (c *Coordinator) transitionFor(g *domain.Graph, node *domain.Node, option *domain.Option) (domain.StateChange, *Outcome) {
	change := domain.StateChange{
		Status:     domain.StatusInProgress,
		ScoreDelta: option.Score,
	}
	outcome := &Outcome{GraphID: g.ID, Score: option.Score}

	if option.Target == "" {
		// Terminal branch: the session finishes with no further node.
		now := c.now()
		change.Status = domain.StatusFinished
		change.EndedAt = &now
		outcome.Finished = true
		return change, outcome
	}

	change.NodeID = option.Target
	outcome.NewNodeID = option.Target

	if target, ok := g.NodeByID(option.Target); ok && target.IsTerminal() {
		now := c.now()
		change.Status = domain.StatusFinished
		change.EndedAt = &now
		outcome.Finished = true
	}
	return change, outcome
}

// finishImplicitly closes a session stuck on a dead-end node. Logged as a
// data-integrity warning: the graph should have flagged the node terminal.
func (c *Coordinator) finishImplicitly(ctx context.Context, session *domain.SessionInstance, node *domain.Node) (*Outcome, error) {
	c.logger.Warn("node has no options and is not terminal, finishing session",
		"session_id", session.ID,
		"graph_id", session.GraphID,
		"node_id", node.ID,
	)

	now := c.now()
	err := c.store.CompareAndAdvance(ctx, session.ID, node.ID, domain.StateChange{
		Status:  domain.StatusFinished,
		EndedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{GraphID: session.GraphID, Finished: true}, nil
}

// Snapshot assembles the polling view: current node, whose turn, progress,
// and elapsed time.
func (c *Coordinator) Snapshot(ctx context.Context, sessionID string) (*StateView, error) {
	session, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	g, err := c.graphFor(session)
	if err != nil {
		return nil, err
	}

	view := &StateView{Session: session}

	if session.CurrentNodeID != "" {
		if node, ok := g.NodeByID(session.CurrentNodeID); ok {
			view.Node = node
		}
	}

	role, err := c.whoseTurn(session)
	if err != nil {
		return nil, err
	}
	view.WhoseTurn = role

	if g.ReachableCount() > 0 {
		visited := make(map[string]bool, len(session.History))
		for _, id := range session.History {
			visited[id] = true
		}
		view.Progress = float64(len(visited)) / float64(g.ReachableCount())
		if view.Progress > 1 {
			view.Progress = 1
		}
	}

	if session.StartedAt != nil {
		end := c.now()
		if session.EndedAt != nil {
			end = *session.EndedAt
		}
		view.Elapsed = end.Sub(*session.StartedAt)
	}

	return view, nil
}

// ListDecisions exposes the session's audit trail.
func (c *Coordinator) ListDecisions(ctx context.Context, sessionID string) ([]domain.DecisionRecord, error) {
	if _, err := c.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return c.store.ListDecisions(ctx, sessionID)
}

// RoleAssignments exposes the session's role bindings.
func (c *Coordinator) RoleAssignments(ctx context.Context, sessionID string) (map[string]domain.RoleAssignment, error) {
	return c.store.GetRoleAssignments(ctx, sessionID)
}

// ArchiveSession soft-archives a session. Instructor-only; the instance and
// its audit trail stay readable, nothing is deleted.
func (c *Coordinator) ArchiveSession(ctx context.Context, sessionID string, caller Caller) error {
	if !caller.Instructor {
		return domain.ErrNotInstructor
	}
	if _, err := c.loadSession(ctx, sessionID); err != nil {
		return err
	}
	if err := c.store.ArchiveSession(ctx, sessionID); err != nil {
		return err
	}
	c.logger.Info("session archived", "session_id", sessionID, "by", caller.UserID)
	return nil
}

func isParticipant(assignments map[string]domain.RoleAssignment, userID string) bool {
	for _, a := range assignments {
		if a.UserID == userID {
			return true
		}
	}
	return false
}
