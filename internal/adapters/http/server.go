// Package http exposes the session gateway: a small JSON façade over the
// turn coordinator, consumed by the Unity client and the instructor panel.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oralsim/tribunal/internal/logging"
	"github.com/oralsim/tribunal/internal/metrics"
	"github.com/oralsim/tribunal/pkg/coordinator"
	"github.com/oralsim/tribunal/pkg/domain"
)

// Server handles the gateway routes. All session semantics live in the
// coordinator; handlers only translate JSON and map errors to stable codes.
type Server struct {
	coord     *coordinator.Coordinator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	jwtSecret []byte
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics attaches prometheus collectors and enables /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithJWTSecret sets the HS256 key used to verify instructor tokens.
func WithJWTSecret(secret []byte) Option {
	return func(s *Server) { s.jwtSecret = secret }
}

// NewServer creates a gateway over the given coordinator.
func NewServer(coord *coordinator.Coordinator, opts ...Option) *Server {
	s := &Server{
		coord:  coord,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the chi router with every gateway route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Post("/roles", s.handleAssignRole)
			r.Post("/start", s.requireInstructor(s.handleStartSession))
			r.Get("/state", s.handleGetState)
			r.Get("/options/{userID}", s.handleGetOptions)
			r.Post("/decisions", s.handleSubmitDecision)
			r.Post("/advance", s.handleAdvance)
			r.Get("/decisions", s.handleListDecisions)
			r.Get("/roles", s.handleListRoles)
			r.Delete("/", s.requireInstructor(s.handleArchiveSession))
		})
	})

	return r
}

// observe records request latency per route pattern, so path parameters do
// not explode label cardinality.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	GraphID   string `json:"graphId"`
	SessionID string `json:"sessionId,omitempty"`
	Roles     []struct {
		Role   string `json:"role"`
		UserID string `json:"userId"`
		Guest  bool   `json:"guest,omitempty"`
	} `json:"roles,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	if req.GraphID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "graphId is required")
		return
	}

	assignments := make([]domain.RoleAssignment, 0, len(req.Roles))
	for _, role := range req.Roles {
		if role.Role == "" || role.UserID == "" {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "each role needs role and userId")
			return
		}
		assignments = append(assignments, domain.RoleAssignment{
			Role:   role.Role,
			UserID: role.UserID,
			Guest:  role.Guest,
		})
	}

	session, err := s.coord.CreateSession(r.Context(), req.GraphID, req.SessionID, assignments)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId": session.ID,
		"graphId":   session.GraphID,
		"status":    session.Status,
	})
}

type assignRoleRequest struct {
	Role   string `json:"role"`
	UserID string `json:"userId"`
	Guest  bool   `json:"guest,omitempty"`
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	if req.Role == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "role and userId are required")
		return
	}

	err := s.coord.AssignRole(r.Context(), sessionID, domain.RoleAssignment{
		Role:   req.Role,
		UserID: req.UserID,
		Guest:  req.Guest,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request, caller coordinator.Caller) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := s.coord.StartSession(r.Context(), sessionID, caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.SessionsStarted.Inc()
	}
	s.logger.Info("session started", "session", sessionID, "graph", session.GraphID, "by", caller.UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":   session.ID,
		"status":      session.Status,
		"currentNode": session.CurrentNodeID,
	})
}

type nodeView struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
	Role string `json:"role,omitempty"`
}

type stateResponse struct {
	SessionID      string         `json:"sessionId"`
	Active         bool           `json:"active"`
	Status         domain.Status  `json:"status"`
	CurrentNode    *nodeView      `json:"currentNode"`
	WhoseTurn      string         `json:"whoseTurn,omitempty"`
	Progress       float64        `json:"progress"`
	ElapsedSeconds float64        `json:"elapsedSeconds"`
	Variables      map[string]any `json:"variables,omitempty"`
	Score          int            `json:"score"`
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	view, err := s.coord.Snapshot(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := stateResponse{
		SessionID:      view.Session.ID,
		Active:         view.Session.Status.Active(),
		Status:         view.Session.Status,
		WhoseTurn:      view.WhoseTurn,
		Progress:       view.Progress,
		ElapsedSeconds: view.Elapsed.Seconds(),
		Variables:      view.Session.Variables,
		Score:          view.Session.Score,
	}
	if view.Node != nil {
		resp.CurrentNode = &nodeView{
			ID:   view.Node.ID,
			Type: view.Node.Type,
			Text: view.Node.Text,
			Role: view.Node.Role,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type optionView struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func (s *Server) handleGetOptions(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userID := chi.URLParam(r, "userID")

	options, err := s.coord.AvailableOptions(r.Context(), sessionID, userID)
	if err != nil {
		// Polling out of turn is normal, not an error: the client keeps
		// polling until options appear.
		if errors.Is(err, domain.ErrNotYourTurn) {
			writeJSON(w, http.StatusOK, map[string]any{"options": []optionView{}})
			return
		}
		writeDomainError(w, err)
		return
	}

	views := make([]optionView, 0, len(options))
	for _, opt := range options {
		views = append(views, optionView{ID: opt.ID, Label: opt.Label})
	}
	writeJSON(w, http.StatusOK, map[string]any{"options": views})
}

type submitDecisionRequest struct {
	UserID    string `json:"userId"`
	OptionID  string `json:"optionId"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
}

type outcomeResponse struct {
	NewNodeID    string `json:"newNodeId,omitempty"`
	Finished     bool   `json:"finished"`
	ScoreAwarded int    `json:"scoreAwarded"`
}

func (s *Server) handleSubmitDecision(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req submitDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.OptionID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "userId and optionId are required")
		return
	}

	latency := time.Duration(req.LatencyMs) * time.Millisecond
	outcome, err := s.coord.SubmitDecision(r.Context(), sessionID, req.UserID, req.OptionID, latency)
	if err != nil {
		if s.metrics != nil && errors.Is(err, domain.ErrStaleState) {
			s.metrics.Conflicts.Inc()
		}
		writeDomainError(w, err)
		return
	}

	s.recordOutcome(domain.DecisionKindChoice, outcome)
	writeJSON(w, http.StatusOK, outcomeResponse{
		NewNodeID:    outcome.NewNodeID,
		Finished:     outcome.Finished,
		ScoreAwarded: outcome.Score,
	})
}

type advanceRequest struct {
	UserID string `json:"userId,omitempty"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	caller, err := s.callerFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, CodeNotAuthenticated, "invalid token")
		return
	}

	// The body is optional (instructor tokens carry the caller), but a body
	// that is present must decode.
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	if caller.UserID == "" {
		caller.UserID = req.UserID
	}

	outcome, err := s.coord.AdvanceNarrative(r.Context(), sessionID, caller)
	if err != nil {
		if s.metrics != nil && errors.Is(err, domain.ErrStaleState) {
			s.metrics.Conflicts.Inc()
		}
		writeDomainError(w, err)
		return
	}

	s.recordOutcome(domain.DecisionKindAdvance, outcome)
	writeJSON(w, http.StatusOK, outcomeResponse{
		NewNodeID:    outcome.NewNodeID,
		Finished:     outcome.Finished,
		ScoreAwarded: outcome.Score,
	})
}

// recordOutcome updates the lifecycle counters after an accepted transition.
func (s *Server) recordOutcome(kind string, outcome *coordinator.Outcome) {
	if s.metrics == nil {
		return
	}
	s.metrics.Decisions.WithLabelValues(outcome.GraphID, kind).Inc()
	if outcome.Finished {
		s.metrics.SessionsFinished.Inc()
	}
}

type decisionView struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	NodeID    string `json:"nodeId"`
	OptionID  string `json:"optionId,omitempty"`
	UserID    string `json:"userId"`
	Role      string `json:"role,omitempty"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
	Score     int    `json:"score"`
	CreatedAt string `json:"createdAt"`
}

func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	records, err := s.coord.ListDecisions(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]decisionView, 0, len(records))
	for _, rec := range records {
		views = append(views, decisionView{
			ID:        rec.ID,
			Kind:      rec.Kind,
			NodeID:    rec.NodeID,
			OptionID:  rec.OptionID,
			UserID:    rec.UserID,
			Role:      rec.Role,
			LatencyMs: rec.LatencyMs,
			Score:     rec.Score,
			CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": views})
}

func (s *Server) handleArchiveSession(w http.ResponseWriter, r *http.Request, caller coordinator.Caller) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.coord.ArchiveSession(r.Context(), sessionID, caller); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	assignments, err := s.coord.RoleAssignments(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]assignRoleRequest, 0, len(assignments))
	for _, a := range assignments {
		views = append(views, assignRoleRequest{Role: a.Role, UserID: a.UserID, Guest: a.Guest})
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": views})
}
