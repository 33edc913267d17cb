package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oralsim/tribunal/internal/metrics"
	"github.com/oralsim/tribunal/pkg/adapters/memory"
	"github.com/oralsim/tribunal/pkg/coordinator"
	"github.com/oralsim/tribunal/pkg/domain"
	"github.com/oralsim/tribunal/pkg/graph"
)

var testSecret = []byte("test-secret")

func testGraph(t *testing.T) *domain.Graph {
	t.Helper()
	g := &domain.Graph{
		ID:    "arraignment",
		Roles: []string{"judge", "prosecutor", "defense"},
		Nodes: []domain.Node{
			{
				ID: "opening", Type: "start", Start: true,
				Text:    "The bailiff calls the case.",
				Options: []domain.Option{{ID: "begin", Label: "Begin", Target: "plea", Default: true}},
			},
			{
				ID: "plea", Type: "decision", Role: "defense",
				Text: "How does the defendant plead?",
				Options: []domain.Option{
					{ID: "guilty", Label: "Guilty", Target: "sentencing", Score: 2},
					{ID: "not-guilty", Label: "Not guilty", Target: "sentencing", Score: 5},
				},
			},
			{ID: "sentencing", Type: "terminal", Terminal: true, Text: "The judge rules."},
		},
	}
	require.NoError(t, g.Validate())
	return g
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	registry := graph.NewRegistry()
	require.NoError(t, registry.Register(testGraph(t)))

	coord := coordinator.New(registry, memory.NewStore())
	srv := NewServer(coord,
		WithJWTSecret(testSecret),
		WithMetrics(metrics.New()),
	)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func signToken(t *testing.T, subject string, instructor bool) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, instructorClaims{
		Instructor: instructor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

// createStartedSession walks a session through creation, role assignment and
// start, returning its ID.
func createStartedSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	resp, body := doJSON(t, ts, http.MethodPost, "/sessions", "", map[string]any{
		"graphId": "arraignment",
		"roles": []map[string]any{
			{"role": "judge", "userId": "u-judge"},
			{"role": "defense", "userId": "u-defense"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := body["sessionId"].(string)
	require.NotEmpty(t, sessionID)

	resp, _ = doJSON(t, ts, http.MethodPost,
		fmt.Sprintf("/sessions/%s/start", sessionID),
		signToken(t, "instructor-1", true), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return sessionID
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, ts, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateSessionValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, ts, http.MethodPost, "/sessions", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeBadRequest, body["code"])

	resp, body = doJSON(t, ts, http.MethodPost, "/sessions", "", map[string]any{
		"graphId": "no-such-graph",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, CodeGraphNotFound, body["code"])
}

func TestStartRequiresInstructor(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, ts, http.MethodPost, "/sessions", "", map[string]any{
		"graphId": "arraignment",
		"roles":   []map[string]any{{"role": "judge", "userId": "u-judge"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := body["sessionId"].(string)

	// No token at all.
	resp, body = doJSON(t, ts, http.MethodPost, "/sessions/"+sessionID+"/start", "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, CodeForbidden, body["code"])

	// A participant token without the instructor capability.
	resp, body = doJSON(t, ts, http.MethodPost, "/sessions/"+sessionID+"/start",
		signToken(t, "u-judge", false), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, CodeForbidden, body["code"])

	// A garbage token.
	resp, body = doJSON(t, ts, http.MethodPost, "/sessions/"+sessionID+"/start",
		"not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, CodeNotAuthenticated, body["code"])

	resp, _ = doJSON(t, ts, http.MethodPost, "/sessions/"+sessionID+"/start",
		signToken(t, "instructor-1", true), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStateAndOptionsFlow(t *testing.T) {
	ts := newTestServer(t)
	sessionID := createStartedSession(t, ts)

	resp, body := doJSON(t, ts, http.MethodGet, "/sessions/"+sessionID+"/state", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "started", body["status"])
	node := body["currentNode"].(map[string]any)
	assert.Equal(t, "opening", node["id"])

	// Narrative node: nobody holds the turn, an advance moves it forward.
	resp, body = doJSON(t, ts, http.MethodPost, "/sessions/"+sessionID+"/advance", "",
		map[string]any{"userId": "u-judge"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "plea", body["newNodeId"])
	assert.Equal(t, false, body["finished"])

	// The defense sees both plea options.
	resp, body = doJSON(t, ts, http.MethodGet, "/sessions/"+sessionID+"/options/u-defense", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	options := body["options"].([]any)
	assert.Len(t, options, 2)

	// Out-of-turn polling is a normal empty response, not an error.
	resp, body = doJSON(t, ts, http.MethodGet, "/sessions/"+sessionID+"/options/u-judge", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["options"])
}

func TestSubmitDecision(t *testing.T) {
	ts := newTestServer(t)
	sessionID := createStartedSession(t, ts)

	_, _ = doJSON(t, ts, http.MethodPost, "/sessions/"+sessionID+"/advance", "",
		map[string]any{"userId": "u-judge"})

	// Out of turn: the judge cannot decide the plea.
	resp, body := doJSON(t, ts, http.MethodPost, "/sessions/"+sessionID+"/decisions", "",
		map[string]any{"userId": "u-judge", "optionId": "guilty"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, CodeNotYourTurn, body["code"])

	// Unknown option.
	resp, body = doJSON(t, ts, http.MethodPost, "/sessions/"+sessionID+"/decisions", "",
		map[string]any{"userId": "u-defense", "optionId": "nolo"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeInvalidOption, body["code"])

	resp, body = doJSON(t, ts, http.MethodPost, "/sessions/"+sessionID+"/decisions", "",
		map[string]any{"userId": "u-defense", "optionId": "not-guilty", "latencyMs": 1200})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sentencing", body["newNodeId"])
	assert.Equal(t, true, body["finished"])
	assert.Equal(t, float64(5), body["scoreAwarded"])

	// Finished sessions reject further decisions.
	resp, body = doJSON(t, ts, http.MethodPost, "/sessions/"+sessionID+"/decisions", "",
		map[string]any{"userId": "u-defense", "optionId": "guilty"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, CodeSessionFinished, body["code"])
}

func TestDecisionAuditTrail(t *testing.T) {
	ts := newTestServer(t)
	sessionID := createStartedSession(t, ts)

	_, _ = doJSON(t, ts, http.MethodPost, "/sessions/"+sessionID+"/advance", "",
		map[string]any{"userId": "u-judge"})
	_, _ = doJSON(t, ts, http.MethodPost, "/sessions/"+sessionID+"/decisions", "",
		map[string]any{"userId": "u-defense", "optionId": "guilty", "latencyMs": 800})

	resp, body := doJSON(t, ts, http.MethodGet, "/sessions/"+sessionID+"/decisions", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	decisions := body["decisions"].([]any)
	require.Len(t, decisions, 2)

	first := decisions[0].(map[string]any)
	assert.Equal(t, "advance", first["kind"])
	assert.Equal(t, "opening", first["nodeId"])

	second := decisions[1].(map[string]any)
	assert.Equal(t, "choice", second["kind"])
	assert.Equal(t, "plea", second["nodeId"])
	assert.Equal(t, "guilty", second["optionId"])
	assert.Equal(t, "u-defense", second["userId"])
	assert.Equal(t, float64(800), second["latencyMs"])
}

func TestAssignRoleEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, ts, http.MethodPost, "/sessions", "", map[string]any{
		"graphId": "arraignment",
		"roles":   []map[string]any{{"role": "judge", "userId": "u-judge"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := body["sessionId"].(string)

	resp, _ = doJSON(t, ts, http.MethodPost, "/sessions/"+sessionID+"/roles", "",
		map[string]any{"role": "defense", "userId": "u-defense", "guest": true})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The same role cannot be claimed twice.
	resp, body = doJSON(t, ts, http.MethodPost, "/sessions/"+sessionID+"/roles", "",
		map[string]any{"role": "defense", "userId": "u-other"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, CodeRoleTaken, body["code"])

	resp, body = doJSON(t, ts, http.MethodGet, "/sessions/"+sessionID+"/roles", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["roles"], 2)
}

func TestUnknownSession(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, ts, http.MethodGet, "/sessions/nope/state", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, CodeSessionNotFound, body["code"])
}

func TestAdvanceRejectsMalformedBody(t *testing.T) {
	ts := newTestServer(t)
	sessionID := createStartedSession(t, ts)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/sessions/"+sessionID+"/advance",
		strings.NewReader(`{"userId": `))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeBadRequest, body["code"])

	// An empty body with an instructor token still advances.
	resp2, body2 := doJSON(t, ts, http.MethodPost, "/sessions/"+sessionID+"/advance",
		signToken(t, "instructor-1", true), nil)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Equal(t, "plea", body2["newNodeId"])
}

func TestArchiveSession(t *testing.T) {
	ts := newTestServer(t)
	sessionID := createStartedSession(t, ts)

	resp, body := doJSON(t, ts, http.MethodDelete, "/sessions/"+sessionID, "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, CodeForbidden, body["code"])

	resp, _ = doJSON(t, ts, http.MethodDelete, "/sessions/"+sessionID,
		signToken(t, "instructor-1", true), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Archived sessions stay readable for review.
	resp, _ = doJSON(t, ts, http.MethodGet, "/sessions/"+sessionID+"/state", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
