package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oralsim/tribunal/pkg/domain"
)

// Stable machine-readable error codes surfaced to clients. The Unity client
// switches on these; messages are for humans and may change.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotAuthenticated   = "NOT_AUTHENTICATED"
	CodeForbidden          = "FORBIDDEN"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeGraphNotFound      = "GRAPH_NOT_FOUND"
	CodeSessionExists      = "SESSION_EXISTS"
	CodeSessionFinished    = "SESSION_FINISHED"
	CodeSessionNotStarted  = "SESSION_NOT_STARTED"
	CodeSessionPaused      = "SESSION_PAUSED"
	CodeAlreadyStarted     = "ALREADY_STARTED"
	CodeNoRoleAssignments  = "NO_ROLE_ASSIGNMENTS"
	CodeRoleTaken          = "ROLE_TAKEN"
	CodeUserTaken          = "USER_TAKEN"
	CodeNotYourTurn        = "NOT_YOUR_TURN"
	CodeInvalidOption      = "INVALID_OPTION"
	CodeIneligibleOption   = "INELIGIBLE_OPTION"
	CodeStaleState         = "STALE_STATE"
	CodeDecisionRequired   = "DECISION_REQUIRED"
	CodeNoPathForward      = "NO_PATH_FORWARD"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeDomainError maps a domain error to its stable code. Internal detail
// never crosses the boundary: unknown errors collapse to a generic 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, CodeSessionNotFound, "session not found")
	case errors.Is(err, domain.ErrGraphNotFound):
		writeError(w, http.StatusNotFound, CodeGraphNotFound, "dialogue graph not found")
	case errors.Is(err, domain.ErrSessionExists):
		writeError(w, http.StatusConflict, CodeSessionExists, "session already exists")
	case errors.Is(err, domain.ErrSessionFinished):
		writeError(w, http.StatusConflict, CodeSessionFinished, "session already finished")
	case errors.Is(err, domain.ErrSessionNotStarted):
		writeError(w, http.StatusConflict, CodeSessionNotStarted, "session has not started")
	case errors.Is(err, domain.ErrSessionPaused):
		writeError(w, http.StatusConflict, CodeSessionPaused, "session is paused")
	case errors.Is(err, domain.ErrAlreadyStarted):
		writeError(w, http.StatusConflict, CodeAlreadyStarted, "session already started")
	case errors.Is(err, domain.ErrNoAssignments):
		writeError(w, http.StatusConflict, CodeNoRoleAssignments, "session has no role assignments")
	case errors.Is(err, domain.ErrRoleTaken):
		writeError(w, http.StatusConflict, CodeRoleTaken, "role already assigned")
	case errors.Is(err, domain.ErrUserTaken):
		writeError(w, http.StatusConflict, CodeUserTaken, "user already holds a role")
	case errors.Is(err, domain.ErrNotYourTurn):
		writeError(w, http.StatusForbidden, CodeNotYourTurn, "not your turn")
	case errors.Is(err, domain.ErrInvalidOption):
		writeError(w, http.StatusBadRequest, CodeInvalidOption, "option does not belong to the current node")
	case errors.Is(err, domain.ErrIneligibleOption):
		writeError(w, http.StatusForbidden, CodeIneligibleOption, "option conditions not met")
	case errors.Is(err, domain.ErrStaleState):
		writeError(w, http.StatusConflict, CodeStaleState, "state changed, re-poll and retry")
	case errors.Is(err, domain.ErrDecisionRequired):
		writeError(w, http.StatusConflict, CodeDecisionRequired, "current node requires a decision")
	case errors.Is(err, domain.ErrNoPathForward):
		writeError(w, http.StatusConflict, CodeNoPathForward, "current node has no default path")
	case errors.Is(err, domain.ErrNotInstructor):
		writeError(w, http.StatusForbidden, CodeForbidden, "instructor capability required")
	case errors.Is(err, domain.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, CodeStorageUnavailable, "storage unavailable, retry later")
	default:
		writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
	}
}
