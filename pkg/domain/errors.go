package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrGraphNotFound is returned when a session references an unknown graph.
var ErrGraphNotFound = errors.New("dialogue graph not found")

// ErrSessionExists is returned when creating a session with a taken ID.
var ErrSessionExists = errors.New("session already exists")

// ErrConflict is returned by CompareAndAdvance when the stored current node
// no longer matches the expected one. Not a fault: another decision won the
// race, and the caller must re-read fresh state.
var ErrConflict = errors.New("session state conflict")

// ErrStaleState is surfaced when the bounded conflict retry also failed.
// The client should re-poll and resubmit.
var ErrStaleState = errors.New("session state is stale")

// ErrStorageUnavailable wraps storage-layer faults (connectivity, constraint
// violations) so callers can distinguish them from domain outcomes.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrNotYourTurn is returned when a user submits a decision outside their turn.
var ErrNotYourTurn = errors.New("not your turn")

// ErrInvalidOption is returned when the option does not belong to the
// session's current node.
var ErrInvalidOption = errors.New("option does not belong to current node")

// ErrIneligibleOption is returned when the option's conditions do not hold
// for the acting user.
var ErrIneligibleOption = errors.New("option conditions not met")

// ErrSessionFinished is returned when acting on an already finished session.
var ErrSessionFinished = errors.New("session already finished")

// ErrSessionNotStarted is returned when acting on a session still scheduled.
var ErrSessionNotStarted = errors.New("session not started")

// ErrSessionPaused is returned when acting on a paused session.
var ErrSessionPaused = errors.New("session paused")

// ErrAlreadyStarted is returned when starting a session twice.
var ErrAlreadyStarted = errors.New("session already started")

// ErrNoAssignments is returned when starting a session with no role assignments.
var ErrNoAssignments = errors.New("session has no role assignments")

// ErrRoleTaken is returned when assigning a role that already has a user.
var ErrRoleTaken = errors.New("role already assigned")

// ErrUserTaken is returned when assigning a user that already holds a role.
var ErrUserTaken = errors.New("user already holds a role in this session")

// ErrNotInstructor is returned when a caller without the instructor
// capability attempts an instructor-only operation.
var ErrNotInstructor = errors.New("instructor capability required")

// ErrNoPathForward is returned by a narrative advance when the current node
// offers no unambiguous option to follow.
var ErrNoPathForward = errors.New("node has no default path forward")

// ErrDecisionRequired is returned by a narrative advance when the current
// node demands a real decision from its owning role.
var ErrDecisionRequired = errors.New("node requires a decision")
