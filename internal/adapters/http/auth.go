package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oralsim/tribunal/pkg/coordinator"
)

// instructorClaims is the verified token shape. Issuance lives in an
// external identity service; this gateway only verifies.
type instructorClaims struct {
	Instructor bool `json:"instructor"`
	jwt.RegisteredClaims
}

// callerFromRequest resolves the caller from an optional bearer token.
// Requests without a token get an anonymous, non-instructor caller.
func (s *Server) callerFromRequest(r *http.Request) (coordinator.Caller, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return coordinator.Caller{}, nil
	}

	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return coordinator.Caller{}, fmt.Errorf("malformed authorization header")
	}

	claims := &instructorClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return coordinator.Caller{}, fmt.Errorf("verify token: %w", err)
	}

	return coordinator.Caller{
		UserID:     claims.Subject,
		Instructor: claims.Instructor,
	}, nil
}

// requireInstructor gates instructor-only handlers.
func (s *Server) requireInstructor(next func(w http.ResponseWriter, r *http.Request, caller coordinator.Caller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(s.jwtSecret) == 0 {
			writeError(w, http.StatusUnauthorized, CodeNotAuthenticated, "instructor auth is not configured")
			return
		}
		caller, err := s.callerFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, CodeNotAuthenticated, "invalid or missing token")
			return
		}
		if !caller.Instructor {
			writeError(w, http.StatusForbidden, CodeForbidden, "instructor capability required")
			return
		}
		next(w, r, caller)
	}
}
