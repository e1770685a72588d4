package routes

import (
	"errors"
	"net/http"

	"github.com/compassionsafe/portal/internal/backend"
	"github.com/compassionsafe/portal/internal/visibility"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil || req.Email == "" || req.Password == "" {
		s.writeError(w, http.StatusBadRequest, "email and password required")
		return
	}

	sess, err := s.BE.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.Log.Info().Str("email", req.Email).Err(err).Msg("login rejected")
		s.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	role := s.lookupRole(r, sess.UserID)

	if err := s.Sess.RenewToken(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "session error")
		return
	}
	s.Sess.Put(r.Context(), "user_id", sess.UserID)
	s.Sess.Put(r.Context(), "role", string(role))
	s.Sess.Put(r.Context(), "access_token", sess.AccessToken)

	s.writeJSON(w, http.StatusOK, map[string]string{
		"user_id": sess.UserID,
		"email":   sess.Email,
		"role":    string(role),
	})
}

// lookupRole asks the backend's user_roles table; anything missing or
// unreachable defaults to the least privileged role.
func (s *Server) lookupRole(r *http.Request, userID string) visibility.Role {
	var row struct {
		Role string `json:"role"`
	}
	err := s.BE.SelectSingle(r.Context(), "user_roles", "user_id", userID, &row)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return visibility.RoleUser
	case err != nil:
		s.Log.Warn().Err(err).Str("user", userID).Msg("role lookup failed")
		return visibility.RoleUser
	}
	switch visibility.Role(row.Role) {
	case visibility.RoleAdmin, visibility.RoleSuperAdmin:
		return visibility.Role(row.Role)
	default:
		return visibility.RoleUser
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if tok := s.Sess.GetString(r.Context(), "access_token"); tok != "" {
		if err := s.BE.SignOut(r.Context(), tok); err != nil {
			s.Log.Warn().Err(err).Msg("backend sign-out failed")
		}
	}
	if err := s.Sess.Destroy(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "session error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, role := s.sessionUser(r)
	s.writeJSON(w, http.StatusOK, map[string]string{"user_id": id, "role": string(role)})
}
