package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hay-kot/postbox/internal/auth"
	"github.com/hay-kot/postbox/internal/core/validate"
)

type usernameRequest struct {
	Username string `json:"username"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": s.svc.ListUsers(r.Context())})
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	username := strings.TrimSpace(req.Username)
	if err := validate.Username(username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.svc.CreateUser(r.Context(), username) {
		writeError(w, http.StatusUnprocessableEntity, "user not created")
		return
	}

	writeJSON(w, http.StatusCreated, usernameRequest{Username: username})
}

// refreshToken issues a fresh token for the authenticated caller. Initial tokens
// are only issued by operators through `postbox token issue`.
func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	user, ok := s.svc.GetUser(r.Context(), auth.UserFromContext(r.Context()))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown user")
		return
	}

	token, err := s.tokens.Issue(user.Username, map[string]any{"uid": user.ID})
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("issue token")
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}
