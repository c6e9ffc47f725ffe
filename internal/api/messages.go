package api

import (
	"net/http"

	"github.com/hay-kot/postbox/internal/auth"
	"github.com/hay-kot/postbox/internal/core/pubsub"
)

type ackRequest struct {
	Messages []pubsub.MessageRef `json:"messages"`
}

func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"messages": s.svc.GetMessages(r.Context(), user)})
}

func (s *Server) ackMessages(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	user := auth.UserFromContext(r.Context())
	if !s.svc.AcknowledgeMessages(r.Context(), req.Messages, user) {
		writeError(w, http.StatusInternalServerError, "acknowledgment failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"acknowledged": len(req.Messages)})
}
