package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/hay-kot/postbox/internal/auth"
	"github.com/hay-kot/postbox/internal/core/pubsub"
	"github.com/hay-kot/postbox/internal/core/validate"
)

type createTopicRequest struct {
	TopicName string `json:"topic_name"`
	IsPrivate bool   `json:"is_private"`
}

type addMemberRequest struct {
	Username string `json:"username"`
}

type postMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) listTopics(w http.ResponseWriter, r *http.Request) {
	f := pubsub.TopicFilter{
		User:  auth.UserFromContext(r.Context()),
		Match: r.URL.Query().Get("match"),
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": s.svc.ListTopics(r.Context(), f)})
}

// topic resolves the {name} route variable, writing 404 when the topic is absent.
func (s *Server) topic(w http.ResponseWriter, r *http.Request) (pubsub.Topic, bool) {
	name := mux.Vars(r)["name"]
	t, ok := s.svc.GetTopic(r.Context(), name)
	if !ok {
		writeError(w, http.StatusNotFound, "topic not found")
	}
	return t, ok
}

func (s *Server) getTopic(w http.ResponseWriter, r *http.Request) {
	t, ok := s.topic(w, r)
	if !ok {
		return
	}

	if !t.CanRead(auth.UserFromContext(r.Context())) {
		writeError(w, http.StatusForbidden, "topic is private")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (s *Server) createTopic(w http.ResponseWriter, r *http.Request) {
	var req createTopicRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	name := strings.TrimSpace(req.TopicName)
	if err := validate.TopicName(name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user := auth.UserFromContext(r.Context())
	if !s.svc.CreateTopic(r.Context(), name, user, req.IsPrivate) {
		writeError(w, http.StatusUnprocessableEntity, "topic not created")
		return
	}

	writeJSON(w, http.StatusCreated, pubsub.NewTopic(name, user, req.IsPrivate))
}

func (s *Server) deleteTopic(w http.ResponseWriter, r *http.Request) {
	t, ok := s.topic(w, r)
	if !ok {
		return
	}

	if t.Creator != auth.UserFromContext(r.Context()) {
		writeError(w, http.StatusForbidden, "only the creator may delete a topic")
		return
	}

	if !s.svc.DeleteTopic(r.Context(), t.Name) {
		writeError(w, http.StatusInternalServerError, "topic not deleted")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// addMember joins the caller when no username is given, otherwise the caller sponsors
// username.
func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	t, ok := s.topic(w, r)
	if !ok {
		return
	}

	caller := auth.UserFromContext(r.Context())
	user, sponsor := caller, ""
	if req.Username != "" && req.Username != caller {
		user, sponsor = req.Username, caller
	}

	if t.IsPrivate && !t.HasMember(caller) {
		writeError(w, http.StatusForbidden, "topic is private")
		return
	}

	if !s.svc.AddMember(r.Context(), t.Name, user, sponsor) {
		writeError(w, http.StatusUnprocessableEntity, "member not added")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"topic_name": t.Name, "username": user})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	t, ok := s.topic(w, r)
	if !ok {
		return
	}

	if !t.CanWrite(auth.UserFromContext(r.Context())) {
		writeError(w, http.StatusForbidden, "only members may post")
		return
	}

	if !s.svc.Broadcast(r.Context(), t.Name, req.Content) {
		writeError(w, http.StatusInternalServerError, "message not posted")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"topic_name": t.Name, "recipients": len(t.Members)})
}
