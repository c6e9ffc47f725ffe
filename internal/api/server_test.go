package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/postbox/internal/auth"
	"github.com/hay-kot/postbox/internal/core/pubsub"
	"github.com/hay-kot/postbox/internal/metrics"
	"github.com/hay-kot/postbox/internal/store/pebblekv"
)

type testServer struct {
	t      *testing.T
	http   *httptest.Server
	svc    *pubsub.Service
	tokens *auth.Tokens
}

func newTestServer(t *testing.T, rl RateLimit) *testServer {
	t.Helper()

	db, err := pebblekv.OpenInMemory(zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc := pubsub.New(pubsub.Collections{
		Topics:   pebblekv.NewCollection[pubsub.Topic](db, "topics"),
		Messages: pebblekv.NewCollection[pubsub.PendingMessage](db, "messages"),
		Users:    pebblekv.NewCollection[pubsub.User](db, "users"),
	}, pubsub.Options{}, zerolog.Nop(), nil)
	require.NoError(t, svc.Init(context.Background()))

	tokens, err := auth.NewTokens([]byte("secret"), auth.Options{Algorithm: "HS256", Lifetime: time.Hour})
	require.NoError(t, err)

	m := metrics.New()
	srv := New(svc, tokens, m, Options{RateLimit: rl, Metrics: m.Handler()}, zerolog.Nop())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testServer{t: t, http: ts, svc: svc, tokens: tokens}
}

// do sends a JSON request and decodes the response body into out when non-nil.
func (s *testServer) do(method, path, token string, body any, out any) int {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.http.URL+path, reader)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.http.Client().Do(req)
	require.NoError(s.t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// login registers username and returns an operator issued token for it.
func (s *testServer) login(username string) string {
	s.t.Helper()

	require.Equal(s.t, http.StatusCreated, s.do(http.MethodPost, "/v1/users", "", usernameRequest{Username: username}, nil))

	tok, err := s.tokens.Issue(username, nil)
	require.NoError(s.t, err)
	return tok
}

// raw sends body as is with the given content type, which may be empty.
func (s *testServer) raw(method, path, token, contentType, body string) (int, errorResponse) {
	s.t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, s.http.URL+path, reader)
	require.NoError(s.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.http.Client().Do(req)
	require.NoError(s.t, err)
	defer func() { _ = resp.Body.Close() }()

	var out errorResponse
	if resp.StatusCode >= http.StatusBadRequest {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestServer_Healthz(t *testing.T) {
	s := newTestServer(t, RateLimit{})

	resp, err := s.http.Client().Get(s.http.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestServer_RequiresToken(t *testing.T) {
	s := newTestServer(t, RateLimit{})

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/v1/messages", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/v1/messages", "garbage", nil, nil))
}

func TestServer_AnonymousCannotObtainTokens(t *testing.T) {
	s := newTestServer(t, RateLimit{})
	owner := s.login("owner")
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/v1/topics", owner, createTopicRequest{TopicName: "secret", IsPrivate: true}, nil))

	var tok tokenResponse
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/v1/token", "", usernameRequest{Username: "owner"}, &tok))
	assert.Empty(t, tok.Token)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodDelete, "/v1/topics/secret", tok.Token, nil, nil))
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/topics/secret", owner, nil, nil))
}

func TestServer_RefreshToken(t *testing.T) {
	s := newTestServer(t, RateLimit{})
	alice := s.login("alice")
	s.login("bob")

	var tok tokenResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/token", alice, nil, &tok))

	claims, err := s.tokens.Verify(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.EqualValues(t, 1, claims.Extra["uid"])

	// the body cannot name another user
	status, _ := s.raw(http.MethodPost, "/v1/token", alice, "application/json", `{"username":"bob"}`)
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_RefreshTokenForUnknownUser(t *testing.T) {
	s := newTestServer(t, RateLimit{})
	ghost, err := s.tokens.Issue("ghost", nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/v1/token", ghost, nil, nil))
}

func TestServer_ContentType(t *testing.T) {
	s := newTestServer(t, RateLimit{})
	owner := s.login("owner")
	guest := s.login("guest")
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/v1/topics", owner, createTopicRequest{TopicName: "lobby"}, nil))

	// bodyless self-join needs no content type
	status, _ := s.raw(http.MethodPost, "/v1/topics/lobby/members", guest, "", "")
	assert.Equal(t, http.StatusOK, status)

	status, body := s.raw(http.MethodPost, "/v1/topics/lobby/messages", guest, "text/plain", `{"content":"hi"}`)
	assert.Equal(t, http.StatusUnsupportedMediaType, status)
	assert.Equal(t, "content type must be application/json", body.Error)
}

func TestServer_PublishFlow(t *testing.T) {
	s := newTestServer(t, RateLimit{})
	alice := s.login("alice")
	bob := s.login("bob")

	var users struct {
		Users []pubsub.User `json:"users"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/users", "", nil, &users))
	assert.Equal(t, []pubsub.User{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}}, users.Users)

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/v1/topics", alice, createTopicRequest{TopicName: "news"}, nil))

	// bob cannot post before joining
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/v1/topics/news/messages", bob, postMessageRequest{Content: "hi"}, nil))

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/topics/news/members", bob, nil, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, s.do(http.MethodPost, "/v1/topics/news/members", bob, nil, nil))

	require.Equal(t, http.StatusAccepted, s.do(http.MethodPost, "/v1/topics/news/messages", alice, postMessageRequest{Content: "hello"}, nil))

	var inbox struct {
		Messages []pubsub.PendingMessage `json:"messages"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/messages", bob, nil, &inbox))
	require.Len(t, inbox.Messages, 1)
	assert.Equal(t, "hello", inbox.Messages[0].Content)
	assert.Equal(t, pubsub.ActionMessage, inbox.Messages[0].Action)

	ack := ackRequest{Messages: []pubsub.MessageRef{inbox.Messages[0].Ref()}}
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/messages/ack", bob, ack, nil))
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/messages/ack", bob, ack, nil))

	inbox.Messages = nil
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/messages", bob, nil, &inbox))
	assert.Empty(t, inbox.Messages)

	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/messages", alice, nil, &inbox))
	assert.Len(t, inbox.Messages, 1)
}

func TestServer_PrivateTopic(t *testing.T) {
	s := newTestServer(t, RateLimit{})
	owner := s.login("owner")
	guest := s.login("guest")
	s.login("friend")

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/v1/topics", owner, createTopicRequest{TopicName: "secret", IsPrivate: true}, nil))

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/v1/topics/secret", guest, nil, nil))
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/v1/topics/secret/members", guest, nil, nil))

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/topics/secret/members", owner, addMemberRequest{Username: "guest"}, nil))

	var topic pubsub.Topic
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/topics/secret", guest, nil, &topic))
	assert.Equal(t, []string{"owner", "guest"}, topic.Members)

	// members sponsor others
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/topics/secret/members", guest, addMemberRequest{Username: "friend"}, nil))

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, "/v1/topics/secret", guest, nil, nil))
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/v1/topics/secret", owner, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/v1/topics/secret", owner, nil, nil))
}

func TestServer_ListTopicsMatch(t *testing.T) {
	s := newTestServer(t, RateLimit{})
	tok := s.login("alice")

	for _, name := range []string{"news/world", "news/local", "chat"} {
		require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/v1/topics", tok, createTopicRequest{TopicName: name}, nil))
	}

	var out struct {
		Topics []pubsub.Topic `json:"topics"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/topics?match=news/*", tok, nil, &out))
	require.Len(t, out.Topics, 2)
	assert.Equal(t, "news/world", out.Topics[0].Name)
	assert.Equal(t, "news/local", out.Topics[1].Name)
}

func TestServer_BadRequests(t *testing.T) {
	s := newTestServer(t, RateLimit{})
	tok := s.login("alice")

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/users", "", usernameRequest{}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/users", "", usernameRequest{Username: "a\nb"}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/topics", tok, createTopicRequest{}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/topics", tok, map[string]string{"bogus": "x"}, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/v1/topics/nope/messages", tok, postMessageRequest{Content: "x"}, nil))
}

func TestServer_RateLimit(t *testing.T) {
	s := newTestServer(t, RateLimit{RPS: 0.001, Burst: 2})
	tok, err := s.tokens.Issue("alice", nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/messages", tok, nil, nil))
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/messages", tok, nil, nil))
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodGet, "/v1/messages", tok, nil, nil))

	other, err := s.tokens.Issue("bob", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/messages", other, nil, nil), "limits are per user")
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, RateLimit{})
	s.login("alice")

	resp, err := s.http.Client().Get(s.http.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `postbox_http_requests_total{code="201",method="POST",route="/v1/users"} 1`)
}
