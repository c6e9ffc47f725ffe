// Package api serves the postbox HTTP interface.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/hay-kot/postbox/internal/auth"
	"github.com/hay-kot/postbox/internal/core/pubsub"
)

// Service is the pubsub surface used by the handlers.
type Service interface {
	ListTopics(ctx context.Context, f pubsub.TopicFilter) []pubsub.Topic
	GetTopic(ctx context.Context, name string) (pubsub.Topic, bool)
	CreateTopic(ctx context.Context, name, user string, private bool) bool
	DeleteTopic(ctx context.Context, name string) bool
	AddMember(ctx context.Context, topicName, user, sponsor string) bool
	CanRead(ctx context.Context, topicName, user string) bool
	CanWrite(ctx context.Context, topicName, user string) bool
	Broadcast(ctx context.Context, topicName, content string) bool
	GetMessages(ctx context.Context, user string) []pubsub.PendingMessage
	AcknowledgeMessages(ctx context.Context, refs []pubsub.MessageRef, user string) bool
	ListUsers(ctx context.Context) []pubsub.User
	GetUser(ctx context.Context, username string) (pubsub.User, bool)
	CreateUser(ctx context.Context, username string) bool
}

// Tokens issues and verifies bearer tokens.
type Tokens interface {
	Issue(username string, extra map[string]any) (string, error)
	Verify(token string) (*auth.Claims, error)
}

// Observer receives request and rate limit events. *metrics.Metrics implements it.
type Observer interface {
	ObserveRequest(route, method string, code int, elapsed time.Duration)
	RateLimited()
}

// Options configures the Server.
type Options struct {
	RateLimit       RateLimit
	ShutdownTimeout time.Duration
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

// RateLimit configures per-user request limiting. A zero RPS disables it.
type RateLimit struct {
	RPS   float64
	Burst int
}

// Server wires the pubsub service to HTTP.
type Server struct {
	svc      Service
	tokens   Tokens
	observer Observer
	limiter  *limiterPool
	opts     Options
	log      zerolog.Logger
}

// New creates a new Server. observer may be nil.
func New(svc Service, tokens Tokens, observer Observer, opts Options, log zerolog.Logger) *Server {
	s := &Server{
		svc:      svc,
		tokens:   tokens,
		observer: observer,
		opts:     opts,
		log:      log,
	}
	if opts.RateLimit.RPS > 0 {
		s.limiter = newLimiterPool(opts.RateLimit.RPS, opts.RateLimit.Burst)
	}
	return s
}

// Handler returns the root handler with all routes and middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestID, s.accessLog)

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()

	public := v1.NewRoute().Subrouter()
	public.Use(s.rateLimit(remoteKey))
	public.HandleFunc("/users", s.listUsers).Methods(http.MethodGet)
	public.HandleFunc("/users", s.createUser).Methods(http.MethodPost)

	private := v1.NewRoute().Subrouter()
	private.Use(s.requireUser, s.rateLimit(userKey))
	private.HandleFunc("/token", s.refreshToken).Methods(http.MethodPost)
	private.HandleFunc("/topics", s.listTopics).Methods(http.MethodGet)
	private.HandleFunc("/topics", s.createTopic).Methods(http.MethodPost)
	private.HandleFunc("/topics/{name}", s.getTopic).Methods(http.MethodGet)
	private.HandleFunc("/topics/{name}", s.deleteTopic).Methods(http.MethodDelete)
	private.HandleFunc("/topics/{name}/members", s.addMember).Methods(http.MethodPost)
	private.HandleFunc("/topics/{name}/messages", s.postMessage).Methods(http.MethodPost)
	private.HandleFunc("/messages", s.getMessages).Methods(http.MethodGet)
	private.HandleFunc("/messages/ack", s.ackMessages).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "no such route")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	var h http.Handler = r
	h = jsonBody(h)
	h = handlers.CompressHandler(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.log}),
		handlers.PrintRecoveryStack(true),
	)(h)
	return h
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.log.WithContext(context.Background()) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Info().Msg("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type recoveryLogger struct {
	log zerolog.Logger
}

func (l recoveryLogger) Println(v ...any) {
	l.log.Error().Msg(fmt.Sprint(v...))
}
