package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/postbox/internal/auth"
	"github.com/hay-kot/postbox/internal/core/config"
	"github.com/hay-kot/postbox/internal/core/pubsub"
	"github.com/hay-kot/postbox/internal/metrics"
	"github.com/hay-kot/postbox/internal/printer"
)

type cliHarness struct {
	t     *testing.T
	flags *Flags
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	t.Setenv(config.SecretKeyEnv, "")

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	cols, closer, err := OpenCollections(&cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	return &cliHarness{t: t, flags: &Flags{
		Config:      &cfg,
		Collections: cols,
		Service:     pubsub.New(cols, pubsub.Options{}, zerolog.Nop(), nil),
		Metrics:     metrics.New(),
	}}
}

// run executes a fresh app so flag destinations never leak between invocations.
func (h *cliHarness) run(args ...string) (string, error) {
	h.t.Helper()

	out := &bytes.Buffer{}
	app := &cli.Command{Name: "postbox", Writer: out, Reader: strings.NewReader("")}
	app = NewInitCmd(h.flags).Register(app)
	app = NewUserCmd(h.flags).Register(app)
	app = NewTopicCmd(h.flags).Register(app)
	app = NewMsgCmd(h.flags).Register(app)
	app = NewTokenCmd(h.flags).Register(app)
	app = NewConfigValidateCmd(h.flags).Register(app)
	app = NewDoctorCmd(h.flags).Register(app)

	ctx := printer.NewContext(context.Background(), printer.New(&bytes.Buffer{}))
	err := app.Run(ctx, append([]string{"postbox"}, args...))
	return out.String(), err
}

func (h *cliHarness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, strings.Join(args, " "))
	return out
}

func TestCLI_MessageLifecycle(t *testing.T) {
	h := newCLIHarness(t)

	h.mustRun("init")
	h.mustRun("user", "create", "alice")
	h.mustRun("user", "create", "bob")

	out := h.mustRun("user", "ls")
	assert.Contains(t, out, "1   alice")
	assert.Contains(t, out, "2   bob")

	h.mustRun("topic", "create", "--user", "alice", "news")
	h.mustRun("topic", "join", "--user", "bob", "news")
	_, err := h.run("topic", "join", "--user", "bob", "news")
	require.Error(t, err, "joining twice fails")

	out = h.mustRun("topic", "ls", "--user", "bob")
	assert.Contains(t, out, "alice,bob")

	h.mustRun("msg", "broadcast", "--topic", "news", "hello")
	h.mustRun("msg", "pub", "--topic", "news", "--user", "bob", "direct")

	out = h.mustRun("msg", "pending", "--user", "bob")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var first pubsub.PendingMessage
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "hello", first.Content)
	assert.Equal(t, []string{"alice", "bob"}, first.NotDeliveredTo)

	h.mustRun("msg", "ack", "--user", "bob", "--topic", "news", "direct")
	h.mustRun("msg", "ack", "--user", "bob", "--all")
	assert.Empty(t, h.mustRun("msg", "pending", "--user", "bob"))

	h.mustRun("msg", "ack", "--user", "alice", "--all")
	h.mustRun("msg", "prune")
	messages, _ := h.flags.Service.PruneDelivered(context.Background())
	assert.Zero(t, messages)

	h.mustRun("topic", "delete", "news")
	_, err = h.run("topic", "delete", "news")
	assert.Error(t, err)
}

func TestCLI_PrivateTopicNeedsSponsor(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("init")

	h.mustRun("topic", "create", "--user", "x", "--private", "p")

	_, err := h.run("topic", "join", "--user", "y", "p")
	require.Error(t, err)

	h.mustRun("topic", "join", "--user", "y", "--sponsor", "x", "p")
	assert.Contains(t, h.mustRun("topic", "ls", "--name", "p"), "x,y")
}

func TestCLI_TokenIssue(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("init", "--secret")
	h.mustRun("user", "create", "alice")

	token := strings.TrimSpace(h.mustRun("token", "issue", "alice"))
	require.NotEmpty(t, token)

	secret, err := auth.LoadSecret(h.flags.Config.SecretPath(), config.SecretKeyEnv)
	require.NoError(t, err)

	tokens, err := auth.NewTokens(secret, auth.Options{Algorithm: "HS256", Issuer: "postbox"})
	require.NoError(t, err)

	claims, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	_, err = h.run("token", "issue", "nobody")
	assert.ErrorContains(t, err, "unknown user")
}

func TestCLI_CommandsFailBeforeInit(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run("user", "create", "alice")
	assert.Error(t, err)
}

func TestCLI_DoctorFixesOrphans(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("init", "--secret")

	h.mustRun("topic", "create", "--user", "a", "gone")
	h.mustRun("msg", "broadcast", "--topic", "gone", "bye")
	h.mustRun("topic", "delete", "gone")

	var report struct {
		Healthy bool `json:"healthy"`
		Summary struct {
			Warned int `json:"warned"`
		} `json:"summary"`
	}
	out := h.mustRun("doctor", "--format", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Healthy)
	assert.Positive(t, report.Summary.Warned)

	h.mustRun("doctor", "--fix")
	assert.Empty(t, h.mustRun("msg", "pending", "--user", "a"))
}
