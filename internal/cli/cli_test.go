// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymckenzie/assistant/internal/attachment"
	"github.com/mymckenzie/assistant/internal/config"
	"github.com/mymckenzie/assistant/internal/gemini"
	"github.com/mymckenzie/assistant/internal/model"
	"github.com/mymckenzie/assistant/internal/orchestrator"
	"github.com/mymckenzie/assistant/internal/render"
	"github.com/mymckenzie/assistant/internal/storage"
)

// =============================================================================
// HELPERS
// =============================================================================

// fakeProvider answers every request with reply, or fails with err.
type fakeProvider struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests [][]model.Turn
}

func (p *fakeProvider) GenerateContent(_ context.Context, _ string, contents []model.Turn) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, contents)
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func (p *fakeProvider) lastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return ""
	}
	turns := p.requests[len(p.requests)-1]
	return turns[len(turns)-1].Text()
}

// isolate points the config directory at a temporary home.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, name := range []string{
		"GEMINI_API_KEY", "MCKENZIE_MODELS", "MCKENZIE_LOG_LEVEL",
		"MCKENZIE_DATA_DIR", "MCKENZIE_ADDR", "DATABASE_PATH",
		"NO_COLOR", "FORCE_COLOR",
	} {
		t.Setenv(name, "")
	}
	return home
}

type harness struct {
	home     string
	provider *fakeProvider
	out      *bytes.Buffer
	errOut   *bytes.Buffer
}

// run executes the command line with args against provider.
func (h *harness) run(args ...string) error {
	h.out.Reset()
	h.errOut.Reset()
	a := &app{in: strings.NewReader(""), out: h.out, errOut: h.errOut}
	a.newProvider = func(*config.Config) orchestrator.Provider { return h.provider }
	root := a.rootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// writeConfig writes the default config file.
func (h *harness) writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := filepath.Join(h.home, ".mckenzie")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))
}

func newHarness(t *testing.T, reply string) *harness {
	t.Helper()
	return &harness{
		home:     isolate(t),
		provider: &fakeProvider{reply: reply},
		out:      &bytes.Buffer{},
		errOut:   &bytes.Buffer{},
	}
}

type jsonEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *string         `json:"error"`
	Command string          `json:"command"`
}

func decodeEnvelope(t *testing.T, data []byte) jsonEnvelope {
	t.Helper()
	var env jsonEnvelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

// askJSON asks question and returns the conversation it was stored in.
func (h *harness) askJSON(t *testing.T, args ...string) AskResult {
	t.Helper()
	require.NoError(t, h.run(append([]string{"--json", "ask"}, args...)...), h.errOut.String())
	env := decodeEnvelope(t, h.out.Bytes())
	require.True(t, env.Success)
	var res AskResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	return res
}

// =============================================================================
// VERSION
// =============================================================================

func TestVersion(t *testing.T) {
	h := newHarness(t, "")

	require.NoError(t, h.run("version"))
	assert.Contains(t, h.out.String(), "mckenzie "+Version)

	require.NoError(t, h.run("--json", "version"))
	env := decodeEnvelope(t, h.out.Bytes())
	assert.True(t, env.Success)
	assert.Equal(t, "version", env.Command)

	var info VersionInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestVersion_SkipsBrokenConfig(t *testing.T) {
	h := newHarness(t, "")
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("retry = [not toml"), 0600))

	assert.NoError(t, h.run("--config", path, "version"))

	err := h.run("--config", path, "list")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_PrintsReply(t *testing.T) {
	h := newHarness(t, "A McKenzie Friend can sit beside you in court.")

	require.NoError(t, h.run("ask", "What", "is", "a", "McKenzie", "Friend?"))

	assert.Contains(t, h.out.String(), "A McKenzie Friend can sit beside you in court.")
	assert.NotContains(t, h.out.String(), "Thinking")
	assert.Equal(t, "What is a McKenzie Friend?", h.provider.lastPrompt())
}

func TestAsk_JSON(t *testing.T) {
	h := newHarness(t, "Bring your order.")

	res := h.askJSON(t, "--model", "gemini-test", "What should I bring?")

	assert.Equal(t, "Bring your order.", res.Reply)
	assert.Equal(t, []string{"gemini-test"}, res.Models)
	assert.NoError(t, storage.ValidateID(res.ConversationID))
	assert.Empty(t, res.Attachment)
}

func TestAsk_RequiresQuestionOrFile(t *testing.T) {
	h := newHarness(t, "unused")

	err := h.run("ask")
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "question", verr.Field)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
	assert.Empty(t, h.provider.requests)
}

func TestAsk_AttachesFile(t *testing.T) {
	h := newHarness(t, "Your hearing is on Monday.")
	path := filepath.Join(t.TempDir(), "order.txt")
	require.NoError(t, os.WriteFile(path, []byte("Hearing listed for Monday 10am."), 0600))

	res := h.askJSON(t, "--file", path, "When is my hearing?")

	assert.Equal(t, "order.txt", res.Attachment)
	prompt := h.provider.lastPrompt()
	assert.True(t, strings.HasPrefix(prompt, "When is my hearing?"+attachment.ContextHeader), prompt)
	assert.Contains(t, prompt, "Hearing listed for Monday 10am.")
}

func TestAsk_MissingFile(t *testing.T) {
	h := newHarness(t, "unused")

	err := h.run("ask", "--file", filepath.Join(t.TempDir(), "nope.pdf"), "question")
	require.Error(t, err)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestAsk_AllModelsFail(t *testing.T) {
	h := newHarness(t, "")
	h.writeConfig(t, "[retry]\nceiling = 0\n")
	h.provider.err = &gemini.APIError{Status: 503, Message: "The model is overloaded."}

	err := h.run("ask", "--model", "a", "--model", "b", "Hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, orchestrator.ErrAllModelsExhausted))
	assert.Equal(t, ExitNetworkError, GetExitCode(err))
	assert.Contains(t, h.out.String(), "overloaded")
	assert.Len(t, h.provider.requests, 2)
}

func TestAsk_NonRetryableFailure(t *testing.T) {
	h := newHarness(t, "")
	h.provider.err = errors.New("API key not valid")

	err := h.run("ask", "--model", "a", "--model", "b", "Hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, orchestrator.ErrNonRetryable))
	assert.Equal(t, ExitGeneralError, GetExitCode(err))
	assert.Len(t, h.provider.requests, 1)
}

func TestAsk_ContinuesConversation(t *testing.T) {
	h := newHarness(t, "First answer.")
	first := h.askJSON(t, "First question")

	h.provider.reply = "Second answer."
	second := h.askJSON(t, "-c", first.ConversationID, "Second question")
	assert.Equal(t, first.ConversationID, second.ConversationID)

	// The system prompt leads every request.
	turns := h.provider.requests[len(h.provider.requests)-1]
	require.Len(t, turns, 4)
	assert.Equal(t, config.DefaultSystemPrompt, turns[0].Text())
	assert.Equal(t, "First question", turns[1].Text())
	assert.Equal(t, "First answer.", turns[2].Text())
	assert.Equal(t, "Second question", turns[3].Text())
}

func TestAsk_RejectsBadConversationID(t *testing.T) {
	h := newHarness(t, "unused")

	err := h.run("ask", "-c", "../etc/passwd", "question")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

// =============================================================================
// LIST AND EXPORT
// =============================================================================

func TestListAndExport(t *testing.T) {
	h := newHarness(t, "Use form N244.")
	res := h.askJSON(t, "How do I apply to adjourn?")

	require.NoError(t, h.run("list"))
	assert.Contains(t, h.out.String(), res.ConversationID)

	require.NoError(t, h.run("--json", "list"))
	env := decodeEnvelope(t, h.out.Bytes())
	var metas []storage.ConversationMeta
	require.NoError(t, json.Unmarshal(env.Data, &metas))
	require.Len(t, metas, 1)
	assert.Equal(t, res.ConversationID, metas[0].ID)
	assert.Equal(t, 2, metas[0].TurnCount)

	require.NoError(t, h.run("export", res.ConversationID, "-o", "-"))
	assert.Contains(t, h.out.String(), "How do I apply to adjourn?")
	assert.Contains(t, h.out.String(), "Use form N244.")

	dir := t.TempDir()
	target := filepath.Join(dir, "hearing.json")
	require.NoError(t, h.run("export", res.ConversationID, "--format", "json", "-o", target))
	assert.Contains(t, h.out.String(), target)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Use form N244.")
}

func TestList_Empty(t *testing.T) {
	h := newHarness(t, "")

	require.NoError(t, h.run("list"))
	assert.Contains(t, h.out.String(), "No conversations yet")
}

func TestList_OtherUser(t *testing.T) {
	h := newHarness(t, "reply")
	h.askJSON(t, "question")

	require.NoError(t, h.run("--user", "someone_else", "--json", "list"))
	env := decodeEnvelope(t, h.out.Bytes())
	var metas []storage.ConversationMeta
	require.NoError(t, json.Unmarshal(env.Data, &metas))
	assert.Empty(t, metas)
}

func TestExport_Errors(t *testing.T) {
	h := newHarness(t, "")

	err := h.run("export", "conv_missing", "-o", "-")
	require.Error(t, err)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))

	err = h.run("export", "conv_missing", "--format", "docx")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_SetGetPath(t *testing.T) {
	h := newHarness(t, "")

	require.NoError(t, h.run("config", "path"))
	path := strings.TrimSpace(h.out.String())
	assert.True(t, strings.HasSuffix(path, filepath.Join(".mckenzie", "config.toml")), path)

	require.NoError(t, h.run("config", "set", "retry.ceiling", "4"))
	assert.Contains(t, h.out.String(), "retry.ceiling = 4")
	_, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, h.run("config", "get", "retry.ceiling"))
	assert.Equal(t, "4", strings.TrimSpace(h.out.String()))

	require.NoError(t, h.run("config", "set", "gemini.models", "m1,m2"))
	require.NoError(t, h.run("config", "get", "gemini.models"))
	assert.Equal(t, "m1,m2", strings.TrimSpace(h.out.String()))
}

func TestConfig_SetRejectsInvalid(t *testing.T) {
	h := newHarness(t, "")

	err := h.run("config", "set", "retry.ceiling", "99")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))

	err = h.run("config", "set", "no.such.key", "1")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestConfig_MasksSecrets(t *testing.T) {
	h := newHarness(t, "")

	require.NoError(t, h.run("config", "set", "gemini.api_key", "AIzaSyExampleKey1234"))
	assert.NotContains(t, h.out.String(), "AIzaSyExampleKey1234")
	assert.Contains(t, h.out.String(), "****1234")

	require.NoError(t, h.run("config", "get", "gemini.api_key"))
	assert.Equal(t, "****1234", strings.TrimSpace(h.out.String()))

	require.NoError(t, h.run("config", "show"))
	assert.NotContains(t, h.out.String(), "AIzaSyExampleKey1234")
}

func TestConfig_SetDoesNotPersistEnvironment(t *testing.T) {
	h := newHarness(t, "")
	t.Setenv("GEMINI_API_KEY", "from-environment-key")

	require.NoError(t, h.run("config", "set", "retry.ceiling", "1"))

	path, err := config.Path()
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "from-environment-key")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(not set)", maskSecret(""))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "****wxyz", maskSecret("abcdefghwxyz"))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "a,b", formatValue([]string{"a", "b"}))
	assert.Equal(t, "429,503", formatValue([]int{429, 503}))
	assert.Equal(t, "3", formatValue(3))
	assert.Equal(t, "true", formatValue(true))
}

// =============================================================================
// EXIT CODES
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"canceled", errors.Wrap(context.Canceled, "ask"), ExitInterrupted},
		{"validation", &ValidationError{Field: "file", Reason: "missing"}, ExitUsageError},
		{"invalid id", errors.Wrap(storage.ErrInvalidID, "load"), ExitUsageError},
		{"upload limit", attachment.ErrUploadLimitReached, ExitUsageError},
		{"config", &ConfigError{Err: errors.New("bad toml")}, ExitConfigError},
		{"not configured", gemini.ErrNotConfigured, ExitConfigError},
		{"not found", &NotFoundError{Resource: "conversation", ID: "conv_x"}, ExitNotFoundError},
		{"missing conversation", storage.ErrConversationNotFound, ExitNotFoundError},
		{"transport", &gemini.TransportError{Err: errors.New("connection refused")}, ExitNetworkError},
		{"exhausted", orchestrator.ErrAllModelsExhausted, ExitNetworkError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, &ValidationError{Field: "file", Reason: "is a directory", Value: "docs"})
	assert.Contains(t, buf.String(), "invalid file: is a directory")
	assert.Contains(t, buf.String(), "docs")
}

// =============================================================================
// CHAT REPL
// =============================================================================

func newTestREPL(t *testing.T, h *harness) *chatREPL {
	t.Helper()
	a := &app{in: strings.NewReader(""), out: h.out, errOut: h.errOut, userID: DefaultUserID}
	a.newProvider = func(*config.Config) orchestrator.Provider { return h.provider }
	require.NoError(t, a.load())

	renderer := a.renderer(render.PlainMarkup{}, true)
	sess, err := a.newSession("", nil, renderer, nil, nil)
	require.NoError(t, err)

	return &chatREPL{
		sess: sess,
		out:  h.out,
		sink: render.NewTerminalSink(h.out, 80),
		readFile: func(path string) (*attachment.File, error) {
			if path == "missing.pdf" {
				return nil, &NotFoundError{Resource: "file", ID: path}
			}
			return &attachment.File{Name: path, Data: []byte("Claim number AB123.")}, nil
		},
	}
}

func TestChatREPL_SendAndHistory(t *testing.T) {
	h := newHarness(t, "You can ask for an adjournment.")
	repl := newTestREPL(t, h)
	ctx := context.Background()

	quit, err := repl.handleLine(ctx, "Can I adjourn my hearing?")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, h.out.String(), "You can ask for an adjournment.")
	assert.Equal(t, 1, repl.exchanges)
	assert.Len(t, repl.sess.History(), 2)

	h.out.Reset()
	_, err = repl.handleLine(ctx, "/history")
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "Can I adjourn my hearing?")
	assert.Contains(t, h.out.String(), "You can ask for an adjournment.")
}

func TestChatREPL_FileCommand(t *testing.T) {
	h := newHarness(t, "Noted.")
	repl := newTestREPL(t, h)
	ctx := context.Background()

	_, err := repl.handleLine(ctx, "/file claim.txt")
	require.NoError(t, err)
	require.NotNil(t, repl.pending)
	assert.Contains(t, h.out.String(), "claim.txt will be sent with your next message")

	_, err = repl.handleLine(ctx, "What is my claim number?")
	require.NoError(t, err)
	assert.Nil(t, repl.pending)
	assert.Contains(t, h.provider.lastPrompt(), "Claim number AB123.")

	h.out.Reset()
	_, err = repl.handleLine(ctx, "/history")
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "[+attachment]")
	assert.NotContains(t, h.out.String(), "Claim number AB123.")

	_, err = repl.handleLine(ctx, "/file")
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = repl.handleLine(ctx, "/file missing.pdf")
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.Nil(t, repl.pending)
}

func TestChatREPL_Reset(t *testing.T) {
	h := newHarness(t, "Reply.")
	repl := newTestREPL(t, h)
	ctx := context.Background()

	_, err := repl.handleLine(ctx, "Question")
	require.NoError(t, err)
	_, err = repl.handleLine(ctx, "/file claim.txt")
	require.NoError(t, err)

	_, err = repl.handleLine(ctx, "/reset")
	require.NoError(t, err)
	assert.Empty(t, repl.sess.History())
	assert.Nil(t, repl.pending)
	assert.Contains(t, h.out.String(), "[Conversation cleared]")
}

func TestChatREPL_Commands(t *testing.T) {
	h := newHarness(t, "")
	repl := newTestREPL(t, h)
	ctx := context.Background()

	quit, err := repl.handleLine(ctx, "   ")
	assert.NoError(t, err)
	assert.False(t, quit)

	_, err = repl.handleLine(ctx, "/help")
	assert.NoError(t, err)
	assert.Contains(t, h.out.String(), "/file <path>")

	_, err = repl.handleLine(ctx, "/frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: /frobnicate")

	for _, line := range []string{"/quit", "/q", "exit", "QUIT"} {
		quit, err := repl.handleLine(ctx, line)
		assert.NoError(t, err)
		assert.True(t, quit, line)
	}
	assert.Empty(t, h.provider.requests)
}

func TestChatREPL_FailureIsNotAnError(t *testing.T) {
	h := newHarness(t, "")
	h.provider.err = errors.New("model not found")
	repl := newTestREPL(t, h)

	_, err := repl.handleLine(context.Background(), "Hello")
	assert.NoError(t, err)
	assert.Contains(t, h.out.String(), "overloaded")
	assert.Equal(t, 0, repl.exchanges)
}

func TestChatREPL_UploadLimitSendsTextOnly(t *testing.T) {
	h := newHarness(t, "Reply.")
	h.writeConfig(t, "[attachments]\nfree_upload_limit = 0\n")
	repl := newTestREPL(t, h)
	ctx := context.Background()

	_, err := repl.handleLine(ctx, "/file claim.txt")
	require.NoError(t, err)

	_, err = repl.handleLine(ctx, "What is my claim number?")
	require.NoError(t, err)
	assert.Equal(t, "What is my claim number?", h.provider.lastPrompt())
	assert.Contains(t, h.errOut.String()+h.out.String(), "Reply.")
}
