// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymckenzie/assistant/internal/attachment"
	"github.com/mymckenzie/assistant/internal/model"
	"github.com/mymckenzie/assistant/internal/orchestrator"
	"github.com/mymckenzie/assistant/internal/render"
	"github.com/mymckenzie/assistant/internal/storage"
)

type fakeGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	block   chan struct{}
	calls   int
	history [][]model.Turn
	prompts []string
	models  [][]string
}

func (g *fakeGenerator) Generate(ctx context.Context, history []model.Turn, systemPrompt string, models []string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.history = append(g.history, history)
	g.prompts = append(g.prompts, systemPrompt)
	g.models = append(g.models, models)
	block := g.block
	g.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.reply, g.err
}

type fakeUploader struct {
	err   error
	names []string
}

func (u *fakeUploader) Put(ctx context.Context, userID, name string, data []byte) (storage.Upload, error) {
	u.names = append(u.names, name)
	if u.err != nil {
		return storage.Upload{}, u.err
	}
	return storage.Upload{Key: "k1", Name: name, Size: int64(len(data))}, nil
}

type noticeLog struct {
	mu   sync.Mutex
	msgs []string
}

func (n *noticeLog) Notify(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *noticeLog) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func instantRenderer() *render.Renderer {
	return render.New(
		render.WithMarkup(render.PlainMarkup{}),
		render.WithDelay(0, 0),
		render.WithRand(rand.New(rand.NewSource(1))),
	)
}

func newSession(t *testing.T, gen Generator, opts ...Option) *Session {
	t.Helper()
	return New(Config{
		UserID:         "u1",
		ConversationID: "c1",
		Models:         []string{"m1", "m2"},
		SystemPrompt:   "be helpful",
	}, gen, instantRenderer(), opts...)
}

func TestSubmit_TextOnly(t *testing.T) {
	gen := &fakeGenerator{reply: "A McKenzie Friend is..."}
	sess := newSession(t, gen)
	sink := render.NewRecorder()

	res, err := sess.Submit(context.Background(), Submission{Text: "What is a McKenzie Friend?"}, sink)
	require.NoError(t, err)
	res.Handle.Wait()

	assert.Equal(t, "A McKenzie Friend is...", res.Reply)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, []string{"m1", "m2"}, gen.models[0])
	assert.Equal(t, "be helpful", gen.prompts[0])

	history := sess.History()
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "What is a McKenzie Friend?", history[0].Text())
	assert.Equal(t, model.RoleModel, history[1].Role)

	frames := sink.Frames()
	require.NotEmpty(t, frames)
	assert.Equal(t, ThinkingPlaceholder, frames[0])
	assert.Equal(t, "A McKenzie Friend is...", sink.Content())
	assert.True(t, sink.Finished())
	assert.False(t, sess.Busy())
}

func TestSubmit_Empty(t *testing.T) {
	gen := &fakeGenerator{reply: "x"}
	sess := newSession(t, gen)

	_, err := sess.Submit(context.Background(), Submission{Text: "   "}, render.NewBuffer())
	assert.ErrorIs(t, err, ErrEmptySubmission)
	assert.Zero(t, gen.calls)
	assert.Empty(t, sess.History())
}

func TestSubmit_RejectsConcurrent(t *testing.T) {
	gen := &fakeGenerator{reply: "done", block: make(chan struct{})}
	sess := newSession(t, gen)

	errCh := make(chan error, 1)
	go func() {
		_, err := sess.Submit(context.Background(), Submission{Text: "first"}, render.NewBuffer())
		errCh <- err
	}()

	require.Eventually(t, sess.Busy, time.Second, 5*time.Millisecond)

	_, err := sess.Submit(context.Background(), Submission{Text: "second"}, render.NewBuffer())
	assert.ErrorIs(t, err, ErrSubmissionInProgress)

	close(gen.block)
	require.NoError(t, <-errCh)
	assert.Equal(t, 1, gen.calls)
}

func TestSubmit_FailureWritesApology(t *testing.T) {
	genErr := &orchestrator.GenerationError{Kind: orchestrator.KindAllModelsExhausted, Err: errors.New("overloaded")}
	gen := &fakeGenerator{err: genErr}
	sess := newSession(t, gen)
	sink := render.NewRecorder()

	res, err := sess.Submit(context.Background(), Submission{Text: "hello"}, sink)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, orchestrator.ErrAllModelsExhausted)

	assert.Equal(t, []string{ThinkingPlaceholder, Apology}, sink.Frames())
	assert.True(t, sink.Finished())

	history := sess.History()
	require.Len(t, history, 1, "no model turn on failure")
	assert.Equal(t, model.RoleUser, history[0].Role)
}

func TestSubmit_CancelledContextSkipsApology(t *testing.T) {
	gen := &fakeGenerator{block: make(chan struct{})}
	sess := newSession(t, gen)
	sink := render.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := sess.Submit(ctx, Submission{Text: "hello"}, sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{ThinkingPlaceholder}, sink.Frames())
	assert.True(t, sink.Finished())
}

func TestSubmit_TextAttachment(t *testing.T) {
	gen := &fakeGenerator{reply: "summary"}
	up := &fakeUploader{}
	sess := newSession(t, gen, WithUploader(up))

	file := &attachment.File{Name: "notes.txt", MIMEType: "text/plain", Data: []byte("hearing on Monday")}
	res, err := sess.Submit(context.Background(), Submission{File: file}, render.NewBuffer())
	require.NoError(t, err)
	res.Handle.Wait()

	require.NotNil(t, res.Upload)
	assert.Equal(t, "k1", res.Upload.Key)
	assert.Equal(t, []string{"notes.txt"}, up.names)

	prompt := gen.history[0][0].Text()
	assert.True(t, strings.HasPrefix(prompt, `Please analyze the attached file "notes.txt".`))
	assert.Contains(t, prompt, attachment.ContextHeader+"hearing on Monday")
	assert.Equal(t, 2, sess.Quota().Remaining())
}

func TestSubmit_ImageAttachmentAddsInlineData(t *testing.T) {
	gen := &fakeGenerator{reply: "a photo"}
	sess := newSession(t, gen)

	file := &attachment.File{Name: "scan.png", MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
	res, err := sess.Submit(context.Background(), Submission{Text: "what is this", File: file}, render.NewBuffer())
	require.NoError(t, err)
	res.Handle.Wait()

	turn := gen.history[0][0]
	require.Len(t, turn.Parts, 2)
	assert.Equal(t, "what is this"+attachment.UnsupportedNote, turn.Parts[0].Text)
	require.NotNil(t, turn.Parts[1].InlineData)
	assert.Equal(t, "image/png", turn.Parts[1].InlineData.MIMEType)
}

func TestSubmit_UploadFailureContinues(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	notices := &noticeLog{}
	sess := newSession(t, gen, WithUploader(&fakeUploader{err: errors.New("disk full")}), WithNotifier(notices))

	file := &attachment.File{Name: "a.txt", MIMEType: "text/plain", Data: []byte("body")}
	res, err := sess.Submit(context.Background(), Submission{Text: "read this", File: file}, render.NewBuffer())
	require.NoError(t, err)
	res.Handle.Wait()

	assert.Nil(t, res.Upload)
	assert.Equal(t, []string{noticeUploadFailed}, notices.all())
	assert.Contains(t, gen.history[0][0].Text(), "body")
}

func TestSubmit_UploadLimit(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	notices := &noticeLog{}
	sess := newSession(t, gen, WithNotifier(notices), WithQuota(attachment.NewQuota(1, false)))

	file := &attachment.File{Name: "a.txt", MIMEType: "text/plain", Data: []byte("first")}
	res, err := sess.Submit(context.Background(), Submission{File: file}, render.NewBuffer())
	require.NoError(t, err)
	res.Handle.Wait()

	// Over the limit with text: the file is dropped, the text is sent.
	res, err = sess.Submit(context.Background(), Submission{Text: "again", File: file}, render.NewBuffer())
	require.NoError(t, err)
	res.Handle.Wait()
	assert.Equal(t, "again", gen.history[1][2].Text())

	// Over the limit without text: nothing to send.
	_, err = sess.Submit(context.Background(), Submission{File: file}, render.NewBuffer())
	assert.ErrorIs(t, err, attachment.ErrUploadLimitReached)
	assert.Equal(t, []string{noticeUploadLimit, noticeUploadLimit}, notices.all())
	assert.Equal(t, 2, gen.calls)
}

func TestSubmit_HistoryGrowsAcrossTurns(t *testing.T) {
	gen := &fakeGenerator{reply: "r"}
	sess := newSession(t, gen)

	for _, q := range []string{"one", "two"} {
		res, err := sess.Submit(context.Background(), Submission{Text: q}, render.NewBuffer())
		require.NoError(t, err)
		res.Handle.Wait()
	}

	require.Len(t, gen.history, 2)
	assert.Len(t, gen.history[0], 1)
	assert.Len(t, gen.history[1], 3)
	assert.Len(t, sess.History(), 4)
}

func TestSession_StopCancelsRender(t *testing.T) {
	gen := &fakeGenerator{reply: strings.Repeat("slow text ", 50)}
	renderer := render.New(render.WithMarkup(render.PlainMarkup{}), render.WithDelay(20*time.Millisecond, 20*time.Millisecond))
	sess := New(Config{UserID: "u1", ConversationID: "c1", Models: []string{"m1"}}, gen, renderer)
	sink := render.NewRecorder()

	res, err := sess.Submit(context.Background(), Submission{Text: "go"}, sink)
	require.NoError(t, err)

	sess.Stop()
	res.Handle.Wait()

	assert.True(t, res.Handle.Cancelled())
	assert.False(t, sink.Finished())
	assert.NotEqual(t, gen.reply, sink.Content())
	assert.Len(t, sess.History(), 2, "the reply is kept even when typing is stopped")
}

func TestSession_PersistAndLoad(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	gen := &fakeGenerator{reply: "stored reply"}
	sess := newSession(t, gen, WithStore(store))

	res, err := sess.Submit(context.Background(), Submission{Text: "remember me"}, render.NewBuffer())
	require.NoError(t, err)
	res.Handle.Wait()

	restored := newSession(t, gen, WithStore(store))
	require.NoError(t, restored.Load(context.Background()))
	history := restored.History()
	require.Len(t, history, 2)
	assert.Equal(t, "remember me", history[0].Text())
	assert.Equal(t, "stored reply", history[1].Text())

	require.NoError(t, restored.Reset(context.Background()))
	assert.Empty(t, restored.History())

	again := newSession(t, gen, WithStore(store))
	require.NoError(t, again.Load(context.Background()))
	assert.Empty(t, again.History())
}

func TestSession_LoadUnknownConversation(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	sess := newSession(t, &fakeGenerator{}, WithStore(store))
	require.NoError(t, sess.Load(context.Background()))
	assert.Empty(t, sess.History())
}

func TestSession_SetModelsAndPrompt(t *testing.T) {
	gen := &fakeGenerator{reply: "r"}
	sess := newSession(t, gen)
	sess.SetModels([]string{"m9"})
	sess.SetSystemPrompt("new prompt")

	res, err := sess.Submit(context.Background(), Submission{Text: "q"}, render.NewBuffer())
	require.NoError(t, err)
	res.Handle.Wait()

	assert.Equal(t, []string{"m9"}, gen.models[0])
	assert.Equal(t, "new prompt", gen.prompts[0])
}
