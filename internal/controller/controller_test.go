// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/remote"
	"github.com/jeranaias/storyloom/internal/session"
	"github.com/jeranaias/storyloom/internal/storage"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeRemote struct {
	mu       sync.Mutex
	resp     *remote.ChatResponse
	err      error
	block    chan struct{}
	requests []remote.ChatRequest

	audioURL   string
	audioErr   error
	audioTexts []string
}

func (f *fakeRemote) Chat(ctx context.Context, req remote.ChatRequest) (*remote.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	resp, err, block := f.resp, f.err, f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return resp, err
}

func (f *fakeRemote) SynthesizeAudio(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audioTexts = append(f.audioTexts, text)
	return f.audioURL, f.audioErr
}

func (f *fakeRemote) Requests() []remote.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.ChatRequest(nil), f.requests...)
}

type fakeImages struct {
	afterChat int
	now       int
	busy      bool
}

func (f *fakeImages) AfterChat() bool {
	f.afterChat++
	return true
}

func (f *fakeImages) GenerateNow() bool {
	if f.busy {
		return false
	}
	f.now++
	return true
}

type harness struct {
	state   *session.State
	remote  *fakeRemote
	images  *fakeImages
	ctrl    *Controller
	notices []Notice
	now     time.Time
}

// newHarness builds a controller whose remote calls complete synchronously.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		remote: &fakeRemote{resp: &remote.ChatResponse{}},
		images: &fakeImages{},
		now:    time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC),
	}
	h.state = session.New(session.Options{Store: storage.NewMemoryStore()})
	h.ctrl = New(Options{
		State:    h.state,
		Remote:   h.remote,
		Images:   h.images,
		OnNotice: func(n Notice) { h.notices = append(h.notices, n) },
		Now:      func() time.Time { return h.now },
	})
	h.ctrl.spawn = func(f func()) { f() }
	return h
}

// async makes remote calls run on their own goroutine, held until the
// returned release func is called.
func (h *harness) async() (release func()) {
	block := make(chan struct{})
	h.remote.block = block
	h.ctrl.spawn = func(f func()) { go f() }
	return func() { close(block) }
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ctrl.Phase() == PhaseIdle }, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) seedTurns(ids ...string) {
	for _, id := range ids {
		h.state.AddOrReplaceTurn(model.Turn{ID: id, Author: model.AuthorNarrator, Content: "turn " + id})
	}
}

// =============================================================================
// SUBMIT TESTS
// =============================================================================

func TestSubmit_HelloNarratorScenario(t *testing.T) {
	h := newHarness(t)
	h.ctrl.SelectAuthor(model.AuthorNarrator)
	h.state.ReplaceKeywords([]model.Keyword{{Text: "storm", Category: model.CategoryPlot, Weight: 0.4}})
	h.ctrl.ToggleKeyword("storm")
	h.remote.resp = &remote.ChatResponse{
		Messages: []model.Turn{{ID: "1", Author: model.AuthorNarrator, Content: "Hello"}},
		Keywords: []model.Keyword{{Text: "sword", Category: "item", Weight: 0.8}},
	}

	h.ctrl.SetInput("Hello")
	require.True(t, h.ctrl.Submit())

	reqs := h.remote.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Hello", reqs[0].Message)
	assert.Equal(t, model.AuthorNarrator, reqs[0].Author)
	assert.Equal(t, []string{"storm"}, reqs[0].SelectedKeywords)
	assert.Empty(t, reqs[0].History)

	turns := h.state.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "1", turns[0].ID)
	assert.Equal(t, model.AuthorNarrator, turns[0].Author)
	assert.Equal(t, "Hello", turns[0].Content)
	assert.Equal(t, h.now, turns[0].Timestamp)

	keywords := h.state.Keywords()
	require.Len(t, keywords, 1)
	assert.Equal(t, "sword", keywords[0].Text)
	assert.InDelta(t, 0.8, keywords[0].Weight, 1e-9)

	assert.Empty(t, h.state.Selection())
	assert.Empty(t, h.ctrl.Input())
	assert.Equal(t, PhaseIdle, h.ctrl.Phase())
	assert.Equal(t, 1, h.images.afterChat)
	assert.Equal(t, []string{"Hello"}, h.state.CommandHistory())
}

func TestSubmit_SecondSubmitWhileSubmittingIsNoOp(t *testing.T) {
	h := newHarness(t)
	release := h.async()

	h.ctrl.SetInput("first")
	require.True(t, h.ctrl.Submit())
	assert.Equal(t, PhaseSubmitting, h.ctrl.Phase())
	assert.Empty(t, h.ctrl.Input(), "cleared before the call returns")

	h.ctrl.SetInput("second")
	assert.False(t, h.ctrl.CanSubmit())
	assert.False(t, h.ctrl.Submit())
	assert.Equal(t, "second", h.ctrl.Input(), "not queued, not consumed")

	release()
	h.waitIdle(t)
	assert.Len(t, h.remote.Requests(), 1)
}

func TestCanSubmit(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.ctrl.CanSubmit())
	assert.False(t, h.ctrl.Submit())

	h.ctrl.SetInput("   ")
	assert.False(t, h.ctrl.CanSubmit())

	// A selection alone is enough.
	h.state.ReplaceKeywords([]model.Keyword{{Text: "lantern", Category: model.CategoryObject}})
	h.ctrl.ToggleKeyword("lantern")
	assert.True(t, h.ctrl.CanSubmit())
	require.True(t, h.ctrl.Submit())
	assert.Equal(t, "", h.remote.Requests()[0].Message)
	assert.Equal(t, []string{"lantern"}, h.remote.Requests()[0].SelectedKeywords)
}

func TestSubmit_InertSelectionDoesNotCount(t *testing.T) {
	h := newHarness(t)
	h.ctrl.ToggleKeyword("gone")
	assert.False(t, h.ctrl.CanSubmit())
}

func TestSubmit_AuthorPrefix(t *testing.T) {
	h := newHarness(t)
	h.ctrl.SetInput("@Mira who goes there?")
	require.True(t, h.ctrl.Submit())

	req := h.remote.Requests()[0]
	assert.Equal(t, model.Author("Mira"), req.Author)
	assert.Equal(t, "who goes there?", req.Message)
	assert.Equal(t, []string{"@Mira who goes there?"}, h.state.CommandHistory())
}

func TestSubmit_PrefixWithoutTextIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.ctrl.SetInput("@Mira")
	assert.False(t, h.ctrl.Submit())
	assert.Equal(t, "@Mira", h.ctrl.Input())
	assert.Empty(t, h.remote.Requests())
}

func TestSubmit_SendsHistory(t *testing.T) {
	h := newHarness(t)
	h.seedTurns("a", "b")
	h.ctrl.SetInput("next")
	require.True(t, h.ctrl.Submit())
	assert.Len(t, h.remote.Requests()[0].History, 2)
}

func TestSubmit_TransmittedFailureDoesNotRestoreInput(t *testing.T) {
	h := newHarness(t)
	h.state.ReplaceKeywords([]model.Keyword{{Text: "storm"}})
	h.ctrl.ToggleKeyword("storm")
	h.remote.resp = nil
	h.remote.err = &remote.TransportError{Op: "chat", StatusCode: 500, Message: "model crashed"}

	h.ctrl.SetInput("Hello")
	require.True(t, h.ctrl.Submit())

	assert.Equal(t, PhaseIdle, h.ctrl.Phase())
	assert.Empty(t, h.ctrl.Input())
	assert.Empty(t, h.state.Selection())
	require.Len(t, h.notices, 1)
	assert.Equal(t, NoticeError, h.notices[0].Level)
	assert.Equal(t, "model crashed", h.notices[0].Text)
	assert.Empty(t, h.state.Turns())
	assert.Equal(t, 0, h.images.afterChat)
}

func TestSubmit_NotTransmittedRestoresInput(t *testing.T) {
	h := newHarness(t)
	h.remote.resp = nil
	h.remote.err = &remote.TransportError{Op: "chat", NotTransmitted: true}

	h.ctrl.SetInput("> The tide turns.")
	require.True(t, h.ctrl.Submit())
	assert.Equal(t, "> The tide turns.", h.ctrl.Input())
	assert.Len(t, h.notices, 1)
}

func TestSubmit_NotTransmittedKeepsNewerTyping(t *testing.T) {
	h := newHarness(t)
	release := h.async()
	h.remote.resp = nil
	h.remote.err = &remote.TransportError{Op: "chat", NotTransmitted: true}

	h.ctrl.SetInput("first")
	require.True(t, h.ctrl.Submit())
	h.ctrl.SetInput("typed meanwhile")
	release()
	h.waitIdle(t)

	assert.Equal(t, "typed meanwhile", h.ctrl.Input())
}

func TestSubmit_ResultDroppedAfterClear(t *testing.T) {
	h := newHarness(t)
	release := h.async()
	h.remote.resp = &remote.ChatResponse{Messages: []model.Turn{{ID: "1", Content: "late"}}}

	h.ctrl.SetInput("Hello")
	require.True(t, h.ctrl.Submit())
	h.ctrl.Clear()
	release()
	h.waitIdle(t)

	assert.Empty(t, h.state.Turns())
	assert.Equal(t, 0, h.images.afterChat)
}

func TestClear_RetiresTurnInFlight(t *testing.T) {
	h := newHarness(t)
	release := h.async()
	h.remote.resp = nil
	h.remote.err = &remote.TransportError{Op: "chat", NotTransmitted: true}

	stale := make(chan struct{})
	h.ctrl.dispatch = func(f func()) {
		f()
		close(stale)
	}

	h.ctrl.SetInput("secret line")
	require.True(t, h.ctrl.Submit())
	h.ctrl.Clear()

	assert.Equal(t, PhaseIdle, h.ctrl.Phase())
	assert.Empty(t, h.ctrl.Input())
	h.ctrl.SetInput("fresh start")
	assert.True(t, h.ctrl.CanSubmit(), "a cleared session accepts a new turn at once")
	h.ctrl.SetInput("")

	release()
	select {
	case <-stale:
	case <-time.After(2 * time.Second):
		t.Fatal("stale completion never ran")
	}

	assert.Empty(t, h.ctrl.Input(), "late failure from the cleared session is ignored")
	assert.Equal(t, PhaseIdle, h.ctrl.Phase())
	assert.Empty(t, h.notices)
	assert.Empty(t, h.state.Turns())
}

func TestSubmit_MissingIDsAreFilled(t *testing.T) {
	h := newHarness(t)
	h.remote.resp = &remote.ChatResponse{Messages: []model.Turn{
		{Author: model.AuthorNarrator, Content: "one"},
		{Author: model.AuthorNarrator, Content: "two"},
	}}

	h.ctrl.SetInput("go")
	require.True(t, h.ctrl.Submit())

	turns := h.state.Turns()
	require.Len(t, turns, 2)
	assert.NotEmpty(t, turns[0].ID)
	assert.NotEqual(t, turns[0].ID, turns[1].ID)
}

func TestSubmit_KeywordsOmittedAreKept(t *testing.T) {
	h := newHarness(t)
	h.state.ReplaceKeywords([]model.Keyword{{Text: "storm"}})
	h.remote.resp = &remote.ChatResponse{Messages: []model.Turn{{ID: "1", Content: "x"}}}

	h.ctrl.SetInput("go")
	require.True(t, h.ctrl.Submit())
	assert.Len(t, h.state.Keywords(), 1)

	h.remote.resp = &remote.ChatResponse{Keywords: []model.Keyword{}}
	h.ctrl.SetInput("again")
	require.True(t, h.ctrl.Submit())
	assert.Empty(t, h.state.Keywords(), "an empty list replaces")
}

// =============================================================================
// EDIT TESTS
// =============================================================================

func TestEditing_IsExclusive(t *testing.T) {
	h := newHarness(t)
	h.seedTurns("a", "b")

	assert.False(t, h.ctrl.StartEditing("missing"))
	require.True(t, h.ctrl.StartEditing("a"))
	require.True(t, h.ctrl.StartEditing("b"))
	assert.Equal(t, "b", h.ctrl.Editing())

	assert.False(t, h.ctrl.CommitEdit("a", "changed"), "a's edit was cancelled")
	turn, _ := h.state.Turn("a")
	assert.Equal(t, "turn a", turn.Content)

	require.True(t, h.ctrl.CommitEdit("b", "rewritten"))
	turn, _ = h.state.Turn("b")
	assert.Equal(t, "rewritten", turn.Content)
	assert.Empty(t, h.ctrl.Editing())
}

func TestEditing_BlankCommitCancels(t *testing.T) {
	h := newHarness(t)
	h.seedTurns("a")

	require.True(t, h.ctrl.StartEditing("a"))
	assert.False(t, h.ctrl.CommitEdit("a", "  \n "))
	assert.Empty(t, h.ctrl.Editing())
	turn, _ := h.state.Turn("a")
	assert.Equal(t, "turn a", turn.Content)

	require.True(t, h.ctrl.StartEditing("a"))
	h.ctrl.CancelEdit()
	assert.Empty(t, h.ctrl.Editing())
}

// =============================================================================
// DELETE AND CONFIRMATION TESTS
// =============================================================================

func TestDeleteTurn_MissingIDLeavesHistory(t *testing.T) {
	h := newHarness(t)
	h.seedTurns("a", "b", "c")

	assert.False(t, h.ctrl.DeleteTurn("missing-id"))
	assert.Len(t, h.state.Turns(), 3)
}

func TestConfirmGate_DeleteTurn(t *testing.T) {
	h := newHarness(t)
	h.seedTurns("a", "b")
	h.ctrl.StartEditing("a")

	assert.False(t, h.ctrl.RequestDeleteTurn("missing"))
	_, pending := h.ctrl.Pending()
	assert.False(t, pending)

	require.True(t, h.ctrl.RequestDeleteTurn("a"))
	action, pending := h.ctrl.Pending()
	require.True(t, pending)
	assert.Equal(t, ActionDeleteTurn, action.Kind)
	assert.Contains(t, action.Prompt, "turn a")

	assert.False(t, h.ctrl.Confirm(false))
	assert.Len(t, h.state.Turns(), 2, "declined")
	_, pending = h.ctrl.Pending()
	assert.False(t, pending)

	require.True(t, h.ctrl.RequestDeleteTurn("a"))
	assert.True(t, h.ctrl.Confirm(true))
	assert.Len(t, h.state.Turns(), 1)
	assert.Empty(t, h.ctrl.Editing(), "deleting the edited turn ends the edit")

	assert.False(t, h.ctrl.Confirm(true), "nothing pending")
}

func TestConfirmGate_DeleteImage(t *testing.T) {
	h := newHarness(t)
	h.state.AppendImage(model.GeneratedImage{ID: "img", URL: "/a.png"})

	assert.False(t, h.ctrl.RequestDeleteImage("nope"))
	require.True(t, h.ctrl.RequestDeleteImage("img"))
	assert.True(t, h.ctrl.Confirm(true))
	assert.Empty(t, h.state.Images())
}

func TestConfirmGate_Clear(t *testing.T) {
	h := newHarness(t)
	h.seedTurns("a")
	h.ctrl.SetInput("draft")
	h.ctrl.ToggleTheme()

	require.True(t, h.ctrl.RequestClear())
	assert.True(t, h.ctrl.Confirm(true))

	assert.Empty(t, h.state.Turns())
	assert.Empty(t, h.ctrl.Input())
	assert.Equal(t, model.ThemeLight, h.state.Settings().Theme, "theme survives a clear")
}

// =============================================================================
// RECALL TESTS
// =============================================================================

func TestRecall(t *testing.T) {
	h := newHarness(t)
	h.state.PushCommandHistory("one")
	h.state.PushCommandHistory("two")
	h.ctrl.SetInput("draft")

	require.True(t, h.ctrl.RecallOlder())
	assert.Equal(t, "two", h.ctrl.Input())
	require.True(t, h.ctrl.RecallOlder())
	assert.Equal(t, "one", h.ctrl.Input())
	assert.False(t, h.ctrl.RecallOlder())
	assert.Equal(t, "one", h.ctrl.Input())

	require.True(t, h.ctrl.RecallNewer())
	assert.Equal(t, "two", h.ctrl.Input())
	require.True(t, h.ctrl.RecallNewer())
	assert.Equal(t, "draft", h.ctrl.Input())
	assert.False(t, h.ctrl.RecallNewer())
}

func TestRecall_EmptyHistory(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.ctrl.RecallOlder())
	assert.False(t, h.ctrl.RecallNewer())
}

// =============================================================================
// AUDIO, IMAGES AND EVENTS
// =============================================================================

func TestSynthesizeAudio(t *testing.T) {
	h := newHarness(t)
	h.seedTurns("a")
	var got []string
	h.ctrl.onAudio = func(id, url string) { got = append(got, id+"="+url) }
	h.remote.audioURL = "/audio/a.mp3"

	assert.False(t, h.ctrl.SynthesizeAudio("missing"))
	require.True(t, h.ctrl.SynthesizeAudio("a"))

	url, ok := h.ctrl.AudioURL("a")
	require.True(t, ok)
	assert.Equal(t, "/audio/a.mp3", url)
	assert.Equal(t, []string{"a=/audio/a.mp3"}, got)
	assert.Equal(t, []string{"turn a"}, h.remote.audioTexts)
	assert.False(t, h.ctrl.AudioPending("a"))

	h.ctrl.DeleteTurn("a")
	_, ok = h.ctrl.AudioURL("a")
	assert.False(t, ok)
}

func TestSynthesizeAudio_Failure(t *testing.T) {
	h := newHarness(t)
	h.seedTurns("a")
	h.remote.audioErr = &remote.MalformedResponseError{Op: "audio", Reason: "missing url"}

	require.True(t, h.ctrl.SynthesizeAudio("a"))
	_, ok := h.ctrl.AudioURL("a")
	assert.False(t, ok)
	require.Len(t, h.notices, 1)
	assert.Equal(t, NoticeError, h.notices[0].Level)
}

func TestGenerateImage(t *testing.T) {
	h := newHarness(t)
	assert.True(t, h.ctrl.GenerateImage())
	assert.Equal(t, 1, h.images.now)

	h.images.busy = true
	assert.False(t, h.ctrl.GenerateImage())
	require.Len(t, h.notices, 1)
	assert.Equal(t, NoticeInfo, h.notices[0].Level)
}

func TestApplyEvent(t *testing.T) {
	h := newHarness(t)
	h.state.ReplaceKeywords([]model.Keyword{{Text: "old"}})

	h.ctrl.ApplyEvent(remote.Event{
		Type: remote.EventMessages,
		Chat: &remote.ChatResponse{Messages: []model.Turn{{Author: model.AuthorNarrator, Content: "Thunder."}}},
	})
	turns := h.state.Turns()
	require.Len(t, turns, 1)
	assert.NotEmpty(t, turns[0].ID)
	assert.Equal(t, "old", h.state.Keywords()[0].Text, "no keyword list in the event")

	h.ctrl.ApplyEvent(remote.Event{
		Type:            remote.EventKeywords,
		Chat:            &remote.ChatResponse{Keywords: []model.Keyword{{Text: "thunder"}}},
		ReplaceKeywords: true,
	})
	assert.Equal(t, "thunder", h.state.Keywords()[0].Text)

	h.ctrl.ApplyEvent(remote.Event{
		Type:  remote.EventImages,
		Image: &remote.ImageResult{URLs: []string{"/storm.png"}, Prompt: "storm"},
	})
	require.Len(t, h.state.Images(), 1)
	assert.Equal(t, h.now, h.state.LastImageGenerationAt())

	h.ctrl.ApplyEvent(remote.Event{Type: "heartbeat"})
	assert.Len(t, h.state.Turns(), 1)
}

func TestToggleTheme(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, model.ThemeLight, h.ctrl.ToggleTheme())
	assert.Equal(t, model.ThemeDark, h.ctrl.ToggleTheme())
}
