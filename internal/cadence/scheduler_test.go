// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cadence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/remote"
	"github.com/jeranaias/storyloom/internal/session"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	urls    []string
	err     error
	block   chan struct{}
	lastReq remote.ImageRequest
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, req remote.ImageRequest) (*remote.ImageResult, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	urls, err, block := f.urls, f.err, f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return &remote.ImageResult{URLs: urls, Prompt: "a lighthouse"}, nil
}

func (f *fakeGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	clock  *ManualClock
	state  *session.State
	gen    *fakeGenerator
	sched  *Scheduler
	errors []error
}

// newHarness builds a scheduler whose generations run synchronously.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock: NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		gen:   &fakeGenerator{urls: []string{"/img/1.png"}},
	}
	h.state = session.New(session.Options{Now: h.clock.Now})
	h.sched = New(Options{
		State:     h.state,
		Generator: h.gen,
		Clock:     h.clock,
		OnError:   func(err error) { h.errors = append(h.errors, err) },
	})
	h.sched.spawn = func(f func()) { f() }
	t.Cleanup(h.sched.Close)
	return h
}

func (h *harness) periodic(seconds int) {
	h.state.UpdateSettings(model.SettingsPatch{
		ImageEnabled:    model.Ptr(true),
		ImageMode:       model.Ptr(model.ModePeriodic),
		IntervalSeconds: model.Ptr(seconds),
	})
}

// =============================================================================
// AFTER CHAT
// =============================================================================

func TestAfterChat_CooldownAllowsOneAppend(t *testing.T) {
	h := newHarness(t)
	h.sched.Attach()

	assert.True(t, h.sched.AfterChat())
	h.clock.Advance(2 * time.Second)
	assert.False(t, h.sched.AfterChat(), "second call inside the cooldown")

	assert.Len(t, h.state.Images(), 1)
	assert.Equal(t, 1, h.gen.Calls())

	h.clock.Advance(3 * time.Second)
	assert.True(t, h.sched.AfterChat(), "exactly 5000ms later is allowed")
	assert.Len(t, h.state.Images(), 2)
}

func TestAfterChat_InFlightGuard(t *testing.T) {
	h := newHarness(t)
	h.sched.spawn = func(f func()) { go f() }
	h.gen.block = make(chan struct{})

	assert.True(t, h.sched.AfterChat())
	assert.False(t, h.sched.AfterChat(), "refused while generating")
	close(h.gen.block)

	require.Eventually(t, func() bool { return len(h.state.Images()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return !h.sched.Generating() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.gen.Calls())
}

func TestAfterChat_OnlyInAfterChatMode(t *testing.T) {
	h := newHarness(t)

	h.state.UpdateSettings(model.SettingsPatch{ImageEnabled: model.Ptr(false)})
	assert.False(t, h.sched.AfterChat())

	h.periodic(10)
	assert.False(t, h.sched.AfterChat())
	assert.Equal(t, 0, h.gen.Calls())
}

func TestAfterChat_AppendsAllURLs(t *testing.T) {
	h := newHarness(t)
	h.gen.urls = []string{"/a.png", "/b.png"}
	h.state.AddOrReplaceTurn(model.Turn{ID: "1", Author: model.AuthorNarrator, Content: "Fog."})

	require.True(t, h.sched.AfterChat())

	images := h.state.Images()
	require.Len(t, images, 2)
	assert.Equal(t, "/a.png", images[0].URL)
	assert.Equal(t, "a lighthouse", images[1].Prompt)
	assert.NotEmpty(t, images[0].ID)
	assert.Equal(t, h.clock.Now(), h.state.LastImageGenerationAt())
	assert.Len(t, h.gen.lastReq.History, 1)
}

func TestGeneration_FailureKeepsTimestamp(t *testing.T) {
	h := newHarness(t)
	h.gen.err = errors.New("gpu on fire")

	assert.True(t, h.sched.AfterChat())
	require.Len(t, h.errors, 1)
	assert.True(t, h.state.LastImageGenerationAt().IsZero())
	assert.Empty(t, h.state.Images())

	// No cooldown was recorded, so an immediate retry is allowed.
	assert.True(t, h.sched.AfterChat())
	assert.Len(t, h.errors, 2)
}

func TestGeneration_DroppedAfterClear(t *testing.T) {
	h := newHarness(t)
	h.sched.spawn = func(f func()) { go f() }
	h.gen.block = make(chan struct{})

	require.True(t, h.sched.AfterChat())
	h.state.Clear()
	close(h.gen.block)

	require.Eventually(t, func() bool { return !h.sched.Generating() }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, h.state.Images())
	assert.True(t, h.state.LastImageGenerationAt().IsZero())
}

func TestGeneration_ClearFreesTheSlot(t *testing.T) {
	h := newHarness(t)
	h.sched.Attach()
	h.sched.spawn = func(f func()) { go f() }
	h.gen.block = make(chan struct{})

	require.True(t, h.sched.GenerateNow())
	h.state.Clear()

	assert.False(t, h.sched.Generating(), "a cleared session is not waiting on the old image")
	require.True(t, h.sched.GenerateNow())
	close(h.gen.block)

	require.Eventually(t, func() bool {
		return !h.sched.Generating() && len(h.state.Images()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, h.gen.Calls())
	assert.Empty(t, h.errors)
}

func TestGeneration_WorkflowPassedThrough(t *testing.T) {
	h := newHarness(t)
	wf := &remote.Workflow{PositivePlaceholder: "%POS%"}
	h.sched.workflow = wf

	require.True(t, h.sched.GenerateNow())
	assert.Same(t, wf, h.gen.lastReq.Workflow)
}

// =============================================================================
// PERIODIC
// =============================================================================

func TestPeriodic_FiresEachIntervalIgnoringCooldown(t *testing.T) {
	h := newHarness(t)
	h.sched.Attach()
	h.periodic(10)

	assert.True(t, h.sched.Active())
	assert.Equal(t, 1, h.clock.Pending())

	h.clock.Advance(30 * time.Second)
	assert.Equal(t, 3, h.gen.Calls())
	assert.Len(t, h.state.Images(), 3)
	assert.Equal(t, 1, h.clock.Pending(), "re-armed, never duplicated")
}

func TestPeriodic_SwitchToAfterChatLeavesNoTimers(t *testing.T) {
	h := newHarness(t)
	h.sched.Attach()
	h.periodic(10)
	require.Equal(t, 1, h.clock.Pending())

	h.state.UpdateSettings(model.SettingsPatch{ImageMode: model.Ptr(model.ModeAfterChat)})

	assert.False(t, h.sched.Active())
	assert.Equal(t, 0, h.clock.Pending())
	h.clock.Advance(time.Minute)
	assert.Equal(t, 0, h.gen.Calls())
}

func TestPeriodic_DisableStopsTimer(t *testing.T) {
	h := newHarness(t)
	h.sched.Attach()
	h.periodic(10)

	h.state.UpdateSettings(model.SettingsPatch{ImageEnabled: model.Ptr(false)})
	assert.Equal(t, 0, h.clock.Pending())
	h.clock.Advance(time.Minute)
	assert.Equal(t, 0, h.gen.Calls())
}

func TestPeriodic_IntervalChangeRestartsSingleTimer(t *testing.T) {
	h := newHarness(t)
	h.sched.Attach()
	h.periodic(10)
	h.periodic(20)

	assert.Equal(t, 1, h.clock.Pending())
	h.clock.Advance(10 * time.Second)
	assert.Equal(t, 0, h.gen.Calls())
	h.clock.Advance(10 * time.Second)
	assert.Equal(t, 1, h.gen.Calls())
}

func TestPeriodic_FailureKeepsTimer(t *testing.T) {
	h := newHarness(t)
	h.gen.err = errors.New("offline")
	h.sched.Attach()
	h.periodic(10)

	h.clock.Advance(20 * time.Second)
	assert.Len(t, h.errors, 2)
	assert.True(t, h.sched.Active())
	assert.True(t, h.state.LastImageGenerationAt().IsZero())
}

func TestPeriodic_IntervalClampedToMinimum(t *testing.T) {
	h := newHarness(t)
	h.sched.Apply(model.ImageGeneration{Enabled: true, Mode: model.ModePeriodic, IntervalSeconds: 1})

	h.clock.Advance(4 * time.Second)
	assert.Equal(t, 0, h.gen.Calls())
	h.clock.Advance(time.Second)
	assert.Equal(t, 1, h.gen.Calls())
}

func TestClose_StopsEverything(t *testing.T) {
	h := newHarness(t)
	h.sched.Attach()
	h.periodic(10)

	h.sched.Close()
	assert.Equal(t, 0, h.clock.Pending())
	assert.False(t, h.sched.AfterChat())

	h.periodic(15)
	assert.Equal(t, 0, h.clock.Pending(), "detached from settings")
}

// =============================================================================
// MANUAL CLOCK
// =============================================================================

func TestManualClock(t *testing.T) {
	c := NewManualClock(time.Unix(0, 0))
	var order []string
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	c.AfterFunc(time.Second, func() { order = append(order, "a") })
	stopped := c.AfterFunc(time.Second, func() { order = append(order, "x") })

	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"a"}, order)
	assert.Equal(t, time.Unix(1, 500_000_000), c.Now())

	c.Advance(time.Second)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 0, c.Pending())
}
