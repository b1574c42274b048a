// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/ui/styles"
)

// =============================================================================
// TOAST TESTS
// =============================================================================

func newTestManager(now *time.Time) *ToastManager {
	m := NewToastManager()
	m.now = func() time.Time { return *now }
	return m
}

func TestToastManager_NewestFirstAndCapped(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	for _, msg := range []string{"one", "two", "three", "four"} {
		m.Add(ToastKindStatus, msg)
	}

	got := m.Toasts()
	if len(got) != 3 {
		t.Fatalf("expected 3 toasts, got %d", len(got))
	}
	if got[0].Message != "four" || got[2].Message != "two" {
		t.Errorf("unexpected order: %q %q", got[0].Message, got[2].Message)
	}
}

func TestToastManager_TickExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	m.Add(ToastKindStatus, "saved")
	m.Add(ToastKindError, "offline")

	now = now.Add(DefaultToastDuration + time.Second)
	active := m.Tick()
	if len(active) != 1 || active[0].Message != "offline" {
		t.Fatalf("expected only the error toast to survive, got %+v", active)
	}

	now = now.Add(ErrorToastDuration)
	if len(m.Tick()) != 0 {
		t.Error("expected every toast to expire")
	}
}

func TestToastManager_Dismiss(t *testing.T) {
	m := NewToastManager()
	if m.Dismiss() {
		t.Error("dismiss on empty manager should report false")
	}
	m.Add(ToastKindWarning, "a")
	m.Add(ToastKindWarning, "b")
	if !m.Dismiss() {
		t.Fatal("expected dismiss to remove a toast")
	}
	if got := m.Toasts(); len(got) != 1 || got[0].Message != "a" {
		t.Errorf("expected the newest toast removed, got %+v", got)
	}
	m.Clear()
	if len(m.Toasts()) != 0 {
		t.Error("expected Clear to remove all toasts")
	}
}

func TestRenderToastStack(t *testing.T) {
	theme := styles.NewTheme(model.ThemeDark)
	now := time.Now()
	toasts := []Toast{
		{ID: 1, Message: "The narrator is busy", Kind: ToastKindError, CreatedAt: now, Duration: ErrorToastDuration},
		{ID: 2, Message: "Story saved", Kind: ToastKindSuccess, CreatedAt: now, Duration: DefaultToastDuration},
	}

	out := RenderToastStack(theme, toasts, now, 80)
	for _, want := range []string{"narrator is busy", "Story saved", styles.StatusIndicators.Error} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in toast stack", want)
		}
	}
	if RenderToastStack(theme, nil, now, 80) != "" {
		t.Error("expected empty stack to render nothing")
	}
}

// =============================================================================
// CONFIRM TESTS
// =============================================================================

func result(t *testing.T, cmd tea.Cmd) ConfirmResultMsg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg, ok := cmd().(ConfirmResultMsg)
	if !ok {
		t.Fatalf("expected ConfirmResultMsg, got %T", cmd())
	}
	return msg
}

func TestConfirmPrompt_Hidden(t *testing.T) {
	p := NewConfirmPrompt(styles.NewTheme(model.ThemeDark))
	cmd, handled := p.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	if cmd != nil || handled {
		t.Error("hidden prompt should ignore keys")
	}
	if p.View() != "" {
		t.Error("hidden prompt should render nothing")
	}
}

func TestConfirmPrompt_QuickKeys(t *testing.T) {
	p := NewConfirmPrompt(styles.NewTheme(model.ThemeDark))

	p.Show("Clear story", "Clear the whole story?")
	cmd, handled := p.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	if !handled || !result(t, cmd).Yes {
		t.Error("y should answer yes")
	}
	if p.IsVisible() {
		t.Error("prompt should hide after answering")
	}

	p.Show("Clear story", "Clear the whole story?")
	cmd, _ = p.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if result(t, cmd).Yes {
		t.Error("esc should answer no")
	}
}

func TestConfirmPrompt_EnterUsesFocus(t *testing.T) {
	p := NewConfirmPrompt(styles.NewTheme(model.ThemeLight))
	p.Show("Delete", "Delete this image?")

	cmd, _ := p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if result(t, cmd).Yes {
		t.Error("no is focused by default")
	}

	p.Show("Delete", "Delete this image?")
	p.Update(tea.KeyMsg{Type: tea.KeyRight})
	if p.Selected() != ButtonYes {
		t.Fatalf("expected yes focused, got %d", p.Selected())
	}
	cmd, _ = p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !result(t, cmd).Yes {
		t.Error("enter on yes should answer yes")
	}
}

func TestConfirmPrompt_SwallowsOtherKeys(t *testing.T) {
	p := NewConfirmPrompt(styles.NewTheme(model.ThemeDark))
	p.Show("Delete", "Delete Mira's message?")

	cmd, handled := p.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if cmd != nil || !handled {
		t.Error("visible prompt should swallow unrelated keys")
	}
	if !p.IsVisible() {
		t.Error("unrelated keys should not close the prompt")
	}
}

func TestConfirmPrompt_View(t *testing.T) {
	p := NewConfirmPrompt(styles.NewTheme(model.ThemeDark))
	p.SetSize(80, 24)
	p.Show("Delete message", "Delete Mira's message?")

	out := p.View()
	for _, want := range []string{"Delete message", "Mira's message", "Yes", "No"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in view", want)
		}
	}
}
