// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/storyloom/internal/cadence"
	"github.com/jeranaias/storyloom/internal/config"
	"github.com/jeranaias/storyloom/internal/controller"
	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/remote"
	"github.com/jeranaias/storyloom/internal/session"
	"github.com/jeranaias/storyloom/internal/storage"
)

// WatchDebounce collapses bursts of file events from another process.
const WatchDebounce = 250 * time.Millisecond

// Options configures New.
type Options struct {
	Config *config.Config
	Logger *zap.Logger
	// Dispatch runs completions on the front end's event loop. nil runs them
	// serialized on the calling goroutine.
	Dispatch func(func())
	// OnNotice receives user-visible notices from every component.
	OnNotice func(controller.Notice)
	// OnGenerated is told when illustrations arrive.
	OnGenerated func(count int, trigger cadence.Trigger)
	// OnAudio is told when a turn's narration URL arrives.
	OnAudio func(turnID, url string)
	// Clock drives the image scheduler; nil is the wall clock.
	Clock cadence.Clock
	// Store overrides the configured backend.
	Store storage.Store
}

// App is one assembled session.
type App struct {
	Config     *config.Config
	Log        *zap.Logger
	Store      storage.Store
	State      *session.State
	Client     *remote.Client
	Images     *cadence.Scheduler
	Controller *controller.Controller

	dispatch func(func())
	notice   func(controller.Notice)

	mu        sync.Mutex
	cancel    context.CancelFunc
	stopWatch func() error
	wg        sync.WaitGroup
	closed    bool
}

// New opens the store, loads the session and wires the components. A session
// that fails to load starts empty and the failure is reported as a notice.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	a := &App{
		Config:   cfg,
		Log:      log,
		dispatch: opts.Dispatch,
		notice:   opts.OnNotice,
	}
	if a.dispatch == nil {
		var mu sync.Mutex
		a.dispatch = func(f func()) {
			mu.Lock()
			defer mu.Unlock()
			f()
		}
	}
	if a.notice == nil {
		a.notice = func(controller.Notice) {}
	}

	store := opts.Store
	if store == nil {
		dir, err := cfg.DataDir()
		if err != nil {
			return nil, err
		}
		store, err = storage.Open(storage.Options{
			Kind:       cfg.Session.Store,
			Dir:        dir,
			SessionID:  cfg.Session.ID,
			Passphrase: cfg.Session.Passphrase,
		})
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
	}
	a.Store = store

	a.State = session.New(session.Options{
		Store:  store,
		Logger: log.Named("session"),
		OnPersistError: func(err error) {
			a.notice(controller.Notice{Level: controller.NoticeError, Text: "Could not save the story: " + err.Error()})
		},
	})
	if err := a.State.Load(); err != nil {
		a.notice(controller.Notice{Level: controller.NoticeWarning, Text: "Saved story could not be read; this session will not be saved"})
	} else {
		seedSettings(a.State, cfg.SessionDefaults())
	}

	a.Client = remote.NewClient(remote.Config{
		BaseURL:   cfg.Remote.BaseURL,
		Timeout:   cfg.Timeout(),
		RetryMax:  cfg.Remote.RetryMax,
		RateLimit: cfg.Remote.RateLimit,
		APIKey:    cfg.Remote.APIKey,
		Logger:    log.Named("remote"),
	})

	workflow, err := LoadWorkflow(cfg.Images)
	if err != nil {
		return nil, err
	}

	a.Images = cadence.New(cadence.Options{
		State:     a.State,
		Generator: a.Client,
		Clock:     opts.Clock,
		Dispatch:  a.dispatch,
		Workflow:  workflow,
		OnError: func(err error) {
			a.notice(controller.Notice{Level: controller.NoticeError, Text: "Image generation failed: " + remote.UserMessage(err)})
		},
		OnGenerated: opts.OnGenerated,
		Logger:      log.Named("cadence"),
	})
	a.Images.Attach()

	a.Controller = controller.New(controller.Options{
		State:    a.State,
		Remote:   a.Client,
		Images:   a.Images,
		Dispatch: a.dispatch,
		OnNotice: a.notice,
		OnAudio:  opts.OnAudio,
		Logger:   log.Named("controller"),
	})

	log.Info("session ready",
		zap.String("session", cfg.Session.ID),
		zap.String("store", cfg.Session.Store),
		zap.Bool("sealed", cfg.Session.Passphrase != ""),
		zap.Int("turns", len(a.State.Turns())))
	return a, nil
}

// seedSettings gives a session that has never been used the configured
// defaults. Stored sessions keep their own settings.
func seedSettings(state *session.State, defaults model.Settings) {
	snap := state.Snapshot()
	if len(snap.Turns) > 0 || len(snap.Images) > 0 || len(snap.CommandHistory) > 0 {
		return
	}
	if snap.Settings != model.DefaultSettings() {
		return
	}
	ig := defaults.ImageGeneration
	state.UpdateSettings(model.SettingsPatch{
		ImageEnabled:    model.Ptr(ig.Enabled),
		ImageMode:       model.Ptr(ig.Mode),
		IntervalSeconds: model.Ptr(ig.IntervalSeconds),
		SelectedAuthor:  model.Ptr(defaults.SelectedAuthor),
		Theme:           model.Ptr(defaults.Theme),
	})
}

// LoadWorkflow reads the configured ComfyUI workflow. No file means nil.
func LoadWorkflow(cfg config.ImagesConfig) (*remote.Workflow, error) {
	if cfg.Workflow == "" {
		return nil, nil
	}
	data, err := os.ReadFile(cfg.Workflow)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("workflow %s is not valid JSON", cfg.Workflow)
	}
	return &remote.Workflow{
		Graph:               json.RawMessage(data),
		PositivePlaceholder: cfg.PositivePlaceholder,
		NegativePlaceholder: cfg.NegativePlaceholder,
	}, nil
}

// =============================================================================
// BACKGROUND FEEDS
// =============================================================================

// Start opens the push event stream and the session file watcher when they
// are configured. Both stop on Close or when ctx ends.
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.cancel != nil {
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)

	if url, ok := a.eventsURL(); ok {
		stream := remote.NewEventStream(url, a.Log.Named("events"))
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			err := stream.Run(ctx, func(ev remote.Event) {
				a.dispatch(func() { a.Controller.ApplyEvent(ev) })
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				a.Log.Warn("event stream stopped", zap.Error(err))
			}
		}()
	}

	if a.Config.Session.Watch {
		if fs := fileStore(a.Store); fs != nil {
			stop, err := fs.Watch(ctx, WatchDebounce, func([]byte) {
				a.dispatch(a.reload)
			})
			if err != nil {
				a.Log.Warn("session watch unavailable", zap.Error(err))
			} else {
				a.stopWatch = stop
			}
		}
	}
}

func (a *App) eventsURL() (string, bool) {
	switch v := a.Config.Remote.EventsURL; v {
	case "":
		return "", false
	case "auto":
		url, err := remote.EventsURL(a.Config.Remote.BaseURL)
		if err != nil {
			a.Log.Warn("cannot derive events url", zap.Error(err))
			return "", false
		}
		return url, true
	default:
		return v, true
	}
}

// reload re-reads the store after another process changed it. The watcher
// hands over raw bytes, which are sealed when a passphrase is set.
func (a *App) reload() {
	blob, err := a.Store.Load()
	if err != nil {
		a.Log.Warn("session reload failed", zap.Error(err))
		return
	}
	a.State.Reattach(blob)
	a.notice(controller.Notice{Level: controller.NoticeInfo, Text: "Story reloaded from disk"})
}

func fileStore(s storage.Store) *storage.FileStore {
	for {
		switch v := s.(type) {
		case *storage.FileStore:
			return v
		case *storage.SealedStore:
			s = v.Unwrap()
		default:
			return nil
		}
	}
}

// Close stops the background feeds and the scheduler.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	cancel, stop := a.cancel, a.stopWatch
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if stop != nil {
		err = stop()
	}
	a.wg.Wait()
	a.Images.Close()
	if c, ok := a.Store.(interface{ Close() error }); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}
