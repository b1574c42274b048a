// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cadence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/remote"
	"github.com/jeranaias/storyloom/internal/session"
)

// Cooldown is the minimum gap between after_chat generations.
const Cooldown = 5000 * time.Millisecond

// Trigger says what started a generation.
type Trigger int

const (
	TriggerAfterChat Trigger = iota
	TriggerPeriodic
	TriggerManual
)

func (t Trigger) String() string {
	switch t {
	case TriggerAfterChat:
		return "after_chat"
	case TriggerPeriodic:
		return "periodic"
	case TriggerManual:
		return "manual"
	}
	return "unknown"
}

// ImageGenerator produces illustrations. *remote.Client implements it.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req remote.ImageRequest) (*remote.ImageResult, error)
}

// Options configures a Scheduler.
type Options struct {
	State     *session.State
	Generator ImageGenerator
	// Clock defaults to RealClock.
	Clock Clock
	// Dispatch runs result application on the caller's event loop. nil runs
	// it on the generation goroutine.
	Dispatch func(func())
	// Workflow routes requests to the ComfyUI endpoint when set.
	Workflow *remote.Workflow
	// Timeout bounds one generation; 0 leaves it to the generator.
	Timeout time.Duration
	// OnError is told about failed generations.
	OnError func(error)
	// OnGenerated is told how many images were appended.
	OnGenerated func(count int, trigger Trigger)
	Logger      *zap.Logger
}

// Scheduler owns the periodic timer and the single in-flight generation.
type Scheduler struct {
	state    *session.State
	gen      ImageGenerator
	clock    Clock
	dispatch func(func())
	spawn    func(func())
	workflow *remote.Workflow
	timeout  time.Duration
	onError  func(error)
	onDone   func(int, Trigger)
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	timer    Timer
	timerGen uint64
	interval time.Duration
	inFlight bool
	job      uint64
	applied  model.ImageGeneration
	detach   func()
	closed   bool
}

// New returns a stopped scheduler. Call Apply or Attach to start it.
func New(opts Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		state:    opts.State,
		gen:      opts.Generator,
		clock:    opts.Clock,
		dispatch: opts.Dispatch,
		spawn:    func(f func()) { go f() },
		workflow: opts.Workflow,
		timeout:  opts.Timeout,
		onError:  opts.OnError,
		onDone:   opts.OnGenerated,
		log:      opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	if s.clock == nil {
		s.clock = RealClock{}
	}
	if s.dispatch == nil {
		s.dispatch = func(f func()) { f() }
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// =============================================================================
// MODE CONTROL
// =============================================================================

// Attach applies the current settings and re-applies them whenever the
// session's settings change or the session is cleared.
func (s *Scheduler) Attach() {
	s.Apply(s.state.Settings().ImageGeneration)
	detach := s.state.Subscribe(func(c session.Change) {
		if c.Has(session.ChangeCleared) {
			s.retire()
		}
		if c.Has(session.ChangeSettings) {
			s.Apply(s.state.Settings().ImageGeneration)
		}
	})

	s.mu.Lock()
	if s.detach != nil {
		s.detach()
	}
	s.detach = detach
	s.mu.Unlock()
}

// Apply stops any running timer, then starts a new one when cfg selects
// periodic mode. At most one timer is active afterwards.
func (s *Scheduler) Apply(cfg model.ImageGeneration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	cfg.IntervalSeconds = model.ClampInterval(cfg.IntervalSeconds)
	if cfg == s.applied && (s.timer != nil) == s.wantsTimer(cfg) {
		return
	}
	s.applied = cfg

	s.stopLocked()
	if s.wantsTimer(cfg) {
		s.startLocked(time.Duration(cfg.IntervalSeconds) * time.Second)
	}
	s.log.Debug("image cadence applied",
		zap.Bool("enabled", cfg.Enabled),
		zap.String("mode", string(cfg.Mode)),
		zap.Int("interval_seconds", cfg.IntervalSeconds))
}

func (s *Scheduler) wantsTimer(cfg model.ImageGeneration) bool {
	return cfg.Enabled && cfg.Mode == model.ModePeriodic
}

// Stop cancels the periodic timer. An in-flight generation still completes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.applied = model.ImageGeneration{}
}

// Close stops the timer, detaches from the session and abandons any
// in-flight generation.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopLocked()
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()

	if detach != nil {
		detach()
	}
	s.cancel()
}

// Active reports whether a periodic timer is scheduled.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// retire forgets the in-flight generation so a cleared session can start
// its own at once. The abandoned result is dropped when it arrives.
func (s *Scheduler) retire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job++
	s.inFlight = false
}

// Generating reports whether a generation is in flight.
func (s *Scheduler) Generating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Scheduler) startLocked(interval time.Duration) {
	s.stopLocked()
	s.interval = interval
	s.armLocked(s.timerGen)
}

// armLocked schedules the next tick for timer generation gen.
func (s *Scheduler) armLocked(gen uint64) {
	s.timer = s.clock.AfterFunc(s.interval, func() { s.tick(gen) })
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// Ticks already past Stop see a newer generation and do nothing.
	s.timerGen++
}

func (s *Scheduler) tick(gen uint64) {
	s.mu.Lock()
	if gen != s.timerGen || s.closed {
		s.mu.Unlock()
		return
	}
	s.armLocked(gen)
	s.mu.Unlock()

	s.start(TriggerPeriodic)
}

// =============================================================================
// TRIGGERS
// =============================================================================

// AfterChat is called after every successful chat turn. It starts a
// generation when after_chat mode is enabled and the cooldown has passed,
// and reports whether it did.
func (s *Scheduler) AfterChat() bool {
	cfg := s.state.Settings().ImageGeneration
	if !cfg.Enabled || cfg.Mode != model.ModeAfterChat {
		return false
	}
	if last := s.state.LastImageGenerationAt(); !last.IsZero() && s.clock.Now().Sub(last) < Cooldown {
		s.log.Debug("image generation skipped: cooldown")
		return false
	}
	return s.start(TriggerAfterChat)
}

// GenerateNow starts a generation regardless of mode or cooldown. It is
// still refused while another generation is in flight.
func (s *Scheduler) GenerateNow() bool {
	return s.start(TriggerManual)
}

func (s *Scheduler) start(trigger Trigger) bool {
	s.mu.Lock()
	if s.inFlight || s.closed || s.gen == nil {
		s.mu.Unlock()
		return false
	}
	s.inFlight = true
	s.job++
	job := s.job
	s.mu.Unlock()

	snap := s.state.Snapshot()
	req := remote.ImageRequest{
		History:      snap.Turns,
		ImageHistory: snap.Images,
		Workflow:     s.workflow,
	}

	s.spawn(func() {
		ctx := s.ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		res, err := s.gen.GenerateImage(ctx, req)
		s.dispatch(func() { s.complete(job, snap.Epoch, trigger, res, err) })
	})
	return true
}

// complete applies a generation result. Results from before a Clear are
// dropped.
func (s *Scheduler) complete(job, epoch uint64, trigger Trigger, res *remote.ImageResult, err error) {
	s.mu.Lock()
	retired := job != s.job
	if !retired {
		s.inFlight = false
	}
	closed := s.closed
	s.mu.Unlock()

	if closed || retired || epoch != s.state.Epoch() {
		s.log.Debug("image result dropped", zap.Stringer("trigger", trigger))
		return
	}
	if err != nil {
		s.log.Warn("image generation failed", zap.Stringer("trigger", trigger), zap.Error(err))
		if s.onError != nil {
			s.onError(err)
		}
		return
	}

	now := s.clock.Now()
	n := s.state.AppendImages(model.ImagesFromURLs(res.URLs, res.Prompt, now))
	s.state.SetLastImageGenerationAt(now)
	s.log.Info("images generated", zap.Stringer("trigger", trigger), zap.Int("count", n))
	if s.onDone != nil {
		s.onDone(n, trigger)
	}
}
