// Package session implements the session coordinator: the single owner of
// session lifecycle state. It wires the intensity scheduler, the focus and
// routing engines, and the streaming client together, and serializes every
// session-level mutation behind one lock.
package session

import (
	"context"
	"sync"

	"github.com/flowtonehq/flowtone/internal/application/ports"
	"github.com/flowtonehq/flowtone/internal/application/scheduler"
	flowerrors "github.com/flowtonehq/flowtone/internal/domain/errors"
	"github.com/flowtonehq/flowtone/internal/domain/prompt"
	"github.com/flowtonehq/flowtone/internal/domain/session"
	"github.com/flowtonehq/flowtone/internal/infrastructure/logging"
	"github.com/flowtonehq/flowtone/internal/infrastructure/tracing"
)

// Options carries the coordinator's static configuration.
type Options struct {
	// APIKey gates session start: without a credential the generation
	// backend cannot be reached and start fails fast.
	APIKey string

	// CalmPrompt and IntensePrompt form the ambient pair for wave sessions.
	// Empty values fall back to the package defaults.
	CalmPrompt    string
	IntensePrompt string

	// FreePlayPrompt is the static prompt for free-play sessions.
	FreePlayPrompt string

	// Temperature is passed through to the generation backend.
	Temperature float64
}

// Status is a point-in-time snapshot of the coordinator for reporting.
type Status struct {
	State            session.State
	Mode             session.Mode
	ElapsedSeconds   int
	RemainingSeconds int
	Intensity        float64
	Suspended        bool
	Override         string
	RoutedLabel      string
	Connection       ports.ConnectionState
}

// Coordinator owns the active session. All methods are safe for concurrent
// use; engine callbacks feed back into the coordinator through the same
// lock.
type Coordinator struct {
	mu sync.Mutex

	opts     Options
	stream   ports.StreamPort
	reminder ports.ReminderPort
	tracer   *tracing.Tracer
	logger   *logging.Logger

	sess  *session.Session
	sched *scheduler.Scheduler

	// span is open for the active session's whole lifetime.
	span *tracing.SessionSpan

	suspended   bool
	override    string
	routed      string
	routedLabel string
	lastParams  session.Parameters

	// base context for engine goroutines, captured at Start.
	runCtx    context.Context
	runCancel context.CancelFunc
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(opts Options, stream ports.StreamPort, reminder ports.ReminderPort, tracer *tracing.Tracer, logger *logging.Logger) *Coordinator {
	if tracer == nil {
		tracer = tracing.Default()
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Coordinator{
		opts:     opts,
		stream:   stream,
		reminder: reminder,
		tracer:   tracer,
		logger:   logger,
	}
	stream.OnStateChange(c.handleStreamState)
	return c
}

// Start begins a timed wave session of the given duration.
func (c *Coordinator) Start(ctx context.Context, durationSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.startGate(); err != nil {
		return err
	}

	sess, err := session.New(durationSeconds)
	if err != nil {
		return flowerrors.NewError(flowerrors.CodeValidation, "invalid session duration", err)
	}

	return c.startLocked(ctx, sess)
}

// StartFreePlay begins an untimed session with a static prompt and a
// user-controlled tempo.
func (c *Coordinator) StartFreePlay(ctx context.Context, bpm int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.startGate(); err != nil {
		return err
	}

	return c.startLocked(ctx, session.NewFreePlay(), withFreePlayBPM(bpm))
}

func (c *Coordinator) startGate() error {
	if c.opts.APIKey == "" {
		return flowerrors.ErrConfigurationMissing
	}
	if c.sess != nil && (c.sess.State == session.StateRunning || c.sess.State == session.StatePaused) {
		return flowerrors.ErrSessionActive
	}
	return nil
}

type startOption func(*ports.MusicConfig)

func withFreePlayBPM(bpm int) startOption {
	return func(cfg *ports.MusicConfig) {
		clamped := session.ClampFreePlayBPM(bpm)
		cfg.BPM = &clamped
	}
}

func (c *Coordinator) startLocked(ctx context.Context, sess *session.Session, opts ...startOption) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = logging.WithSessionID(runCtx, sess.ID)
	runCtx, span := c.tracer.StartSessionSpan(runCtx, sess.ID, string(sess.Mode), sess.DurationSeconds)

	if err := c.stream.Connect(runCtx); err != nil {
		cancel()
		connErr := flowerrors.NewError(flowerrors.CodeConnection, "backend connect failed", err)
		span.EndWithError(connErr)
		return connErr
	}

	c.sess = sess
	c.span = span
	c.runCtx = runCtx
	c.runCancel = cancel
	c.suspended = false
	c.override = ""
	c.routed = ""
	c.routedLabel = ""

	c.lastParams = session.ParametersFor(0)

	cfg := ports.MusicConfig{Temperature: c.opts.Temperature}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.BPM != nil {
		c.lastParams.BPM = *cfg.BPM
	} else {
		bpm := c.lastParams.BPM
		density := c.lastParams.Density
		brightness := c.lastParams.Brightness
		cfg.BPM = &bpm
		cfg.Density = &density
		cfg.Brightness = &brightness
	}

	if err := c.stream.SetMusicConfig(runCtx, cfg); err != nil {
		logging.LogSendFailure(runCtx, c.logger, "music-config", err)
	}
	if err := c.stream.SetPrompts(runCtx, c.resolveLocked()); err != nil {
		logging.LogSendFailure(runCtx, c.logger, "prompt-set", err)
	}
	if err := c.stream.Play(runCtx); err != nil {
		logging.LogSendFailure(runCtx, c.logger, "play", err)
	}

	sess.State = session.StateRunning

	if sess.Mode == session.ModeWave {
		c.sched = scheduler.New(sess, c.handleParams, c.handleComplete, c.logger)
		c.sched.Start(runCtx)
	}

	logging.LogSessionStart(runCtx, c.logger, sess.ID, sess.DurationSeconds)
	return nil
}

// Pause suspends advancement and playback, retaining progress.
func (c *Coordinator) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil || c.sess.State != session.StateRunning {
		return flowerrors.ErrNoActiveSession
	}

	if c.sched != nil {
		c.sched.Pause()
	}
	if err := c.stream.Pause(ctx); err != nil {
		logging.LogSendFailure(ctx, c.logger, "pause", err)
	}
	c.sess.State = session.StatePaused
	return nil
}

// Resume continues a paused session.
func (c *Coordinator) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil || c.sess.State != session.StatePaused || c.suspended {
		return flowerrors.ErrNoActiveSession
	}

	if c.sched != nil {
		c.sched.Resume()
	}
	if err := c.stream.Play(ctx); err != nil {
		logging.LogSendFailure(ctx, c.logger, "play", err)
	}
	c.sess.State = session.StateRunning
	return nil
}

// Cancel ends the session, stops playback, and disconnects.
func (c *Coordinator) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if c.sess == nil || c.sess.State == session.StateIdle || c.sess.State == session.StateCompleted {
		c.mu.Unlock()
		return flowerrors.ErrNoActiveSession
	}
	sched := c.sched
	c.sched = nil
	elapsed := c.sess.ElapsedSeconds
	span := c.span
	c.span = nil
	c.teardownLocked()
	c.sess.State = session.StateIdle
	c.sess = nil
	c.mu.Unlock()

	if sched != nil {
		sched.Cancel()
	}
	if span != nil {
		span.SetCompletion(false, elapsed)
		span.End()
	}

	if err := c.stream.Stop(ctx); err != nil {
		logging.LogSendFailure(ctx, c.logger, "stop", err)
	}
	return c.stream.Disconnect()
}

// Suspend pauses the session on a focus violation and starts the audible
// reminder. Intended to be wired to the focus engine's violation callback;
// appName and host identify the offending context for logging.
func (c *Coordinator) Suspend(ctx context.Context, appName, host string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil || c.sess.State != session.StateRunning {
		return flowerrors.ErrNoActiveSession
	}

	if c.sched != nil {
		c.sched.Pause()
	}
	if err := c.stream.Pause(ctx); err != nil {
		logging.LogSendFailure(ctx, c.logger, "pause", err)
	}
	c.sess.State = session.StatePaused
	c.suspended = true

	if c.reminder != nil {
		if err := c.reminder.Start(c.runCtx); err != nil {
			c.logger.WarnContext(ctx, "reminder start failed", "error", err.Error())
		}
	}
	if c.span != nil {
		c.span.AddSuspension(appName, host)
	}

	logging.LogSessionSuspended(ctx, c.logger, c.sess.ID, appName, host)
	return nil
}

// ResumeSuspended ends a suspension: the reminder stops, the steering
// override is cleared, the intensity curve restarts from zero, and the
// backend's generation context is reset so stale audio state cannot leak
// into the fresh ramp.
func (c *Coordinator) ResumeSuspended(ctx context.Context) error {
	c.mu.Lock()

	if c.sess == nil || !c.suspended {
		c.mu.Unlock()
		return flowerrors.ErrNotSuspended
	}

	if c.reminder != nil {
		c.reminder.Stop()
	}
	c.suspended = false
	c.override = ""

	if err := c.stream.ResetContext(ctx); err != nil {
		logging.LogSendFailure(ctx, c.logger, "context-reset", err)
	}
	if err := c.stream.SetPrompts(ctx, c.resolveLocked()); err != nil {
		logging.LogSendFailure(ctx, c.logger, "prompt-set", err)
	}
	if err := c.stream.Play(ctx); err != nil {
		logging.LogSendFailure(ctx, c.logger, "play", err)
	}

	c.sess.State = session.StateRunning
	id := c.sess.ID
	sched := c.sched
	runCtx := c.runCtx
	c.mu.Unlock()

	// Restart joins the tick goroutine, which may be waiting on the
	// coordinator lock inside a callback, so it must run unlocked.
	if sched != nil {
		sched.Restart(runCtx)
	}

	logging.LogSessionRefocused(ctx, c.logger, id)
	return nil
}

// SetOverride installs a steering override prompt and pushes the updated
// prompt list to the backend.
func (c *Coordinator) SetOverride(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		return flowerrors.ErrNoActiveSession
	}

	c.override = text
	return c.stream.SetPrompts(ctx, c.resolveLocked())
}

// ClearOverride removes the steering override.
func (c *Coordinator) ClearOverride(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		return flowerrors.ErrNoActiveSession
	}

	c.override = ""
	return c.stream.SetPrompts(ctx, c.resolveLocked())
}

// SetRouted installs or clears the routed profile prompt. A nil label/text
// pair clears routing and restores the ambient prompt. Intended to be wired
// to the routing engine's switch callback.
func (c *Coordinator) SetRouted(ctx context.Context, label, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		return flowerrors.ErrNoActiveSession
	}

	c.routed = text
	c.routedLabel = label
	if label != "" && c.span != nil {
		c.span.AddProfileSwitch(label)
	}
	return c.stream.SetPrompts(ctx, c.resolveLocked())
}

// SetFreePlayBPM updates the tempo of a free-play session, clamped to the
// extended free-play range.
func (c *Coordinator) SetFreePlayBPM(ctx context.Context, bpm int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil || c.sess.Mode != session.ModeFreePlay {
		return flowerrors.ErrNoActiveSession
	}

	clamped := session.ClampFreePlayBPM(bpm)
	delta := clamped - c.lastParams.BPM
	if delta < 0 {
		delta = -delta
	}
	c.lastParams.BPM = clamped

	if err := c.stream.SetMusicConfig(ctx, ports.MusicConfig{
		BPM:         &clamped,
		Temperature: c.opts.Temperature,
	}); err != nil {
		logging.LogSendFailure(ctx, c.logger, "music-config", err)
	}
	if delta >= session.BPMChangeThreshold {
		if err := c.stream.ResetContext(ctx); err != nil {
			logging.LogSendFailure(ctx, c.logger, "context-reset", err)
		}
	}
	return nil
}

// Status returns a snapshot for reporting.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:      session.StateIdle,
		Connection: c.stream.State(),
		Suspended:  c.suspended,
		Override:   c.override,
	}
	if c.sess != nil {
		st.State = c.sess.State
		st.Mode = c.sess.Mode
		st.ElapsedSeconds = c.sess.ElapsedSeconds
		st.RemainingSeconds = c.sess.Remaining()
		st.Intensity = c.sess.Intensity
		st.RoutedLabel = c.routedLabel
	}
	return st
}

// handleParams receives thresholded parameter emissions from the scheduler.
func (c *Coordinator) handleParams(params session.Parameters, bpmChanged bool) {
	c.mu.Lock()
	if c.sess == nil || c.sess.State != session.StateRunning {
		c.mu.Unlock()
		return
	}
	ctx := c.runCtx
	c.lastParams = params
	prompts := c.resolveLocked()
	c.mu.Unlock()

	bpm := params.BPM
	if err := c.stream.SetMusicConfig(ctx, ports.MusicConfig{
		BPM:         &bpm,
		Density:     &params.Density,
		Brightness:  &params.Brightness,
		Temperature: c.opts.Temperature,
	}); err != nil {
		logging.LogSendFailure(ctx, c.logger, "music-config", err)
	}
	if err := c.stream.SetPrompts(ctx, prompts); err != nil {
		logging.LogSendFailure(ctx, c.logger, "prompt-set", err)
	}
	if bpmChanged {
		// Large tempo jumps invalidate the backend's generation history.
		if err := c.stream.ResetContext(ctx); err != nil {
			logging.LogSendFailure(ctx, c.logger, "context-reset", err)
		}
	}
}

// handleComplete fires when the session reaches its full duration.
func (c *Coordinator) handleComplete() {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return
	}
	ctx := c.runCtx
	c.sess.State = session.StateCompleted
	id := c.sess.ID
	elapsed := c.sess.ElapsedSeconds
	span := c.span
	c.span = nil
	c.sched = nil
	c.teardownLocked()
	c.mu.Unlock()

	if span != nil {
		span.SetCompletion(true, elapsed)
		span.End()
	}

	if err := c.stream.Stop(ctx); err != nil {
		logging.LogSendFailure(ctx, c.logger, "stop", err)
	}
	if err := c.stream.Disconnect(); err != nil {
		c.logger.WarnContext(ctx, "disconnect failed", "error", err.Error())
	}
	logging.LogSessionCompleted(ctx, c.logger, id)
}

// handleStreamState reacts to connection state transitions. A stream error
// halts the session: playback cannot continue and there is no automatic
// reconnect.
func (c *Coordinator) handleStreamState(state ports.ConnectionState) {
	if state.Status != ports.StatusError {
		return
	}

	c.mu.Lock()
	if c.sess == nil || c.sess.State == session.StateIdle || c.sess.State == session.StateCompleted {
		c.mu.Unlock()
		return
	}
	ctx := c.runCtx
	sched := c.sched
	c.sched = nil
	span := c.span
	c.span = nil
	c.sess.State = session.StateIdle
	c.sess = nil
	c.teardownLocked()
	c.mu.Unlock()

	if sched != nil {
		sched.Cancel()
	}
	if span != nil {
		span.EndWithError(flowerrors.NewError(flowerrors.CodeBackend, state.Message, nil))
	}
	c.logger.ErrorContext(ctx, "session halted by stream error", "reason", state.Message)
}

// teardownLocked stops the reminder and cancels the run context. Callers
// hold the lock and handle scheduler shutdown themselves, because
// Scheduler.Cancel joins a goroutine that may be waiting on this lock.
func (c *Coordinator) teardownLocked() {
	if c.reminder != nil {
		c.reminder.Stop()
	}
	c.suspended = false
	c.override = ""
	c.routed = ""
	c.routedLabel = ""
	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
}

// resolveLocked merges the prompt sources for the current state.
func (c *Coordinator) resolveLocked() []prompt.WeightedPrompt {
	r := prompt.Resolution{
		CalmPrompt:    c.opts.CalmPrompt,
		IntensePrompt: c.opts.IntensePrompt,
		Parameters:    c.lastParams,
		Override:      c.override,
		Routed:        c.routed,
	}
	if c.sess != nil && c.sess.Mode == session.ModeFreePlay {
		static := c.opts.FreePlayPrompt
		if static == "" {
			static = prompt.DefaultCalmPrompt
		}
		r.Static = static
	}
	return prompt.Resolve(r)
}
