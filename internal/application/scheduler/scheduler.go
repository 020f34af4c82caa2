// Package scheduler drives the intensity curve of an active session. It
// advances elapsed time once per second, derives generation parameters from
// the current intensity, and emits them on a fixed cadence so the backend is
// not flooded with near-identical updates.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/flowtonehq/flowtone/internal/domain/session"
	"github.com/flowtonehq/flowtone/internal/infrastructure/logging"
)

// emitInterval is the number of ticks between parameter emissions. The
// first tick after a start or restart always emits.
const emitInterval = 5

// ParamsFunc receives derived parameters. The bpmChanged flag is set when
// the BPM moved by session.BPMChangeThreshold or more from the reset
// baseline: the BPM of the first emission, advanced only when a change is
// flagged. Tracking the baseline instead of the previous emission means a
// slow drift still accumulates into a flagged change, which requires a
// generation context reset downstream.
type ParamsFunc func(params session.Parameters, bpmChanged bool)

// CompleteFunc is invoked once when the session reaches its full duration.
type CompleteFunc func()

// Scheduler owns the per-second advancement of a single session. It is safe
// for concurrent use; callbacks are invoked outside the scheduler lock.
type Scheduler struct {
	mu sync.Mutex

	sess       *session.Session
	running    bool
	paused     bool
	ticks      int
	lastSentAt int
	lastBPM    int
	emitted    bool

	onParams   ParamsFunc
	onComplete CompleteFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logging.Logger
}

// New creates a Scheduler for the given session.
func New(sess *session.Session, onParams ParamsFunc, onComplete CompleteFunc, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		sess:       sess,
		onParams:   onParams,
		onComplete: onComplete,
		logger:     logger,
	}
}

// Start begins ticking. The first parameter emission happens on the first
// tick rather than after a full emit interval, so playback starts with
// correct parameters.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.paused = false
	s.emitted = false
	s.ticks = 0

	tickCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(tickCtx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick advances the session by one second and emits parameters when due.
// Exposed at package scope for deterministic tests.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	if !s.running || s.paused {
		s.mu.Unlock()
		return
	}

	completed := s.sess.Advance()
	s.ticks++

	var (
		emitParams session.Parameters
		emit       bool
		bpmChanged bool
	)

	if completed {
		s.running = false
	} else if !s.emitted || s.ticks-s.lastSentAt >= emitInterval {
		emitParams = session.ParametersFor(s.sess.Intensity)
		if !s.emitted {
			s.lastBPM = emitParams.BPM
		} else {
			delta := emitParams.BPM - s.lastBPM
			if delta < 0 {
				delta = -delta
			}
			bpmChanged = delta >= session.BPMChangeThreshold
			// The baseline moves only on a flagged change, so gradual
			// drift keeps accumulating against it.
			if bpmChanged {
				s.lastBPM = emitParams.BPM
			}
		}
		s.lastSentAt = s.ticks
		s.emitted = true
		emit = true
	}

	onParams := s.onParams
	onComplete := s.onComplete
	s.mu.Unlock()

	if emit && onParams != nil {
		logging.LogParameterTick(ctx, s.logger, emitParams.BPM, bpmChanged)
		onParams(emitParams, bpmChanged)
	}
	if completed && onComplete != nil {
		onComplete()
	}
}

// Pause stops advancing elapsed time. Ticks continue firing but are ignored
// until Resume.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume continues advancement after a pause. The next emission follows the
// normal cadence; intensity picks up where it left off.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Paused reports whether the scheduler is currently paused.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Running reports whether the scheduler is started and not yet completed or
// cancelled.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Cancel stops the tick loop and waits for it to exit, so no tick can fire
// after Cancel returns.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.running = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Restart rewinds the session to zero elapsed time and begins a fresh tick
// loop. The first tick after a restart always emits.
func (s *Scheduler) Restart(ctx context.Context) {
	s.Cancel()

	s.mu.Lock()
	s.sess.Reset()
	s.ticks = 0
	s.lastSentAt = 0
	s.emitted = false
	s.mu.Unlock()

	s.Start(ctx)
}

// Session returns the underlying session for status reporting.
func (s *Scheduler) Session() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}
