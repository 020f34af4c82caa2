// Package focus implements the focus-policy engine: it classifies
// foreground-context snapshots against the active policy and walks a
// three-state machine (clear, violating, suspended) with a grace period
// before a violation escalates to suspension.
package focus

import (
	"context"
	"sync"
	"time"

	"github.com/flowtonehq/flowtone/internal/domain/focus"
	"github.com/flowtonehq/flowtone/internal/infrastructure/logging"
)

// graceSeconds is how long a blocked context may stay in the foreground
// before the engine escalates to suspension. Returning to an allowed
// context within the grace window cancels the escalation.
const graceSeconds = 10

// State is the engine's violation state.
type State string

const (
	StateClear     State = "clear"
	StateViolating State = "violating"
	StateSuspended State = "suspended"
)

// ViolationFunc is invoked once when the grace period expires. The context
// is the snapshot that was in the foreground at escalation time.
type ViolationFunc func(ctx focus.Context)

// RefocusFunc is invoked once when a suspended engine sees an allowed
// context again.
type RefocusFunc func()

// Engine tracks violation state for the active focus policy. It is safe for
// concurrent use; callbacks run outside the engine lock.
type Engine struct {
	mu sync.Mutex

	enabled bool
	policy  focus.Policy
	state   State
	grace   int
	current focus.Context

	onViolation ViolationFunc
	onRefocus   RefocusFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logging.Logger
}

// NewEngine creates a disabled engine with the given policy.
func NewEngine(policy focus.Policy, onViolation ViolationFunc, onRefocus RefocusFunc, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		policy:      policy,
		state:       StateClear,
		onViolation: onViolation,
		onRefocus:   onRefocus,
		logger:      logger,
	}
}

// Enable starts the grace-period ticker and begins enforcing the policy.
func (e *Engine) Enable(ctx context.Context) {
	e.mu.Lock()
	if e.enabled {
		e.mu.Unlock()
		return
	}
	e.enabled = true
	e.state = StateClear
	e.grace = 0

	tickCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run(tickCtx)
}

// Disable stops enforcement and resets the state machine. It waits for the
// ticker goroutine to exit so no callback fires after Disable returns.
func (e *Engine) Disable() {
	e.mu.Lock()
	if !e.enabled {
		e.mu.Unlock()
		return
	}
	e.enabled = false
	e.state = StateClear
	e.grace = 0
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

// SetPolicy swaps the active policy and re-evaluates the current context
// against it immediately.
func (e *Engine) SetPolicy(policy focus.Policy) {
	e.mu.Lock()
	e.policy = policy
	current := e.current
	e.mu.Unlock()

	e.HandleContext(current)
}

// State returns the engine's current violation state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// HandleContext feeds a foreground snapshot into the state machine.
func (e *Engine) HandleContext(snapshot focus.Context) {
	e.mu.Lock()
	e.current = snapshot

	if !e.enabled {
		e.mu.Unlock()
		return
	}

	blocked := e.policy.Blocked(snapshot)

	var refocused bool
	switch e.state {
	case StateClear:
		if blocked {
			e.state = StateViolating
			e.grace = 0
			e.logger.Debug("focus violation detected",
				"app", snapshot.AppName,
				"host", snapshot.ActiveHost,
			)
		}
	case StateViolating:
		if !blocked {
			e.state = StateClear
			e.grace = 0
			e.logger.Debug("focus violation cleared within grace")
		}
	case StateSuspended:
		if !blocked {
			e.state = StateClear
			e.grace = 0
			refocused = true
		}
	}

	onRefocus := e.onRefocus
	e.mu.Unlock()

	if refocused && onRefocus != nil {
		onRefocus()
	}
}

// tick advances the grace countdown by one second. Exposed at package scope
// for deterministic tests.
func (e *Engine) tick() {
	e.mu.Lock()
	if !e.enabled || e.state != StateViolating {
		e.mu.Unlock()
		return
	}

	e.grace++
	if e.grace < graceSeconds {
		e.mu.Unlock()
		return
	}

	e.state = StateSuspended
	e.grace = 0
	offending := e.current
	onViolation := e.onViolation
	e.mu.Unlock()

	if onViolation != nil {
		onViolation(offending)
	}
}
