// Package routing implements the prompt-routing engine: foreground-context
// snapshots are matched against an ordered rule list, and a dwell debounce
// ensures a candidate profile must hold the foreground for a sustained
// interval before the engine commits a switch.
package routing

import (
	"context"
	"sync"
	"time"

	"github.com/flowtonehq/flowtone/internal/domain/focus"
	"github.com/flowtonehq/flowtone/internal/domain/routing"
	"github.com/flowtonehq/flowtone/internal/infrastructure/logging"
)

// dwellSeconds is how long a new match candidate must stay in the
// foreground before the engine commits to it. A different candidate
// restarts the countdown; returning to the committed profile cancels it.
const dwellSeconds = 10

// SwitchFunc is invoked when the engine commits a profile switch. A nil
// rule means no rule matches and the ambient prompt should be restored.
type SwitchFunc func(rule *routing.Rule)

// Engine debounces rule matches into committed profile switches. It is safe
// for concurrent use; the switch callback runs outside the engine lock.
type Engine struct {
	mu sync.Mutex

	enabled bool
	rules   *routing.Set
	current focus.Context

	committed *routing.Rule
	pending   *routing.Rule
	dwelling  bool
	dwell     int

	onSwitch SwitchFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logging.Logger
}

// NewEngine creates a disabled engine over the given rule set.
func NewEngine(rules *routing.Set, onSwitch SwitchFunc, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		rules:    rules,
		onSwitch: onSwitch,
		logger:   logger,
	}
}

// Enable starts the dwell ticker and begins evaluating contexts.
func (e *Engine) Enable(ctx context.Context) {
	e.mu.Lock()
	if e.enabled {
		e.mu.Unlock()
		return
	}
	e.enabled = true
	e.committed = nil
	e.pending = nil
	e.dwelling = false
	e.dwell = 0

	tickCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run(tickCtx)
}

// Disable stops evaluation and clears all pending state. It waits for the
// ticker goroutine so no switch fires after Disable returns.
func (e *Engine) Disable() {
	e.mu.Lock()
	if !e.enabled {
		e.mu.Unlock()
		return
	}
	e.enabled = false
	e.pending = nil
	e.dwelling = false
	e.dwell = 0
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

// SetRules swaps the rule set and re-evaluates the current context. Used by
// the hot-reload watcher.
func (e *Engine) SetRules(rules *routing.Set) {
	e.mu.Lock()
	e.rules = rules
	current := e.current
	e.mu.Unlock()

	e.HandleContext(current)
}

// Committed returns the currently committed rule, or nil for the ambient
// profile.
func (e *Engine) Committed() *routing.Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.committed
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
			e.tick(ctx)
		}
	}
}

// HandleContext feeds a foreground snapshot into the debounce logic.
func (e *Engine) HandleContext(snapshot focus.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.current = snapshot
	if !e.enabled {
		return
	}

	candidate := e.rules.Match(snapshot)

	if sameRule(candidate, e.committed) {
		// Back on the committed profile: any pending switch is abandoned.
		e.pending = nil
		e.dwelling = false
		e.dwell = 0
		return
	}

	if e.dwelling && sameRule(candidate, e.pending) {
		// Countdown continues in tick.
		return
	}

	e.pending = candidate
	e.dwelling = true
	e.dwell = 0
}

// tick advances the dwell countdown by one second and commits the pending
// switch when it expires. Exposed at package scope for deterministic tests.
func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	if !e.enabled || !e.dwelling {
		e.mu.Unlock()
		return
	}

	e.dwell++
	if e.dwell < dwellSeconds {
		e.mu.Unlock()
		return
	}

	committed := e.pending
	e.committed = committed
	e.pending = nil
	e.dwelling = false
	e.dwell = 0
	onSwitch := e.onSwitch
	e.mu.Unlock()

	if committed != nil {
		logging.LogProfileSwitch(ctx, e.logger, committed.ID, committed.Label)
	} else {
		e.logger.InfoContext(ctx, "routing profile cleared, restoring ambient prompt")
	}
	if onSwitch != nil {
		onSwitch(committed)
	}
}

func sameRule(a, b *routing.Rule) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
