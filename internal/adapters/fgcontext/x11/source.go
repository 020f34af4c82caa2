// Package x11 observes the user's foreground context on X11 desktops: the
// EWMH active window provides the application (WM_CLASS) and, for known
// browsers, the window title yields a best-effort active host.
package x11

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"

	"github.com/flowtonehq/flowtone/internal/domain/focus"
	"github.com/flowtonehq/flowtone/internal/infrastructure/logging"
)

// pollInterval is the foreground probe cadence. Polling is required even
// without activation events, because a browser can change host through tab
// navigation with no window change.
const pollInterval = 2 * time.Second

// probeFunc captures one foreground snapshot. Extracted so tests can run
// the source without an X connection.
type probeFunc func() (focus.Context, error)

// Source polls the X server for the foreground context and publishes
// deduplicated snapshots. It implements ports.ContextSourcePort.
type Source struct {
	probe  probeFunc
	logger *logging.Logger

	mu      sync.Mutex
	current focus.Context
	haveOne bool

	out    chan focus.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	x *xgbutil.XUtil
}

// NewSource connects to the X server and returns a stopped source.
func NewSource(logger *logging.Logger) (*Source, error) {
	if logger == nil {
		logger = logging.Default()
	}

	x, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("x server connection failed: %w", err)
	}
	if _, err := ewmh.CurrentDesktopGet(x); err != nil {
		logger.Warn("window manager may not support EWMH", "error", err.Error())
	}

	s := newSource(logger, nil)
	s.x = x
	s.probe = s.probeX11
	return s, nil
}

func newSource(logger *logging.Logger, probe probeFunc) *Source {
	if logger == nil {
		logger = logging.Default()
	}
	return &Source{
		probe:  probe,
		logger: logger,
		out:    make(chan focus.Context, 8),
	}
}

// probeX11 reads the active window's WM_CLASS and title from the X server.
func (s *Source) probeX11() (focus.Context, error) {
	active, err := ewmh.ActiveWindowGet(s.x)
	if err != nil {
		return focus.Context{}, fmt.Errorf("active window lookup failed: %w", err)
	}
	if active == 0 {
		return focus.Context{}, nil
	}

	var appName string
	if hints, err := icccm.WmClassGet(s.x, active); err == nil && hints != nil {
		appName = hints.Class
	}

	title, err := ewmh.WmNameGet(s.x, active)
	if err != nil || title == "" {
		title, _ = icccm.WmNameGet(s.x, active)
	}

	return focus.Context{
		AppName:    appName,
		ActiveHost: HostFromTitle(appName, title),
	}, nil
}

// Start begins polling. Snapshots are delivered on Contexts until the
// context is cancelled or Close is called.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

func (s *Source) run(ctx context.Context) {
	defer s.wg.Done()

	s.poll(ctx)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll probes once and publishes the snapshot when it differs from the
// last one. Probe failures are transient (window manager churn) and are
// skipped silently.
func (s *Source) poll(ctx context.Context) {
	snapshot, err := s.probe()
	if err != nil {
		s.logger.DebugContext(ctx, "foreground probe failed", "error", err.Error())
		return
	}

	s.mu.Lock()
	changed := !s.haveOne || snapshot != s.current
	s.current = snapshot
	s.haveOne = true
	s.mu.Unlock()

	if !changed {
		return
	}

	select {
	case s.out <- snapshot:
	case <-ctx.Done():
	default:
		// A slow consumer drops intermediate snapshots; the next poll
		// republishes the latest state.
	}
}

// Contexts returns the channel of foreground snapshots.
func (s *Source) Contexts() <-chan focus.Context {
	return s.out
}

// Current returns the most recent snapshot.
func (s *Source) Current() (focus.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.haveOne {
		return focus.Context{}, fmt.Errorf("no foreground snapshot yet")
	}
	return s.current, nil
}

// Close stops polling and releases the X connection.
func (s *Source) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	if s.x != nil {
		s.x.Conn().Close()
	}
	return nil
}
