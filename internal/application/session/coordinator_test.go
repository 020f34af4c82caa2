package session

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/flowtonehq/flowtone/internal/application/ports"
	flowerrors "github.com/flowtonehq/flowtone/internal/domain/errors"
	"github.com/flowtonehq/flowtone/internal/domain/prompt"
	"github.com/flowtonehq/flowtone/internal/domain/session"
	"github.com/flowtonehq/flowtone/internal/infrastructure/tracing"
)

// fakeStream records every command for assertions.
type fakeStream struct {
	mu         sync.Mutex
	state      ports.ConnectionState
	listener   func(ports.ConnectionState)
	commands   []string
	prompts    [][]prompt.WeightedPrompt
	configs    []ports.MusicConfig
	connectErr error
}

func newFakeStream() *fakeStream {
	return &fakeStream{state: ports.ConnectionState{Status: ports.StatusDisconnected}}
}

func (f *fakeStream) record(cmd string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
}

func (f *fakeStream) Connect(_ context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.record("connect")
	f.mu.Lock()
	f.state = ports.ConnectionState{Status: ports.StatusConnected}
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) Disconnect() error {
	f.record("disconnect")
	f.mu.Lock()
	f.state = ports.ConnectionState{Status: ports.StatusDisconnected}
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) State() ports.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeStream) OnStateChange(fn func(ports.ConnectionState)) {
	f.listener = fn
}

func (f *fakeStream) SetPrompts(_ context.Context, p []prompt.WeightedPrompt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, "prompts")
	f.prompts = append(f.prompts, p)
	return nil
}

func (f *fakeStream) SetMusicConfig(_ context.Context, cfg ports.MusicConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, "config")
	f.configs = append(f.configs, cfg)
	return nil
}

func (f *fakeStream) Play(_ context.Context) error  { f.record("play"); return nil }
func (f *fakeStream) Pause(_ context.Context) error { f.record("pause"); return nil }
func (f *fakeStream) Stop(_ context.Context) error  { f.record("stop"); return nil }

func (f *fakeStream) ResetContext(_ context.Context) error {
	f.record("reset")
	return nil
}

func (f *fakeStream) count(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c == cmd {
			n++
		}
	}
	return n
}

func (f *fakeStream) lastPrompts() []prompt.WeightedPrompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return nil
	}
	return f.prompts[len(f.prompts)-1]
}

type fakeReminder struct {
	mu      sync.Mutex
	started int
	stopped int
}

func (f *fakeReminder) Start(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return nil
}

func (f *fakeReminder) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func newTestCoordinator(stream *fakeStream, reminder *fakeReminder) *Coordinator {
	var port ports.ReminderPort
	if reminder != nil {
		port = reminder
	}
	return NewCoordinator(Options{
		APIKey:        "test-key",
		CalmPrompt:    "calm strings",
		IntensePrompt: "driving percussion",
		Temperature:   1.1,
	}, stream, port, nil, nil)
}

func TestCoordinator_StartRequiresAPIKey(t *testing.T) {
	stream := newFakeStream()
	coord := NewCoordinator(Options{}, stream, nil, nil, nil)

	err := coord.Start(context.Background(), 300)
	if !flowerrors.Is(err, flowerrors.ErrConfigurationMissing) {
		t.Fatalf("err = %v, expected ErrConfigurationMissing", err)
	}
	if stream.count("connect") != 0 {
		t.Error("connect attempted without credentials")
	}
}

func TestCoordinator_StartHandshakeSequence(t *testing.T) {
	stream := newFakeStream()
	coord := newTestCoordinator(stream, nil)
	defer coord.Cancel(context.Background())

	if err := coord.Start(context.Background(), 300); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := coord.Status().State; got != session.StateRunning {
		t.Errorf("state = %q, expected running", got)
	}
	for _, cmd := range []string{"connect", "config", "prompts", "play"} {
		if stream.count(cmd) == 0 {
			t.Errorf("expected %q command during start", cmd)
		}
	}

	// At intensity zero the ambient pair leads with full calm weight.
	p := stream.lastPrompts()
	if len(p) != 2 {
		t.Fatalf("prompt list length = %d, expected 2", len(p))
	}
	if p[0].Text != "calm strings" || p[0].Weight != 1.0 {
		t.Errorf("calm prompt = %+v", p[0])
	}
	if p[1].Weight != 0.1 {
		t.Errorf("intense weight at start = %v, expected floor 0.1", p[1].Weight)
	}
}

func TestCoordinator_DoubleStartRejected(t *testing.T) {
	stream := newFakeStream()
	coord := newTestCoordinator(stream, nil)
	defer coord.Cancel(context.Background())

	if err := coord.Start(context.Background(), 300); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := coord.Start(context.Background(), 300); !flowerrors.Is(err, flowerrors.ErrSessionActive) {
		t.Errorf("second start err = %v, expected ErrSessionActive", err)
	}
}

func TestCoordinator_PauseResume(t *testing.T) {
	stream := newFakeStream()
	coord := newTestCoordinator(stream, nil)
	defer coord.Cancel(context.Background())

	ctx := context.Background()
	if err := coord.Start(ctx, 300); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := coord.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := coord.Status().State; got != session.StatePaused {
		t.Errorf("state = %q, expected paused", got)
	}
	if stream.count("pause") != 1 {
		t.Errorf("pause commands = %d", stream.count("pause"))
	}

	if err := coord.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := coord.Status().State; got != session.StateRunning {
		t.Errorf("state = %q, expected running", got)
	}
}

func TestCoordinator_SuspendAndResumeSuspended(t *testing.T) {
	stream := newFakeStream()
	reminder := &fakeReminder{}
	coord := newTestCoordinator(stream, reminder)
	defer coord.Cancel(context.Background())

	ctx := context.Background()
	if err := coord.Start(ctx, 300); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := coord.SetOverride(ctx, "heavy rain"); err != nil {
		t.Fatalf("SetOverride: %v", err)
	}

	if err := coord.Suspend(ctx, "Steam", ""); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	st := coord.Status()
	if !st.Suspended || st.State != session.StatePaused {
		t.Fatalf("status after suspend = %+v", st)
	}
	if reminder.started != 1 {
		t.Errorf("reminder started %d times", reminder.started)
	}

	// Plain Resume must not lift a suspension.
	if err := coord.Resume(ctx); !flowerrors.Is(err, flowerrors.ErrNoActiveSession) {
		t.Errorf("Resume on suspended = %v", err)
	}

	resets := stream.count("reset")
	if err := coord.ResumeSuspended(ctx); err != nil {
		t.Fatalf("ResumeSuspended: %v", err)
	}
	st = coord.Status()
	if st.Suspended || st.State != session.StateRunning {
		t.Errorf("status after resume = %+v", st)
	}
	if reminder.stopped == 0 {
		t.Error("reminder not stopped")
	}
	if stream.count("reset") != resets+1 {
		t.Error("resume from suspension must force a context reset")
	}
	if st.Override != "" {
		t.Error("steering override must be cleared on resume")
	}
	if got := coord.Status().ElapsedSeconds; got != 0 {
		t.Errorf("elapsed = %d, curve must restart from zero", got)
	}
}

func TestCoordinator_ResumeSuspendedWithoutSuspension(t *testing.T) {
	stream := newFakeStream()
	coord := newTestCoordinator(stream, nil)
	defer coord.Cancel(context.Background())

	ctx := context.Background()
	if err := coord.Start(ctx, 300); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := coord.ResumeSuspended(ctx); !flowerrors.Is(err, flowerrors.ErrNotSuspended) {
		t.Errorf("err = %v, expected ErrNotSuspended", err)
	}
}

func TestCoordinator_RoutedPromptReplacesAmbientPair(t *testing.T) {
	stream := newFakeStream()
	coord := newTestCoordinator(stream, nil)
	defer coord.Cancel(context.Background())

	ctx := context.Background()
	if err := coord.Start(ctx, 300); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := coord.SetRouted(ctx, "coding", "driving synthwave"); err != nil {
		t.Fatalf("SetRouted: %v", err)
	}
	p := stream.lastPrompts()
	if len(p) != 1 || p[0].Text != "driving synthwave" || p[0].Weight != 1 {
		t.Fatalf("routed prompts = %+v", p)
	}

	// Clearing routing restores the ambient pair.
	if err := coord.SetRouted(ctx, "", ""); err != nil {
		t.Fatalf("SetRouted clear: %v", err)
	}
	p = stream.lastPrompts()
	if len(p) != 2 {
		t.Errorf("ambient prompts after clear = %+v", p)
	}
}

func TestCoordinator_OverrideAppendedLast(t *testing.T) {
	stream := newFakeStream()
	coord := newTestCoordinator(stream, nil)
	defer coord.Cancel(context.Background())

	ctx := context.Background()
	if err := coord.Start(ctx, 300); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := coord.SetOverride(ctx, "rain on glass"); err != nil {
		t.Fatalf("SetOverride: %v", err)
	}

	p := stream.lastPrompts()
	if len(p) != 3 {
		t.Fatalf("prompt list length = %d, expected 3", len(p))
	}
	last := p[len(p)-1]
	if last.Text != "rain on glass" || last.Weight != prompt.OverrideWeight {
		t.Errorf("override prompt = %+v", last)
	}
}

func TestCoordinator_BPMChangeForcesReset(t *testing.T) {
	stream := newFakeStream()
	coord := newTestCoordinator(stream, nil)
	defer coord.Cancel(context.Background())

	if err := coord.Start(context.Background(), 300); err != nil {
		t.Fatalf("Start: %v", err)
	}

	before := stream.count("reset")
	coord.handleParams(session.ParametersFor(0.5), false)
	if stream.count("reset") != before {
		t.Error("reset sent without a flagged BPM change")
	}
	coord.handleParams(session.ParametersFor(0.8), true)
	if stream.count("reset") != before+1 {
		t.Error("flagged BPM change must force a context reset")
	}
}

func TestCoordinator_StreamErrorHaltsSession(t *testing.T) {
	stream := newFakeStream()
	coord := newTestCoordinator(stream, nil)

	if err := coord.Start(context.Background(), 300); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stream.listener(ports.ConnectionState{Status: ports.StatusError, Message: "backend closed"})

	if got := coord.Status().State; got != session.StateIdle {
		t.Errorf("state = %q after stream error, expected idle", got)
	}
	// No automatic reconnect.
	if stream.count("connect") != 1 {
		t.Errorf("connect attempts = %d, expected 1", stream.count("connect"))
	}
}

func TestCoordinator_SessionSpanExported(t *testing.T) {
	var buf bytes.Buffer
	tracer, err := tracing.New(context.Background(), tracing.Config{
		Enabled:      true,
		ExporterType: tracing.ExporterStdout,
		ServiceName:  "session-test",
		SampleRate:   1.0,
		Output:       &buf,
	})
	if err != nil {
		t.Fatalf("tracing.New: %v", err)
	}

	stream := newFakeStream()
	coord := NewCoordinator(Options{APIKey: "test-key"}, stream, nil, tracer, nil)

	ctx := context.Background()
	if err := coord.Start(ctx, 300); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := coord.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// The span is open for the session lifetime and exported once it ends.
	if err := tracer.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "session.run") {
		t.Error("no session.run span exported")
	}
}

func TestCoordinator_FreePlayBPMClampAndReset(t *testing.T) {
	stream := newFakeStream()
	coord := newTestCoordinator(stream, nil)
	defer coord.Cancel(context.Background())

	ctx := context.Background()
	if err := coord.StartFreePlay(ctx, 120); err != nil {
		t.Fatalf("StartFreePlay: %v", err)
	}

	p := stream.lastPrompts()
	if len(p) != 1 {
		t.Fatalf("free-play prompts = %+v, expected single static prompt", p)
	}

	resets := stream.count("reset")
	if err := coord.SetFreePlayBPM(ctx, 125); err != nil {
		t.Fatalf("SetFreePlayBPM: %v", err)
	}
	if stream.count("reset") != resets {
		t.Error("small tempo change must not reset context")
	}

	if err := coord.SetFreePlayBPM(ctx, 500); err != nil {
		t.Fatalf("SetFreePlayBPM: %v", err)
	}
	if stream.count("reset") != resets+1 {
		t.Error("large tempo change must reset context")
	}
	cfg := stream.configs[len(stream.configs)-1]
	if cfg.BPM == nil || *cfg.BPM != session.MaxFreePlayBPM {
		t.Errorf("BPM = %v, expected clamp to %d", cfg.BPM, session.MaxFreePlayBPM)
	}
}
