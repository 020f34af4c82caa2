package stream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flowtonehq/flowtone/internal/application/ports"
	flowerrors "github.com/flowtonehq/flowtone/internal/domain/errors"
	"github.com/flowtonehq/flowtone/internal/domain/prompt"
	"github.com/flowtonehq/flowtone/internal/infrastructure/tracing"
)

// scriptedConn feeds canned inbound messages and records outbound frames.
type scriptedConn struct {
	mu       sync.Mutex
	inbound  chan []byte
	written  [][]byte
	writeErr error
	closed   bool
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{inbound: make(chan []byte, 16)}
}

func (s *scriptedConn) ReadMessage() (int, []byte, error) {
	data, ok := <-s.inbound
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return 1, data, nil
}

func (s *scriptedConn) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = append(s.written, append([]byte(nil), data...))
	return nil
}

func (s *scriptedConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.inbound)
	}
	return nil
}

func (s *scriptedConn) frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.written))
	copy(out, s.written)
	return out
}

type fakeSink struct {
	mu      sync.Mutex
	chunks  [][]byte
	started int
	stopped int
}

func (f *fakeSink) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return nil
}

func (f *fakeSink) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeSink) Pause() error  { return nil }
func (f *fakeSink) Resume() error { return nil }

func (f *fakeSink) EnqueuePCM(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, append([]byte(nil), data...))
	return nil
}

func (f *fakeSink) FadeOut(time.Duration) {}
func (f *fakeSink) CancelFade()           {}

func (f *fakeSink) chunkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks)
}

func newTestClient(t *testing.T, c *scriptedConn, sink *fakeSink) *Client {
	t.Helper()
	dial := func(_ context.Context, _ string, _ http.Header) (conn, error) {
		return c, nil
	}
	return NewClient("wss://backend.example/stream", "music-gen-1", "key", sink, WithDialer(dial))
}

func waitForStatus(t *testing.T, client *Client, want ports.ConnectionStatus) ports.ConnectionState {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		st := client.State()
		if st.Status == want {
			return st
		}
		select {
		case <-deadline:
			t.Fatalf("status = %q, expected %q", st.Status, want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestClient_ConnectSendsSetup(t *testing.T) {
	c := newScriptedConn()
	client := newTestClient(t, c, &fakeSink{})
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := client.State().Status; got != ports.StatusConnected {
		t.Fatalf("status = %q, expected connected", got)
	}

	frames := c.frames()
	if len(frames) != 1 {
		t.Fatalf("frames = %d, expected setup only", len(frames))
	}
	var setup setupMessage
	if err := json.Unmarshal(frames[0], &setup); err != nil {
		t.Fatalf("setup frame: %v", err)
	}
	if setup.Setup.Model != "music-gen-1" {
		t.Errorf("model = %q", setup.Setup.Model)
	}
}

func TestClient_DialFailureEntersErrorState(t *testing.T) {
	dial := func(_ context.Context, _ string, _ http.Header) (conn, error) {
		return nil, errors.New("connection refused")
	}
	client := NewClient("wss://backend.example/stream", "m", "k", nil, WithDialer(dial))

	err := client.Connect(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if flowerrors.CodeOf(err) != flowerrors.CodeConnection {
		t.Errorf("code = %q", flowerrors.CodeOf(err))
	}
	st := client.State()
	if st.Status != ports.StatusError || st.Message == "" {
		t.Errorf("state = %+v, expected error with message", st)
	}
}

func TestClient_AudioChunksReachSinkInOrder(t *testing.T) {
	c := newScriptedConn()
	sink := &fakeSink{}
	client := newTestClient(t, c, sink)
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	first := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})
	second := base64.StdEncoding.EncodeToString([]byte{5, 6, 7, 8})
	c.inbound <- []byte(fmt.Sprintf(
		`{"serverContent":{"audioChunks":[{"data":%q},{"data":%q}]}}`, first, second))

	deadline := time.After(2 * time.Second)
	for sink.chunkCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("sink chunks = %d, expected 2", sink.chunkCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.chunks[0][0] != 1 || sink.chunks[1][0] != 5 {
		t.Errorf("chunks out of order: %v", sink.chunks)
	}
}

func TestClient_BackendErrorEntersErrorState(t *testing.T) {
	c := newScriptedConn()
	client := newTestClient(t, c, &fakeSink{})
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	c.inbound <- []byte(`{"error":{"message":"quota exhausted"}}`)

	st := waitForStatus(t, client, ports.StatusError)
	if st.Message != "quota exhausted" {
		t.Errorf("message = %q", st.Message)
	}
}

func TestClient_ConnectionDropEntersErrorState(t *testing.T) {
	c := newScriptedConn()
	client := newTestClient(t, c, &fakeSink{})

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Peer closes the socket outside of a deliberate disconnect.
	c.Close()

	waitForStatus(t, client, ports.StatusError)
}

func TestClient_DisconnectStopsSink(t *testing.T) {
	c := newScriptedConn()
	sink := &fakeSink{}
	client := newTestClient(t, c, sink)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := client.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	if got := client.State().Status; got != ports.StatusDisconnected {
		t.Errorf("status = %q, expected disconnected", got)
	}
	if sink.stopped == 0 {
		t.Error("sink not stopped on disconnect")
	}
}

func TestClient_ConnectionSpanExported(t *testing.T) {
	var buf bytes.Buffer
	tracer, err := tracing.New(context.Background(), tracing.Config{
		Enabled:      true,
		ExporterType: tracing.ExporterStdout,
		ServiceName:  "stream-test",
		SampleRate:   1.0,
		Output:       &buf,
	})
	if err != nil {
		t.Fatalf("tracing.New: %v", err)
	}

	c := newScriptedConn()
	dial := func(_ context.Context, _ string, _ http.Header) (conn, error) {
		return c, nil
	}
	client := NewClient("wss://backend.example/stream", "music-gen-1", "key", nil,
		WithDialer(dial), WithTracer(tracer))

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	// The span is open while the connection lives; a deliberate disconnect
	// ends the receive loop and closes it.
	if err := client.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "stream.connect") {
		t.Error("no stream.connect span exported")
	}
}

func TestClient_SendFailureKeepsState(t *testing.T) {
	c := newScriptedConn()
	client := newTestClient(t, c, &fakeSink{})
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	c.mu.Lock()
	c.writeErr = errors.New("broken pipe")
	c.mu.Unlock()

	err := client.Play(context.Background())
	if flowerrors.CodeOf(err) != flowerrors.CodeSend {
		t.Errorf("code = %q, expected send", flowerrors.CodeOf(err))
	}
	if got := client.State().Status; got != ports.StatusConnected {
		t.Errorf("status = %q, send failure must not change state", got)
	}
}

func TestClient_SendWhileDisconnected(t *testing.T) {
	client := NewClient("wss://backend.example/stream", "m", "k", nil)

	err := client.Play(context.Background())
	if !flowerrors.Is(err, flowerrors.ErrNotConnected) {
		t.Errorf("err = %v, expected ErrNotConnected", err)
	}
}

func TestClient_PromptOrderPreservedOnWire(t *testing.T) {
	c := newScriptedConn()
	client := newTestClient(t, c, &fakeSink{})
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	prompts := []prompt.WeightedPrompt{
		{Text: "calm strings", Weight: 0.7},
		{Text: "driving percussion", Weight: 0.3},
		{Text: "rain on glass", Weight: 1.0},
	}
	if err := client.SetPrompts(context.Background(), prompts); err != nil {
		t.Fatalf("SetPrompts: %v", err)
	}

	frames := c.frames()
	var msg clientContentMessage
	if err := json.Unmarshal(frames[len(frames)-1], &msg); err != nil {
		t.Fatalf("prompt frame: %v", err)
	}
	got := msg.ClientContent.WeightedPrompts
	if len(got) != 3 {
		t.Fatalf("wire prompts = %d", len(got))
	}
	for i := range prompts {
		if got[i].Text != prompts[i].Text || got[i].Weight != prompts[i].Weight {
			t.Errorf("prompt %d = %+v, expected %+v", i, got[i], prompts[i])
		}
	}
}

func TestClient_MusicConfigOmitsUnsetFields(t *testing.T) {
	bpm := 120
	data, err := encodeMusicConfig(ports.MusicConfig{BPM: &bpm, Temperature: 1.1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cfg := raw["musicGenerationConfig"]
	if _, ok := cfg["density"]; ok {
		t.Error("unset density must be omitted")
	}
	if _, ok := cfg["brightness"]; ok {
		t.Error("unset brightness must be omitted")
	}
	if cfg["bpm"] != float64(120) {
		t.Errorf("bpm = %v", cfg["bpm"])
	}
}
