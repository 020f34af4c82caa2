package ports

import (
	"context"

	"github.com/flowtonehq/flowtone/internal/domain/prompt"
)

// ConnectionStatus enumerates the streaming connection states.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// ConnectionState is the observable state of the streaming connection. The
// Message field is set only for StatusError.
type ConnectionState struct {
	Status  ConnectionStatus
	Message string
}

// MusicConfig carries generation parameters for the backend. Nil pointer
// fields are omitted from the wire message.
type MusicConfig struct {
	BPM         *int
	Density     *float64
	Brightness  *float64
	Temperature float64
}

// StreamPort is the command surface of the streaming generation client.
// Command sends are fire-and-forget: a send failure is logged and swallowed,
// and only the receive loop detects connection loss.
type StreamPort interface {
	// Connect tears down any existing connection, performs the backend
	// handshake, and starts the receive loop. On failure the connection
	// enters the error state; there is no automatic retry.
	Connect(ctx context.Context) error

	// Disconnect cancels the receive loop, closes the connection, and stops
	// the audio sink. Callable from any state.
	Disconnect() error

	// State returns the current connection state.
	State() ConnectionState

	// OnStateChange registers a listener invoked on every connection state
	// transition. Must be called before Connect.
	OnStateChange(fn func(ConnectionState))

	// SetPrompts replaces the backend's weighted prompt list. Order is
	// preserved verbatim.
	SetPrompts(ctx context.Context, prompts []prompt.WeightedPrompt) error

	// SetMusicConfig updates generation parameters.
	SetMusicConfig(ctx context.Context, cfg MusicConfig) error

	// Play starts or resumes generation.
	Play(ctx context.Context) error

	// Pause halts generation without discarding state.
	Pause(ctx context.Context) error

	// Stop halts generation and discards playback position.
	Stop(ctx context.Context) error

	// ResetContext instructs the backend to discard its generation history.
	// Required after a large tempo change, because the backend's
	// autoregressive state is inconsistent across tempo jumps.
	ResetContext(ctx context.Context) error
}
