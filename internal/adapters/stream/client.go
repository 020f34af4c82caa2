package stream

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/flowtonehq/flowtone/internal/application/ports"
	flowerrors "github.com/flowtonehq/flowtone/internal/domain/errors"
	"github.com/flowtonehq/flowtone/internal/domain/prompt"
	"github.com/flowtonehq/flowtone/internal/infrastructure/logging"
	"github.com/flowtonehq/flowtone/internal/infrastructure/tracing"
)

// conn is the subset of *websocket.Conn the client uses, extracted so tests
// can substitute a scripted connection.
type conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens a connection to the backend. The default wraps
// websocket.DefaultDialer.
type DialFunc func(ctx context.Context, urlStr string, header http.Header) (conn, error)

func defaultDial(ctx context.Context, urlStr string, header http.Header) (conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, urlStr, header)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Option configures the Client.
type Option func(*Client)

// WithDialer overrides the connection dialer.
func WithDialer(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

// WithLogger overrides the default logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTracer overrides the default tracer.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

// Client is the WebSocket streaming client. It implements ports.StreamPort.
//
// Sends are fire-and-forget: a failed write is logged and reported to the
// caller but never changes the connection state; only the receive loop
// detects connection loss. There is no automatic reconnect.
type Client struct {
	endpoint string
	model    string
	apiKey   string

	sink   ports.AudioSinkPort
	dial   DialFunc
	logger *logging.Logger
	tracer *tracing.Tracer

	mu       sync.Mutex
	state    ports.ConnectionState
	listener func(ports.ConnectionState)
	conn     conn
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	writeMu sync.Mutex
}

// NewClient creates a disconnected client for the given backend endpoint.
func NewClient(endpoint, model, apiKey string, sink ports.AudioSinkPort, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		sink:     sink,
		dial:     defaultDial,
		logger:   logging.Default(),
		tracer:   tracing.Default(),
		state:    ports.ConnectionState{Status: ports.StatusDisconnected},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() ports.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers the state transition listener.
func (c *Client) OnStateChange(fn func(ports.ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = fn
}

func (c *Client) setState(state ports.ConnectionState) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		listener(state)
	}
}

// Connect tears down any existing connection, dials the backend, performs
// the setup handshake, and starts the receive loop. A handshake failure
// leaves the client in the error state with no retry.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.Disconnect(); err != nil {
		return err
	}

	c.setState(ports.ConnectionState{Status: ports.StatusConnecting})

	// The stream span stays open for the connection's whole lifetime; the
	// receive loop closes it.
	spanCtx, span := c.tracer.StartStreamSpan(ctx, c.endpoint, c.model)

	endpoint, err := c.dialURL()
	if err != nil {
		c.setState(ports.ConnectionState{Status: ports.StatusError, Message: err.Error()})
		connErr := flowerrors.NewError(flowerrors.CodeConnection, "invalid backend endpoint", err)
		span.EndWithError(connErr)
		return connErr
	}

	wsConn, err := c.dial(spanCtx, endpoint, nil)
	if err != nil {
		c.setState(ports.ConnectionState{Status: ports.StatusError, Message: err.Error()})
		connErr := flowerrors.NewError(flowerrors.CodeConnection, "backend dial failed", err)
		span.EndWithError(connErr)
		return connErr
	}

	setup, err := encodeSetup(c.model)
	if err != nil {
		wsConn.Close()
		c.setState(ports.ConnectionState{Status: ports.StatusError, Message: err.Error()})
		connErr := flowerrors.NewError(flowerrors.CodeConnection, "setup encoding failed", err)
		span.EndWithError(connErr)
		return connErr
	}
	if err := wsConn.WriteMessage(websocket.TextMessage, setup); err != nil {
		wsConn.Close()
		c.setState(ports.ConnectionState{Status: ports.StatusError, Message: err.Error()})
		connErr := flowerrors.NewError(flowerrors.CodeConnection, "setup send failed", err)
		span.EndWithError(connErr)
		return connErr
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(spanCtx))
	loopCtx = logging.WithConnectionID(loopCtx, uuid.NewString())

	c.mu.Lock()
	c.conn = wsConn
	c.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	c.setState(ports.ConnectionState{Status: ports.StatusConnected})
	logging.LogStreamConnected(loopCtx, c.logger, c.model)

	if c.sink != nil {
		if err := c.sink.Start(); err != nil {
			c.logger.WarnContext(loopCtx, "audio sink start failed", "error", err.Error())
		}
	}

	go c.receiveLoop(loopCtx, wsConn, span)
	return nil
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("key", c.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Disconnect cancels the receive loop, closes the connection, and stops the
// audio sink. Callable from any state, including mid-connect.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	wsConn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wsConn != nil {
		wsConn.Close()
	}
	c.wg.Wait()

	if c.sink != nil {
		if err := c.sink.Stop(); err != nil {
			c.logger.Warn("audio sink stop failed", "error", err.Error())
		}
	}

	c.setState(ports.ConnectionState{Status: ports.StatusDisconnected})
	return nil
}

// receiveLoop decodes inbound messages until the connection drops, the
// context is cancelled, or the backend reports an error. It never
// re-enters the connecting state.
func (c *Client) receiveLoop(ctx context.Context, wsConn conn, span *tracing.StreamSpan) {
	defer c.wg.Done()

	var (
		chunks    int
		byteCount int64
		loopErr   error
	)
	defer func() {
		span.SetChunkStats(chunks, byteCount)
		if loopErr != nil {
			span.EndWithError(loopErr)
		} else {
			span.End()
		}
	}()

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				// Deliberate disconnect; state is set by Disconnect.
				return
			default:
			}
			logging.LogStreamError(ctx, c.logger, err)
			c.setState(ports.ConnectionState{Status: ports.StatusError, Message: err.Error()})
			loopErr = err
			return
		}

		msg, err := decodeServerMessage(data)
		if err != nil {
			c.logger.WarnContext(ctx, "dropping undecodable message", "error", err.Error())
			continue
		}

		switch {
		case msg.Error != nil:
			backendErr := flowerrors.NewError(flowerrors.CodeBackend, msg.Error.Message, nil)
			logging.LogStreamError(ctx, c.logger, backendErr)
			c.setState(ports.ConnectionState{Status: ports.StatusError, Message: msg.Error.Message})
			loopErr = backendErr
			return

		case msg.ServerContent != nil:
			for _, chunk := range msg.ServerContent.AudioChunks {
				pcm, err := decodeAudioChunk(chunk.Data)
				if err != nil {
					c.logger.WarnContext(ctx, "dropping audio chunk", "error", err.Error())
					continue
				}
				chunks++
				byteCount += int64(len(pcm))
				if c.sink != nil {
					if err := c.sink.EnqueuePCM(pcm); err != nil {
						c.logger.WarnContext(ctx, "audio enqueue failed", "error", err.Error())
					}
				}
			}

		case msg.FilteredPrompt != nil:
			c.logger.WarnContext(ctx, "prompt filtered by backend",
				"prompt", msg.FilteredPrompt.Text,
				"reason", msg.FilteredPrompt.Reason,
			)

		case msg.SetupComplete != nil:
			c.logger.DebugContext(ctx, "backend setup complete")
		}
	}
}

// send transmits one command frame. Failures are logged and returned, but
// the connection state is never changed by a failed write.
func (c *Client) send(ctx context.Context, command string, data []byte) error {
	c.mu.Lock()
	wsConn := c.conn
	c.mu.Unlock()

	if wsConn == nil {
		return flowerrors.ErrNotConnected
	}

	c.writeMu.Lock()
	err := wsConn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		logging.LogSendFailure(ctx, c.logger, command, err)
		return flowerrors.NewError(flowerrors.CodeSend, "command send failed", err)
	}
	return nil
}

// SetPrompts replaces the backend's weighted prompt list, preserving order.
func (c *Client) SetPrompts(ctx context.Context, prompts []prompt.WeightedPrompt) error {
	data, err := encodePrompts(prompts)
	if err != nil {
		return flowerrors.NewError(flowerrors.CodeValidation, "invalid prompt list", err)
	}
	return c.send(ctx, "prompt-set", data)
}

// SetMusicConfig updates generation parameters.
func (c *Client) SetMusicConfig(ctx context.Context, cfg ports.MusicConfig) error {
	data, err := encodeMusicConfig(cfg)
	if err != nil {
		return flowerrors.NewError(flowerrors.CodeValidation, "invalid music config", err)
	}
	return c.send(ctx, "music-config", data)
}

func (c *Client) sendControl(ctx context.Context, control string) error {
	data, err := encodePlaybackControl(control)
	if err != nil {
		return flowerrors.NewError(flowerrors.CodeValidation, "invalid playback control", err)
	}
	return c.send(ctx, "playback-"+control, data)
}

// Play starts or resumes generation.
func (c *Client) Play(ctx context.Context) error {
	return c.sendControl(ctx, controlPlay)
}

// Pause halts generation without discarding state.
func (c *Client) Pause(ctx context.Context) error {
	return c.sendControl(ctx, controlPause)
}

// Stop halts generation and discards playback position.
func (c *Client) Stop(ctx context.Context) error {
	return c.sendControl(ctx, controlStop)
}

// ResetContext discards the backend's generation history.
func (c *Client) ResetContext(ctx context.Context) error {
	return c.sendControl(ctx, controlResetContext)
}
