// Package stream implements the streaming client for the music generation
// backend: a persistent WebSocket carrying JSON control messages outbound
// and base64-encoded audio chunks inbound.
package stream

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/flowtonehq/flowtone/internal/application/ports"
	"github.com/flowtonehq/flowtone/internal/domain/prompt"
)

// Playback control values understood by the backend.
const (
	controlPlay         = "PLAY"
	controlPause        = "PAUSE"
	controlStop         = "STOP"
	controlResetContext = "RESET_CONTEXT"
)

// setupMessage opens the stream and names the generation model.
type setupMessage struct {
	Setup struct {
		Model string `json:"model"`
	} `json:"setup"`
}

// weightedPromptWire is the wire form of one weighted prompt.
type weightedPromptWire struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// clientContentMessage replaces the backend's weighted prompt list.
type clientContentMessage struct {
	ClientContent struct {
		WeightedPrompts []weightedPromptWire `json:"weightedPrompts"`
	} `json:"clientContent"`
}

// musicConfigMessage updates generation parameters. Optional fields are
// omitted when unset so the backend keeps its current values.
type musicConfigMessage struct {
	MusicGenerationConfig struct {
		BPM         *int     `json:"bpm,omitempty"`
		Density     *float64 `json:"density,omitempty"`
		Brightness  *float64 `json:"brightness,omitempty"`
		Temperature float64  `json:"temperature,omitempty"`
	} `json:"musicGenerationConfig"`
}

// playbackControlMessage carries a playback transport command.
type playbackControlMessage struct {
	PlaybackControl string `json:"playbackControl"`
}

// serverMessage is the union of everything the backend sends.
type serverMessage struct {
	SetupComplete *struct{} `json:"setupComplete,omitempty"`

	ServerContent *struct {
		AudioChunks []struct {
			Data string `json:"data"`
		} `json:"audioChunks"`
	} `json:"serverContent,omitempty"`

	FilteredPrompt *struct {
		Text   string `json:"text"`
		Reason string `json:"filteredReason"`
	} `json:"filteredPrompt,omitempty"`

	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func encodeSetup(model string) ([]byte, error) {
	var msg setupMessage
	msg.Setup.Model = model
	return json.Marshal(msg)
}

func encodePrompts(prompts []prompt.WeightedPrompt) ([]byte, error) {
	var msg clientContentMessage
	msg.ClientContent.WeightedPrompts = make([]weightedPromptWire, 0, len(prompts))
	for _, p := range prompts {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("prompt %q: %w", p.Text, err)
		}
		msg.ClientContent.WeightedPrompts = append(msg.ClientContent.WeightedPrompts,
			weightedPromptWire{Text: p.Text, Weight: p.Weight})
	}
	return json.Marshal(msg)
}

func encodeMusicConfig(cfg ports.MusicConfig) ([]byte, error) {
	var msg musicConfigMessage
	msg.MusicGenerationConfig.BPM = cfg.BPM
	msg.MusicGenerationConfig.Density = cfg.Density
	msg.MusicGenerationConfig.Brightness = cfg.Brightness
	msg.MusicGenerationConfig.Temperature = cfg.Temperature
	return json.Marshal(msg)
}

func encodePlaybackControl(control string) ([]byte, error) {
	return json.Marshal(playbackControlMessage{PlaybackControl: control})
}

func decodeServerMessage(data []byte) (*serverMessage, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed server message: %w", err)
	}
	return &msg, nil
}

// decodeAudioChunk turns a base64 payload into raw PCM bytes.
func decodeAudioChunk(data string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("malformed audio chunk: %w", err)
	}
	return pcm, nil
}
