// Package audio implements the playback sink: raw interleaved little-endian
// 16-bit PCM from the stream is converted to float32 and played back
// gaplessly through a Device, with volume fades for soft transitions.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/flowtonehq/flowtone/internal/infrastructure/logging"
)

// Stream audio format.
const (
	DefaultSampleRate = 48000
	DefaultChannels   = 2
)

// Device is the playback output. Write blocks until the samples are
// accepted; this backpressure paces the queue drain.
type Device interface {
	Write(samples []float32) error
	Close() error
}

type sinkState int

const (
	sinkIdle sinkState = iota
	sinkPlaying
	sinkPaused
)

// Sink buffers decoded PCM and plays it through a Device. It implements
// ports.AudioSinkPort.
type Sink struct {
	device     Device
	sampleRate int
	channels   int
	logger     *logging.Logger

	mu     sync.Mutex
	state  sinkState
	queue  [][]float32
	notify chan struct{}
	volume float64

	fading        bool
	fadeRemaining int
	fadeTotal     int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSink creates an idle sink at the stream's native format.
func NewSink(device Device, logger *logging.Logger) *Sink {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sink{
		device:     device,
		sampleRate: DefaultSampleRate,
		channels:   DefaultChannels,
		logger:     logger,
		volume:     1.0,
		notify:     make(chan struct{}, 1),
	}
}

// Start begins draining the queue into the device.
func (s *Sink) Start() error {
	s.mu.Lock()
	if s.state != sinkIdle {
		s.mu.Unlock()
		return nil
	}
	s.state = sinkPlaying

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Stop halts playback and discards buffered audio.
func (s *Sink) Stop() error {
	s.mu.Lock()
	if s.state == sinkIdle {
		s.mu.Unlock()
		return nil
	}
	s.state = sinkIdle
	s.queue = nil
	s.fading = false
	s.volume = 1.0
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}

// Pause suspends playback, retaining buffered audio.
func (s *Sink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == sinkPlaying {
		s.state = sinkPaused
	}
	return nil
}

// Resume continues playback after a pause.
func (s *Sink) Resume() error {
	s.mu.Lock()
	if s.state == sinkPaused {
		s.state = sinkPlaying
	}
	s.mu.Unlock()
	s.wake()
	return nil
}

// EnqueuePCM converts a raw little-endian 16-bit PCM chunk and appends it
// to the playback queue.
func (s *Sink) EnqueuePCM(data []byte) error {
	samples, err := ConvertPCM(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.queue = append(s.queue, samples)
	s.mu.Unlock()
	s.wake()
	return nil
}

// FadeOut ramps the volume to zero over the given duration. Audio keeps
// draining at zero gain once the ramp completes.
func (s *Sink) FadeOut(d time.Duration) {
	total := int(d.Seconds() * float64(s.sampleRate) * float64(s.channels))
	if total <= 0 {
		total = 1
	}

	s.mu.Lock()
	s.fading = true
	s.fadeTotal = total
	s.fadeRemaining = total
	s.mu.Unlock()
}

// CancelFade aborts an in-progress fade and restores full volume. A no-op
// when no fade is active.
func (s *Sink) CancelFade() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fading {
		return
	}
	s.fading = false
	s.volume = 1.0
}

func (s *Sink) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Sink) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		buf, ok := s.next(ctx)
		if !ok {
			return
		}
		if buf == nil {
			continue
		}
		if err := s.device.Write(buf); err != nil {
			s.logger.Warn("audio device write failed", "error", err.Error())
		}
	}
}

// next blocks until a buffer is playable or the context is cancelled. It
// returns (nil, true) when woken with nothing to do.
func (s *Sink) next(ctx context.Context) ([]float32, bool) {
	s.mu.Lock()
	if s.state == sinkPlaying && len(s.queue) > 0 {
		buf := s.queue[0]
		s.queue = s.queue[1:]
		s.applyGainLocked(buf)
		s.mu.Unlock()
		return buf, true
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, false
	case <-s.notify:
		return nil, true
	}
}

// applyGainLocked scales a buffer by the current volume, advancing any
// active fade ramp sample by sample.
func (s *Sink) applyGainLocked(buf []float32) {
	if !s.fading {
		if s.volume != 1.0 {
			for i := range buf {
				buf[i] *= float32(s.volume)
			}
		}
		return
	}

	for i := range buf {
		gain := 0.0
		if s.fadeRemaining > 0 {
			gain = s.volume * float64(s.fadeRemaining) / float64(s.fadeTotal)
			s.fadeRemaining--
		}
		buf[i] *= float32(gain)
	}
	if s.fadeRemaining <= 0 {
		s.volume = 0
	}
}

// ConvertPCM decodes interleaved little-endian 16-bit PCM into float32
// samples normalized to [-1, 1].
func ConvertPCM(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, errors.New("pcm chunk has odd length")
	}

	samples := make([]float32, len(data)/2)
	for i := 0; i < len(samples); i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(v) / float32(math.MaxInt16+1)
	}
	return samples, nil
}
