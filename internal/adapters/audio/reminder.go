package audio

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/flowtonehq/flowtone/internal/application/ports"
)

// Reminder ping parameters. The ping is a short decaying sine, quiet enough
// to nudge without startling.
const (
	pingInterval  = 20 * time.Second
	pingFrequency = 660.0 // Hz
	pingDuration  = 400 * time.Millisecond
	pingAmplitude = 0.25
	pingDecayRate = 8.0
)

// Reminder emits a periodic audible ping through the audio sink while a
// session is suspended. It implements ports.ReminderPort.
type Reminder struct {
	sink ports.AudioSinkPort

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReminder creates a stopped reminder over the given sink.
func NewReminder(sink ports.AudioSinkPort) *Reminder {
	return &Reminder{sink: sink}
}

// Start begins pinging: once immediately, then on the fixed interval, until
// the context is cancelled or Stop is called.
func (r *Reminder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(runCtx)
	return nil
}

// Stop silences the reminder. Safe to call when not started.
func (r *Reminder) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

func (r *Reminder) run(ctx context.Context) {
	defer r.wg.Done()

	r.ping()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ping()
		}
	}
}

func (r *Reminder) ping() {
	if err := r.sink.Resume(); err != nil {
		return
	}
	_ = r.sink.EnqueuePCM(SynthesizePing())
}

// SynthesizePing renders the reminder tone as interleaved little-endian
// 16-bit PCM at the stream's native format: a sine with an exponential
// amplitude decay.
func SynthesizePing() []byte {
	frames := int(pingDuration.Seconds() * DefaultSampleRate)
	out := make([]byte, frames*DefaultChannels*2)

	for i := 0; i < frames; i++ {
		t := float64(i) / DefaultSampleRate
		envelope := pingAmplitude * math.Exp(-pingDecayRate*t)
		v := int16(envelope * math.Sin(2*math.Pi*pingFrequency*t) * math.MaxInt16)

		for ch := 0; ch < DefaultChannels; ch++ {
			idx := (i*DefaultChannels + ch) * 2
			binary.LittleEndian.PutUint16(out[idx:], uint16(v))
		}
	}
	return out
}
