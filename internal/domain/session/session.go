// Package session defines the domain model for focus-music sessions:
// lifecycle state, the time-to-intensity curve, and the musical parameters
// derived from the current intensity.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle state of a session.
type State string

const (
	StateIdle      State = "idle"      // No session running
	StateRunning   State = "running"   // Session ticking
	StatePaused    State = "paused"    // Session paused, progress retained
	StateCompleted State = "completed" // Session finished (terminal)
)

// Mode selects how musical parameters are produced.
type Mode string

const (
	// ModeWave runs a timed session whose intensity follows the focus curve.
	ModeWave Mode = "wave"

	// ModeFreePlay runs an untimed session with a static prompt and a
	// user-controlled tempo.
	ModeFreePlay Mode = "freeplay"
)

// Duration bounds for wave sessions, in seconds.
const (
	MinDurationSeconds = 60
	MaxDurationSeconds = 3600
)

// Tempo bounds in beats per minute. Wave sessions stay within the wave
// ceiling; free-play allows the extended range.
const (
	MinBPM         = 60
	MaxWaveBPM     = 150
	MaxFreePlayBPM = 200
)

// BPMChangeThreshold is the tempo delta that counts as a significant change.
// Crossing it forces a generation-context reset on the backend, because its
// autoregressive state is inconsistent across large tempo jumps.
const BPMChangeThreshold = 10

// peakProgress is the fraction of the session spent ramping to peak
// intensity; the remainder descends back to zero.
const peakProgress = 0.75

// Session holds the mutable state of one focus session. It is owned by the
// intensity scheduler: only the scheduler's tick and explicit lifecycle
// calls mutate it.
type Session struct {
	ID              string
	Mode            Mode
	State           State
	DurationSeconds int
	ElapsedSeconds  int
	Intensity       float64
	StartedAt       time.Time
}

// New creates an idle wave session with the given duration in seconds.
func New(durationSeconds int) (*Session, error) {
	if durationSeconds < MinDurationSeconds || durationSeconds > MaxDurationSeconds {
		return nil, fmt.Errorf("duration %ds out of range [%d, %d]",
			durationSeconds, MinDurationSeconds, MaxDurationSeconds)
	}

	return &Session{
		ID:              uuid.NewString(),
		Mode:            ModeWave,
		State:           StateIdle,
		DurationSeconds: durationSeconds,
	}, nil
}

// NewFreePlay creates an idle free-play session.
func NewFreePlay() *Session {
	return &Session{
		ID:    uuid.NewString(),
		Mode:  ModeFreePlay,
		State: StateIdle,
	}
}

// Progress returns elapsed time as a fraction of the duration, in [0, 1].
// Free-play sessions have no progress.
func (s *Session) Progress() float64 {
	if s.Mode == ModeFreePlay || s.DurationSeconds <= 0 {
		return 0
	}
	return clamp01(float64(s.ElapsedSeconds) / float64(s.DurationSeconds))
}

// Advance moves the session forward by one second and recomputes intensity.
// It returns true when the session has reached its duration; the caller is
// responsible for transitioning to StateCompleted and stopping the tick.
func (s *Session) Advance() bool {
	s.ElapsedSeconds++
	s.Intensity = IntensityAt(s.Progress())
	return s.Mode == ModeWave && s.ElapsedSeconds >= s.DurationSeconds
}

// Reset zeroes elapsed time and intensity without touching the duration.
func (s *Session) Reset() {
	s.ElapsedSeconds = 0
	s.Intensity = 0
}

// Remaining returns the seconds left in a wave session, never negative.
func (s *Session) Remaining() int {
	if s.Mode == ModeFreePlay {
		return 0
	}
	r := s.DurationSeconds - s.ElapsedSeconds
	if r < 0 {
		return 0
	}
	return r
}

// IntensityAt maps session progress to musical intensity using a two-phase
// curve: a smoothstep ramp to peak over the first three quarters, then a
// decelerating descent back to zero.
func IntensityAt(progress float64) float64 {
	progress = clamp01(progress)
	if progress <= peakProgress {
		return smoothstep(progress / peakProgress)
	}
	t := clamp01((progress - peakProgress) / (1 - peakProgress))
	return 1 - easeOut(t)
}

// smoothstep is the symmetric ease-in/ease-out ramp t²(3-2t) for t in [0, 1].
func smoothstep(t float64) float64 {
	t = clamp01(t)
	return t * t * (3 - 2*t)
}

// easeOut is the decelerating curve t(2-t) for t in [0, 1].
func easeOut(t float64) float64 {
	t = clamp01(t)
	return t * (2 - t)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
