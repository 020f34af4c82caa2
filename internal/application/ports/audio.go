package ports

import (
	"context"
	"time"
)

// AudioSinkPort accepts raw interleaved little-endian 16-bit PCM and plays
// it back gaplessly. Frames must be enqueued in arrival order.
type AudioSinkPort interface {
	// Start begins playback of enqueued audio.
	Start() error

	// Stop halts playback and discards any buffered audio.
	Stop() error

	// Pause suspends playback without discarding buffered audio.
	Pause() error

	// Resume continues playback after a pause.
	Resume() error

	// EnqueuePCM appends a raw PCM chunk to the playback queue.
	EnqueuePCM(data []byte) error

	// FadeOut ramps volume to zero over the given duration.
	FadeOut(d time.Duration)

	// CancelFade aborts an in-progress fade and restores full volume.
	// Calling it while no fade is active is a no-op.
	CancelFade()
}

// ReminderPort is the audible low-rate reminder side channel used while a
// session is suspended on a focus violation.
type ReminderPort interface {
	// Start begins emitting reminder pings until the context is cancelled
	// or Stop is called.
	Start(ctx context.Context) error

	// Stop silences the reminder. Safe to call when not started.
	Stop()
}
