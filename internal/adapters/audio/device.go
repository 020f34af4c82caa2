package audio

import (
	"encoding/binary"
	"io"
	"math"
	"time"
)

// WriterDevice writes interleaved float32 samples as little-endian 16-bit
// PCM to an io.Writer, paced to real time so downstream pipes see a steady
// stream. It is the default output: the raw stream can be piped into any
// system player that accepts s16le input.
type WriterDevice struct {
	w          io.Writer
	sampleRate int
	channels   int
	started    time.Time
	written    int64
}

// NewWriterDevice creates a paced PCM writer at the given format.
func NewWriterDevice(w io.Writer, sampleRate, channels int) *WriterDevice {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	return &WriterDevice{
		w:          w,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Write converts and writes the samples, then sleeps until the stream clock
// catches up. The blocking paces the sink's queue drain.
func (d *WriterDevice) Write(samples []float32) error {
	if d.started.IsZero() {
		d.started = time.Now()
	}

	buf := make([]byte, len(samples)*2)
	for i, sample := range samples {
		v := sample
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(math.Round(float64(v)*32767))))
	}
	if _, err := d.w.Write(buf); err != nil {
		return err
	}

	d.written += int64(len(samples) / d.channels)
	deadline := d.started.Add(time.Duration(d.written) * time.Second / time.Duration(d.sampleRate))
	if wait := time.Until(deadline); wait > 0 {
		time.Sleep(wait)
	}
	return nil
}

// Close flushes nothing; the underlying writer is owned by the caller.
func (d *WriterDevice) Close() error {
	return nil
}

// DiscardDevice drops samples while still pacing to real time. Used when no
// output is configured, keeping the playback clock honest for fades and
// session timing.
type DiscardDevice struct {
	inner *WriterDevice
}

// NewDiscardDevice creates a paced null output.
func NewDiscardDevice(sampleRate, channels int) *DiscardDevice {
	return &DiscardDevice{inner: NewWriterDevice(io.Discard, sampleRate, channels)}
}

func (d *DiscardDevice) Write(samples []float32) error { return d.inner.Write(samples) }
func (d *DiscardDevice) Close() error                  { return nil }
