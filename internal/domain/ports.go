package domain

import "context"

// CaptureDevice produces raw interleaved PCM from a microphone array.
// Implementations can be malgo-backed, portaudio-backed, or a fake for
// tests.
type CaptureDevice interface {
	// Start begins delivering interleaved int16 samples to onSamples. The
	// slice passed to onSamples is only valid for the duration of the call.
	Start(ctx context.Context, onSamples func(interleaved []int16)) error
	Stop() error
	// ChannelCount reports how many interleaved channels the device exposes.
	ChannelCount() int
	// NativeSampleRate reports the rate the device was actually opened at,
	// which may differ from the requested 16 kHz.
	NativeSampleRate() int
}

// HardwareSink writes PCM samples to an audio output device at its native
// rate. Implementations can be oto-backed or a fake for tests.
type HardwareSink interface {
	// WriteSamples blocks until the given device-rate int16 samples have
	// been accepted by the underlying player.
	WriteSamples(samples []int16) (int, error)
	Close() error
}

// PlayerController pauses a co-resident media player without blocking the
// caller.
type PlayerController interface {
	// PauseIfPlaying attempts to pause the configured player and reports
	// whether it paused anything. It returns only once that attempt is
	// finished, so it blocks the caller for the duration of the player
	// round trip.
	PauseIfPlaying(ctx context.Context) (wasPaused bool)
}
