// Package domain holds the shared data types and narrow ports used across
// the gateway's components. Types here carry no behavior beyond small
// helpers; components own their own processing.
package domain

import "time"

// SampleRate is the fixed pipeline rate in Hz. Every AudioFrame, MelFrame,
// and EmbeddingFrame downstream of capture is defined relative to it.
const SampleRate = 16000

// FrameSamples is the number of 16 kHz mono samples in one AudioFrame (80ms).
const FrameSamples = 1280

// MelBins is the number of mel-filterbank bins per MelFrame.
const MelBins = 32

// MelFramesPerAudioFrame is how many MelFrames the stage-1 model emits per
// 80ms AudioFrame.
const MelFramesPerAudioFrame = 5

// EmbeddingWindowFrames is the rolling mel-frame window consumed by the
// stage-2 model on each advance.
const EmbeddingWindowFrames = 76

// EmbeddingHopFrames is how many mel frames are retired per embedding.
const EmbeddingHopFrames = 8

// EmbeddingDim is the width of one embedding vector.
const EmbeddingDim = 96

// ClassifierWindow is the number of most-recent embeddings the stage-3
// model consumes per classification.
const ClassifierWindow = 16

// AudioFrame is exactly FrameSamples signed 16-bit mono samples captured in
// monotonic order. It never leaves C1 partially filled.
type AudioFrame struct {
	Samples  [FrameSamples]int16
	Seq      uint64
	Captured time.Time
}

// MelFrame is one ~10ms mel-filterbank feature vector.
type MelFrame [MelBins]float32

// EmbeddingFrame is a single 96-dimensional embedding derived from a
// EmbeddingWindowFrames-wide slice of mel frames.
type EmbeddingFrame [EmbeddingDim]float32

// DetectionEvent is emitted by the debouncer when a classification clears
// threshold and the debounce interval has elapsed.
type DetectionEvent struct {
	ModelName  string
	Confidence float64
	Timestamp  time.Time
}

// StreamId identifies a logical playback utterance. Zero means "no current
// stream". A newly observed id supersedes all prior ones.
type StreamId uint64

// NoStream is the reserved "idle" stream id.
const NoStream StreamId = 0

// PlaybackChunk is one unit of producer-supplied PCM tagged with the stream
// it belongs to. Payload is 16-bit mono PCM at hardware rate by the time it
// reaches the sink's ring; producer input is 16 kHz mono s16le.
type PlaybackChunk struct {
	StreamID StreamId
	Payload  []byte
}

// CompletionSignal is a single-shot notification channel handed back by the
// sink's EndStream operation. It is closed (never sent more than once) when
// the requested stream has fully drained.
type CompletionSignal chan struct{}

// NewCompletionSignal allocates an unbuffered completion channel.
func NewCompletionSignal() CompletionSignal {
	return make(CompletionSignal)
}
