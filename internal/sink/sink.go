// Package sink implements C8 Playback Sink: a lock-free queued playback
// engine that switches between stream ids at buffer granularity, with no
// hardware reinit and no audible click, per spec §4.7-§4.8.
package sink

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/hammamikhairi/ottocook/internal/audio"
	"github.com/hammamikhairi/ottocook/internal/domain"
	"github.com/hammamikhairi/ottocook/internal/logger"
)

const (
	cmdQueueDepth  = 20
	ringMillis     = 500 // ring capacity in device-rate milliseconds
	drainThreshold = 20  // spec §4.7: "below ~20ms" counts as drained
	pollInterval   = 5 * time.Millisecond
)

type writeChunkCmd struct {
	streamID domain.StreamId
	samples  []int16
}

type endStreamCmd struct {
	streamID domain.StreamId
	done     domain.CompletionSignal
}

type command any

// Sink owns the command channel and the audio thread described in spec
// §4.7. It is constructed and started before the first producer
// connection is accepted, per the pre-initialization requirement (P8).
type Sink struct {
	log        *logger.Logger
	deviceRate int

	cmdCh   chan command
	abortCh chan struct{}

	ring *ring
	hw   domain.HardwareSink

	resample *audio.Resampler

	// OnPlaybackActive, if set, fires from the audio thread whenever
	// playback transitions between idle and actively rendering a stream.
	// The detection pipeline pauses scoring while this is true so the
	// device's own TTS output can't retrigger wake-word detection.
	OnPlaybackActive func(active bool)

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates a Sink targeting a hardware device opened at deviceRate. If
// deviceRate differs from domain.SampleRate, incoming 16 kHz chunks are
// resampled before reaching the ring.
func New(deviceRate int, log *logger.Logger) (*Sink, error) {
	r := newRing(deviceRate * ringMillis / 1000)

	hw, err := newHardwarePlayer(deviceRate, r)
	if err != nil {
		return nil, err
	}

	s := &Sink{
		log:        log,
		deviceRate: deviceRate,
		cmdCh:      make(chan command, cmdQueueDepth),
		abortCh:    make(chan struct{}, 1),
		ring:       r,
		hw:         hw,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if deviceRate != domain.SampleRate {
		s.resample = audio.NewResampler(domain.SampleRate, deviceRate)
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	go s.run()

	return s, nil
}

// WriteChunk non-blocking-enqueues a chunk of 16 kHz mono s16le PCM for
// playback under its tagged stream id, per the C7 contract.
func (s *Sink) WriteChunk(chunk domain.PlaybackChunk) {
	samples := bytesToInt16(chunk.Payload)
	if s.resample != nil {
		samples = s.resample.Process(samples)
	}
	select {
	case s.cmdCh <- writeChunkCmd{streamID: chunk.StreamID, samples: samples}:
	default:
		s.log.Warn("sink: %v, dropping chunk for stream %d", domain.ErrQueueOverflow, chunk.StreamID)
	}
}

// EndStream requests non-blocking completion monitoring for streamID and
// returns a handle that is closed once the audio thread observes the
// stream has fully drained.
func (s *Sink) EndStream(streamID domain.StreamId) domain.CompletionSignal {
	done := domain.NewCompletionSignal()
	select {
	case s.cmdCh <- endStreamCmd{streamID: streamID, done: done}:
	default:
		s.log.Warn("sink: %v, end-stream request dropped for stream %d", domain.ErrQueueOverflow, streamID)
		close(done)
	}
	return done
}

// Abort drains pending chunks, clears the ring, and signals every
// outstanding completion receiver. Effective before the next chunk
// dequeue, per §5's cancellation guarantee.
func (s *Sink) Abort() {
	select {
	case s.abortCh <- struct{}{}:
	default:
	}
}

// Close stops the audio thread and releases the hardware device.
func (s *Sink) Close() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stop)
	<-s.done
	return s.hw.Close()
}

func (s *Sink) run() {
	defer close(s.done)

	current := domain.NoStream
	var pending []domain.CompletionSignal // waiting on `current` to drain
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	thresholdSamples := s.deviceRate * drainThreshold / 1000

	signalAll := func(sigs []domain.CompletionSignal) []domain.CompletionSignal {
		for _, sig := range sigs {
			close(sig)
		}
		return nil
	}

	setActive := func(active bool) {
		if s.OnPlaybackActive != nil {
			s.OnPlaybackActive(active)
		}
	}

	handleAbort := func() {
		// Drain every queued command, discarding chunks and immediately
		// releasing any waiter, since an aborted stream can never drain
		// normally.
		for {
			select {
			case cmd := <-s.cmdCh:
				if es, ok := cmd.(endStreamCmd); ok {
					close(es.done)
				}
			default:
				goto drained
			}
		}
	drained:
		s.ring.Clear()
		pending = signalAll(pending)
		wasActive := current != domain.NoStream
		current = domain.NoStream
		if wasActive {
			setActive(false)
		}
	}

	applyCmd := func(cmd command) {
		switch c := cmd.(type) {
		case writeChunkCmd:
			if c.streamID != current {
				wasActive := current != domain.NoStream
				kept := s.switchStream(c.streamID)
				s.ring.Clear()
				pending = signalAll(pending) // old stream can never complete now
				current = c.streamID
				s.hw.WriteSamples(c.samples)
				for _, k := range kept {
					applyKept(k, &current, &pending, s)
				}
				if !wasActive {
					setActive(true)
				}
				return
			}
			s.hw.WriteSamples(c.samples)
		case endStreamCmd:
			if c.streamID != current {
				close(c.done)
				return
			}
			pending = append(pending, c.done)
		}
	}

	for {
		select {
		case <-s.abortCh:
			handleAbort()
			continue
		default:
		}

		select {
		case <-s.stop:
			pending = signalAll(pending)
			return
		case <-s.abortCh:
			handleAbort()
		case cmd := <-s.cmdCh:
			applyCmd(cmd)
		case <-ticker.C:
			if len(pending) > 0 && len(s.cmdCh) == 0 && s.ring.Len() <= thresholdSamples {
				pending = signalAll(pending)
				current = domain.NoStream
				setActive(false)
			}
		}
	}
}

// switchStream drains the command queue of any WriteChunk belonging to a
// stream other than newID (discarding their payloads) and any EndOfStream
// for a stream other than newID (released immediately as stale), per the
// stream-switch protocol in §4.7. Commands that DO belong to newID are
// returned so the caller can apply them in order once the switch
// completes.
func (s *Sink) switchStream(newID domain.StreamId) []command {
	var kept []command
	for {
		select {
		case cmd := <-s.cmdCh:
			switch c := cmd.(type) {
			case writeChunkCmd:
				if c.streamID == newID {
					kept = append(kept, c)
				}
			case endStreamCmd:
				if c.streamID == newID {
					kept = append(kept, c)
				} else {
					close(c.done)
				}
			}
		default:
			return kept
		}
	}
}

func applyKept(cmd command, current *domain.StreamId, pending *[]domain.CompletionSignal, s *Sink) {
	switch c := cmd.(type) {
	case writeChunkCmd:
		s.hw.WriteSamples(c.samples)
	case endStreamCmd:
		*pending = append(*pending, c.done)
	}
}

func bytesToInt16(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return out
}
