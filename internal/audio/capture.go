// Package audio implements C1 Audio Capture: opening a multichannel input
// device, selecting the target channel, optionally resampling to 16 kHz,
// and emitting fixed-size 80ms frames.
package audio

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hammamikhairi/ottocook/internal/domain"
	"github.com/hammamikhairi/ottocook/internal/logger"
)

// queueDepth is the bounded frame queue's capacity, per spec §4.1.
const queueDepth = 8

// Config holds the device parameters for a Capture.
type Config struct {
	DeviceName  string // empty selects the default capture device
	Channels    int    // interleaved channel count the device exposes
	TargetChan  int    // channel index to extract, 0-based
	RequestedHz int    // desired sample rate, always domain.SampleRate for this pipeline
}

func (c *Config) defaults() {
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.RequestedHz <= 0 {
		c.RequestedHz = domain.SampleRate
	}
}

// Capture opens a domain.CaptureDevice (malgo primary, PortAudio
// fallback), extracts Config.TargetChan by stride-indexing the interleaved
// buffer, resamples to 16 kHz if the device could not be opened at that
// rate, and emits fixed 80ms domain.AudioFrame values on a bounded
// channel.
type Capture struct {
	cfg Config
	log *logger.Logger

	device   domain.CaptureDevice
	nativeHz int
	resample *Resampler

	drops atomic.Int64
	seq   atomic.Uint64
}

// NewCapture creates a Capture. Call Start to open the device.
func NewCapture(cfg Config, log *logger.Logger) *Capture {
	cfg.defaults()
	return &Capture{cfg: cfg, log: log}
}

// Start opens the capture device and returns a channel that begins
// producing AudioFrame values. The channel is closed when ctx is
// cancelled. The device backends give no end-of-stream notice, so a device
// that stops delivering buffers leaves the channel open without frames.
func (c *Capture) Start(ctx context.Context) (<-chan domain.AudioFrame, error) {
	out := make(chan domain.AudioFrame, queueDepth)
	rawCh := make(chan []int16, queueDepth*4)

	onSamples := func(interleaved []int16) {
		select {
		case rawCh <- interleaved:
		default:
			c.drops.Add(1)
		}
	}

	device, err := c.openDevice(ctx, onSamples)
	if err != nil {
		return nil, err
	}
	c.device = device

	c.nativeHz = device.NativeSampleRate()
	if c.nativeHz != domain.SampleRate {
		c.log.Warn("audio: device opened at %d Hz, resampling to %d Hz", c.nativeHz, domain.SampleRate)
		c.resample = NewResampler(c.nativeHz, domain.SampleRate)
	}
	c.log.Info("audio: capture started device=%q channels=%d target=%d rate=%d", c.cfg.DeviceName, device.ChannelCount(), c.cfg.TargetChan, c.nativeHz)

	go func() {
		defer close(out)
		defer device.Stop()

		pending := make([]int16, 0, domain.FrameSamples*2)

		for {
			select {
			case <-ctx.Done():
				return
			case interleaved, open := <-rawCh:
				if !open {
					return
				}
				mono := extractChannel(interleaved, device.ChannelCount(), c.cfg.TargetChan)
				if c.resample != nil {
					mono = c.resample.Process(mono)
				}
				pending = append(pending, mono...)

				for len(pending) >= domain.FrameSamples {
					var frame domain.AudioFrame
					copy(frame.Samples[:], pending[:domain.FrameSamples])
					frame.Seq = c.seq.Add(1)
					frame.Captured = time.Now()

					n := copy(pending, pending[domain.FrameSamples:])
					pending = pending[:n]

					select {
					case out <- frame:
					default:
						c.drops.Add(1)
						c.log.Warn("audio: output queue overflow, dropped frame %d", frame.Seq)
					}
				}
			}
		}
	}()

	return out, nil
}

// openDevice tries the malgo backend first; if it fails to open (missing
// driver, enumeration failure, unsupported channel layout), it falls back
// to the PortAudio backend per spec §4.1's device-open contract.
func (c *Capture) openDevice(ctx context.Context, onSamples func([]int16)) (domain.CaptureDevice, error) {
	primary := newMalgoDevice(c.cfg.RequestedHz, c.cfg.Channels)
	if err := primary.Start(ctx, onSamples); err == nil {
		return primary, nil
	} else {
		c.log.Warn("audio: malgo capture open failed (%v), falling back to portaudio", err)
	}

	fallback := newPortAudioDevice(c.cfg.RequestedHz, c.cfg.Channels)
	if err := fallback.Start(ctx, onSamples); err != nil {
		return nil, err
	}
	return fallback, nil
}

// Drops returns the number of raw device buffers and frames dropped to
// queue overflow since Start, for diagnostics.
func (c *Capture) Drops() int64 {
	return c.drops.Load()
}

// extractChannel stride-indexes an interleaved multichannel buffer to pull
// out one channel's samples.
func extractChannel(interleaved []int16, channels, target int) []int16 {
	if channels <= 1 {
		return interleaved
	}
	n := len(interleaved) / channels
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		idx := i*channels + target
		if idx < len(interleaved) {
			out[i] = interleaved[idx]
		}
	}
	return out
}
