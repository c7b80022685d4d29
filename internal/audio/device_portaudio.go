package audio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/hammamikhairi/ottocook/internal/domain"
)

// portaudioFramesPerBuffer bounds the per-Read chunk size; kept small so a
// device-rate probe settles in well under one 80ms audio frame.
const portaudioFramesPerBuffer = 256

// portaudioDevice is the fallback domain.CaptureDevice backend, used when
// malgo's enumeration fails to expose clean per-channel stride access on a
// given device or platform (spec §4.1 "open at the device's native rate").
// It mirrors the teacher project's own reliance on both PortAudio and
// malgo as alternate capture stacks.
type portaudioDevice struct {
	requestedHz int
	channels    int

	stream *portaudio.Stream
	buf    []int16

	nativeHz int
}

var _ domain.CaptureDevice = (*portaudioDevice)(nil)

func newPortAudioDevice(requestedHz, channels int) *portaudioDevice {
	return &portaudioDevice{requestedHz: requestedHz, channels: channels}
}

// Start opens the default PortAudio input stream and begins delivering
// interleaved buffers to onSamples from a dedicated polling goroutine.
func (d *portaudioDevice) Start(ctx context.Context, onSamples func(interleaved []int16)) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: portaudio init: %v", domain.ErrDeviceOpenFailed, err)
	}

	d.buf = make([]int16, portaudioFramesPerBuffer*d.channels)
	stream, err := portaudio.OpenDefaultStream(d.channels, 0, float64(d.requestedHz), portaudioFramesPerBuffer, d.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: portaudio open: %v", domain.ErrDeviceOpenFailed, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: portaudio start: %v", domain.ErrDeviceOpenFailed, err)
	}

	d.stream = stream
	// PortAudio's default stream either honors the requested rate or fails
	// to open; there is no reported "actual" rate distinct from the
	// request.
	d.nativeHz = d.requestedHz

	go func() {
		defer stream.Stop()
		defer stream.Close()
		defer portaudio.Terminate()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if err := stream.Read(); err != nil {
				return
			}
			pcm := make([]int16, len(d.buf))
			copy(pcm, d.buf)
			onSamples(pcm)
		}
	}()

	return nil
}

func (d *portaudioDevice) Stop() error {
	if d.stream == nil {
		return nil
	}
	return d.stream.Stop()
}

func (d *portaudioDevice) ChannelCount() int     { return d.channels }
func (d *portaudioDevice) NativeSampleRate() int { return d.nativeHz }
