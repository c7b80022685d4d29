package audio

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/hammamikhairi/ottocook/internal/domain"
)

// malgoDevice is the primary domain.CaptureDevice backend: malgo's
// cross-platform miniaudio bindings. It is tried first on every open;
// see portaudioDevice for the fallback used when this fails.
type malgoDevice struct {
	requestedHz int
	channels    int

	mCtx   *malgo.AllocatedContext
	device *malgo.Device

	nativeHz int
}

var _ domain.CaptureDevice = (*malgoDevice)(nil)

func newMalgoDevice(requestedHz, channels int) *malgoDevice {
	return &malgoDevice{requestedHz: requestedHz, channels: channels}
}

// Start opens the default capture device at requestedHz with channels
// interleaved channels and begins delivering buffers to onSamples from
// malgo's own callback goroutine. Returns once the device is running;
// Stop (directly, or via ctx cancellation) tears it down.
func (d *malgoDevice) Start(ctx context.Context, onSamples func(interleaved []int16)) error {
	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return fmt.Errorf("%w: malgo context: %v", domain.ErrDeviceOpenFailed, err)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = uint32(d.requestedHz)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = uint32(d.channels)
	devCfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			if len(raw) == 0 {
				return
			}
			n := len(raw) / 2
			pcm := make([]int16, n)
			for i := 0; i < n; i++ {
				pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
			}
			onSamples(pcm)
		},
	}

	device, err := malgo.InitDevice(mCtx.Context, devCfg, callbacks)
	if err != nil {
		_ = mCtx.Uninit()
		mCtx.Free()
		return fmt.Errorf("%w: malgo device: %v", domain.ErrDeviceOpenFailed, err)
	}

	// The rate recorded here is the one the device was configured with; no
	// rate is read back from the opened device. The caller resamples if it
	// differs from domain.SampleRate.
	d.nativeHz = int(devCfg.SampleRate)

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mCtx.Uninit()
		mCtx.Free()
		return fmt.Errorf("%w: malgo start: %v", domain.ErrDeviceOpenFailed, err)
	}

	d.mCtx = mCtx
	d.device = device

	go func() {
		<-ctx.Done()
		_ = d.Stop()
	}()

	return nil
}

func (d *malgoDevice) Stop() error {
	if d.device == nil {
		return nil
	}
	d.device.Stop()
	d.device.Uninit()
	_ = d.mCtx.Uninit()
	d.mCtx.Free()
	d.device = nil
	return nil
}

func (d *malgoDevice) ChannelCount() int     { return d.channels }
func (d *malgoDevice) NativeSampleRate() int { return d.nativeHz }
