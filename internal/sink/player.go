package sink

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/hammamikhairi/ottocook/internal/domain"
)

// ringReader presents a ring buffer as a continuously-readable PCM stream
// for oto's playback goroutine (the "hardware callback" of spec §5). When
// the ring has no data it emits silence rather than returning zero bytes,
// so the device keeps running between chunks instead of underrunning —
// this is what lets stream switches happen without an audible click.
type ringReader struct {
	r *ring
}

func (rr *ringReader) Read(p []byte) (int, error) {
	samples := make([]int16, len(p)/2)
	n := rr.r.Read(samples)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(samples[i]))
	}
	for i := n * 2; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}

// hardwarePlayer is the oto-backed domain.HardwareSink. It is constructed
// once, before the first producer connection, per spec §4.7's
// pre-initialization requirement.
type hardwarePlayer struct {
	ctx    *oto.Context
	player *oto.Player
	ring   *ring

	mu     sync.Mutex
	closed bool
}

const hardwareChannels = 1
const hardwareBitDepth = oto.FormatSignedInt16LE

// newHardwarePlayer opens the device at deviceRate and starts a player
// fed by the given ring. It blocks until the context reports ready.
func newHardwarePlayer(deviceRate int, r *ring) (*hardwarePlayer, error) {
	ctx, readyChan, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   deviceRate,
		ChannelCount: hardwareChannels,
		Format:       hardwareBitDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: oto context: %v", domain.ErrDeviceOpenFailed, err)
	}
	<-readyChan

	player := ctx.NewPlayer(&ringReader{r: r})
	player.Play()

	return &hardwarePlayer{ctx: ctx, player: player, ring: r}, nil
}

func (h *hardwarePlayer) WriteSamples(samples []int16) (int, error) {
	h.ring.Write(samples)
	return len(samples), nil
}

func (h *hardwarePlayer) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.player.Close()
}
