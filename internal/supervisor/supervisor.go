// Package supervisor implements C11: wiring every component together in
// dependency order and handling graceful shutdown. Its Start/Stop shape
// follows the project's existing ticker-loop supervisor idiom
// (mutex-guarded running flag, stored cancel func), generalized here to
// own the whole component graph instead of a single ticking loop.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hammamikhairi/ottocook/internal/audio"
	"github.com/hammamikhairi/ottocook/internal/bargein"
	"github.com/hammamikhairi/ottocook/internal/config"
	"github.com/hammamikhairi/ottocook/internal/domain"
	"github.com/hammamikhairi/ottocook/internal/logger"
	"github.com/hammamikhairi/ottocook/internal/mediaplayer"
	"github.com/hammamikhairi/ottocook/internal/server"
	"github.com/hammamikhairi/ottocook/internal/sink"
	"github.com/hammamikhairi/ottocook/internal/wakeword"
)

// defaultDeviceRate is the playback hardware rate assumed absent a device
// probe; a typical class-compliant USB DAC on a Raspberry Pi runs at 48 kHz
// (spec §4.7 uses this as its own example rate).
const defaultDeviceRate = 48000

// Supervisor owns every component and wires them per spec §2's dependency
// graph and §5's thread inventory.
type Supervisor struct {
	cfg *config.Config
	log *logger.Logger

	capture  *audio.Capture
	pipeline *wakeword.Pipeline
	playback *sink.Sink
	consumer *server.ConsumerServer
	producer *server.ProducerServer
	bus      *bargein.Bus
	player   *mediaplayer.Controller

	reopener *audio.Reopener
	fatal    chan error

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New wires every component's configuration and pre-initializes the
// playback sink (its output device is opened and its audio thread started
// here); every other component is started by Start.
func New(cfg *config.Config, log *logger.Logger) (*Supervisor, error) {
	playback, err := sink.New(defaultDeviceRate, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceOpenFailed, err)
	}

	bus := bargein.New()

	models := make([]wakeword.ModelConfig, 0, len(cfg.WakewordModels))
	for i, path := range cfg.WakewordModels {
		models = append(models, wakeword.ModelConfig{
			Name:      fmt.Sprintf("model-%d", i),
			ModelPath: path,
			Threshold: cfg.Threshold,
		})
	}

	pipeline := wakeword.New(wakeword.Config{
		MelspecModel:   cfg.MelspecModel,
		EmbeddingModel: cfg.EmbeddingModel,
		OnnxLib:        cfg.OnnxLib,
		Models:         models,
		Debounce:       cfg.Debounce(),
	}, log)

	capture := audio.NewCapture(audio.Config{
		DeviceName:  cfg.InputDevice,
		Channels:    1,
		TargetChan:  0,
		RequestedHz: domain.SampleRate,
	}, log)

	consumer := server.NewConsumerServer(cfg.ConsumerAddr, log)
	producer := server.NewProducerServer(cfg.ProducerAddr, playback, bus, log)
	player := mediaplayer.New(cfg.SpotifyPlayer, log)

	s := &Supervisor{
		cfg:      cfg,
		log:      log,
		capture:  capture,
		pipeline: pipeline,
		playback: playback,
		consumer: consumer,
		producer: producer,
		bus:      bus,
		player:   player,
		fatal:    make(chan error, 1),
	}

	pipeline.OnDetected = s.onDetected
	playback.OnPlaybackActive = func(active bool) {
		if active {
			pipeline.Pause()
		} else {
			pipeline.Resume()
		}
	}
	return s, nil
}

// Fatal reports an error if the capture device's reopen supervisor (spec
// §7 DeviceRuntimeError) exhausts its retry budget; the gateway process
// should treat this as a fatal error and exit non-zero, same as a
// startup failure. Never sent more than once.
func (s *Supervisor) Fatal() <-chan error {
	return s.fatal
}

// Start begins every background thread described in spec §5: the sink is
// already running by the time this is called (pre-initialized in New);
// this brings up capture, the detection pipeline, and both TCP servers.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	if err := s.producer.Start(childCtx); err != nil {
		return fmt.Errorf("%w: producer listen: %v", domain.ErrDeviceOpenFailed, err)
	}
	if err := s.consumer.Start(childCtx); err != nil {
		return fmt.Errorf("%w: consumer listen: %v", domain.ErrDeviceOpenFailed, err)
	}

	// The first device open is fatal at startup (spec §7 DeviceOpenFailed);
	// only a later, mid-run stream loss is handed to the reopen supervisor
	// under the DeviceRuntimeError "reopen with backoff, exit after N
	// failures" policy.
	captureFrames, err := s.capture.Start(childCtx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeviceOpenFailed, err)
	}

	pipelineIn := make(chan domain.AudioFrame, 8)
	forward := func(frames <-chan domain.AudioFrame) {
		for frame := range frames {
			s.consumer.BroadcastAudio(&frame, true) // no VAD integrated; advisory constant per spec's open-question resolution
			select {
			case pipelineIn <- frame:
			default:
				s.log.Warn("supervisor: %v, dropping frame %d before detection pipeline", domain.ErrQueueOverflow, frame.Seq)
			}
		}
	}

	reopener := audio.NewReopener(s.capture.Start, s.log)
	reopener.OnFrames = forward
	reopener.OnExhausted = func(lastErr error) {
		select {
		case s.fatal <- fmt.Errorf("%w: %v", domain.ErrDeviceRuntimeError, lastErr):
		default:
		}
		cancel()
	}
	s.reopener = reopener

	go func() {
		forward(captureFrames)
		if childCtx.Err() != nil {
			return
		}
		s.log.Warn("audio: capture stream ended unexpectedly, reopening")
		reopener.Start(childCtx)
	}()

	go func() {
		if err := s.pipeline.Start(childCtx, pipelineIn); err != nil && childCtx.Err() == nil {
			s.log.Error("supervisor: wakeword pipeline exited: %v", err)
		}
	}()

	s.log.Info("supervisor: started (consumer=%s producer=%s models=%d)", s.cfg.ConsumerAddr, s.cfg.ProducerAddr, len(s.cfg.WakewordModels))
	return nil
}

// Stop cancels every background thread and releases hardware resources.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s.reopener != nil {
		s.reopener.Stop()
	}
	_ = s.consumer.Stop()
	_ = s.producer.Stop()
	_ = s.playback.Close()
}

// onDetected is the wake-word pipeline's callback, run on the detection
// thread. It fires the barge-in bus and broadcasts the event to consumer
// subscribers immediately, ahead of any further captured frames (spec
// §4.5/§5); ducking the configured media player is a side effect dispatched
// asynchronously afterward so its subprocess round trip never delays
// delivery. The player's own pause result only affects ducking itself, not
// the already-delivered event, so spotifyWasPaused is reported as false; a
// real pause still happens, it is just not threaded back into this event.
func (s *Supervisor) onDetected(event domain.DetectionEvent) {
	s.bus.Fire()
	s.consumer.BroadcastWakeword(event, false)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	s.player.PauseIfPlayingAsync(ctx, func(wasPaused bool) {
		cancel()
		if wasPaused {
			s.log.Debug("mediaplayer: ducked playback for detection model=%s", event.ModelName)
		}
	})
}
