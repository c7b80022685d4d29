package wakeword

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hammamikhairi/ottocook/internal/domain"
	"github.com/hammamikhairi/ottocook/internal/logger"
	ort "github.com/yalue/onnxruntime_go"
)

// ModelConfig names one stage-3 keyword model and its own threshold. The
// CLI's repeatable --wakeword-model flag produces one of these per path,
// all sharing the global --threshold unless overridden.
type ModelConfig struct {
	Name      string
	ModelPath string
	Threshold float64
}

// Config holds the paths and tuning knobs for a Pipeline.
type Config struct {
	MelspecModel   string
	EmbeddingModel string
	OnnxLib        string
	Models         []ModelConfig
	Debounce       time.Duration
}

func (c *Config) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = time.Second
	}
}

// Pipeline wires the feature extractor, embedding window, one classifier
// per loaded model, and a shared debouncer into the end-to-end detection
// chain described in spec §4.2-§4.5. It consumes AudioFrames from a
// channel fed by the capture component (C1) and is driven single-threaded
// from its own goroutine.
type Pipeline struct {
	cfg Config
	log *logger.Logger

	// OnDetected fires (from the pipeline goroutine) once per accepted
	// DetectionEvent. Set before calling Start.
	OnDetected func(domain.DetectionEvent)

	mu         sync.Mutex
	paused     bool
	needsReset bool
}

// New creates a Pipeline. Call Start to begin consuming frames.
func New(cfg Config, log *logger.Logger) *Pipeline {
	cfg.defaults()
	return &Pipeline{cfg: cfg, log: log}
}

// Pause stops scoring audio without tearing down the models, so playback
// of the device's own TTS output doesn't retrigger detection.
func (p *Pipeline) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Resume re-enables scoring and schedules a buffer flush on the next frame.
func (p *Pipeline) Resume() {
	p.mu.Lock()
	p.paused = false
	p.needsReset = true
	p.mu.Unlock()
}

func (p *Pipeline) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Pipeline) checkReset() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.needsReset {
		p.needsReset = false
		return true
	}
	return false
}

// Start loads the ONNX models then consumes frames from in until ctx is
// cancelled or in is closed. Run this in its own goroutine; it is the
// capture/detection thread described in spec §5.
func (p *Pipeline) Start(ctx context.Context, in <-chan domain.AudioFrame) error {
	p.log.Debug("wakeword: initializing ONNX runtime (lib=%s)", p.cfg.OnnxLib)
	ort.SetSharedLibraryPath(p.cfg.OnnxLib)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrModelLoadError, err)
	}
	defer ort.DestroyEnvironment()

	extractor, err := NewFeatureExtractor(p.cfg.MelspecModel)
	if err != nil {
		return err
	}
	defer extractor.Close()

	embedder, err := NewEmbeddingWindow(p.cfg.EmbeddingModel)
	if err != nil {
		return err
	}
	defer embedder.Close()

	classifiers := make([]*Classifier, 0, len(p.cfg.Models))
	thresholds := make(map[string]float64, len(p.cfg.Models))
	for _, m := range p.cfg.Models {
		c, err := NewClassifier(m.Name, m.ModelPath, m.Threshold)
		if err != nil {
			for _, opened := range classifiers {
				opened.Close()
			}
			return err
		}
		classifiers = append(classifiers, c)
		thresholds[m.Name] = m.Threshold
		defer c.Close()
	}

	debouncer := NewDebouncer(p.cfg.Debounce)

	mel := make([]domain.MelFrame, 0, domain.EmbeddingWindowFrames*2)
	emb := make([]domain.EmbeddingFrame, 0, 2)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, open := <-in:
			if !open {
				return nil
			}
			if p.isPaused() {
				continue
			}
			if p.checkReset() {
				embedder.Reset()
				for _, c := range classifiers {
					c.Reset()
				}
				debouncer.Reset()
				p.log.Debug("wakeword: pipeline buffers reset after resume")
			}

			mel = mel[:0]
			mel, err = extractor.Extract(&frame, mel)
			if err != nil {
				p.log.Error("wakeword: %v", err)
				continue
			}

			emb = emb[:0]
			emb, err = embedder.Advance(mel, emb)
			if err != nil {
				p.log.Error("wakeword: %v", err)
				continue
			}

			for _, e := range emb {
				scores := make(map[string]float64, len(classifiers))
				for _, c := range classifiers {
					conf, ok, err := c.Score(e)
					if err != nil {
						p.log.Error("wakeword: %v", err)
						continue
					}
					if !ok {
						continue
					}
					scores[c.ModelName] = conf
				}
				if len(scores) == 0 {
					continue
				}

				if event, fired := debouncer.Evaluate(scores, thresholds, time.Now()); fired {
					p.log.Info("wakeword: detected model=%s confidence=%.4f", event.ModelName, event.Confidence)
					if p.OnDetected != nil {
						p.OnDetected(event)
					}
				}
			}
		}
	}
}
