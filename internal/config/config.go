// Package config parses the gateway's CLI surface (spec §6.2), loading an
// optional .env file first via godotenv, matching the project's existing
// "dotenv then flags" convention.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

// WakewordModelFlag accumulates repeated --wakeword-model flags.
type WakewordModelFlag []string

func (w *WakewordModelFlag) String() string {
	return fmt.Sprintf("%v", []string(*w))
}

func (w *WakewordModelFlag) Set(value string) error {
	*w = append(*w, value)
	return nil
}

// Config holds every CLI-affecting core behavior knob from spec §6.2.
type Config struct {
	ConsumerAddr   string
	ProducerAddr   string
	InputDevice    string
	WakewordModels []string
	MelspecModel   string
	EmbeddingModel string
	OnnxLib        string
	Threshold      float64
	DebounceMS     uint
	SpotifyPlayer  string

	Verbose bool
	Quiet   bool
	LogFile string
}

// Parse loads .env (if present, silently ignored otherwise) then parses
// args against the flag surface, returning a populated Config.
func Parse(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)

	cfg := &Config{}
	var models WakewordModelFlag

	fs.StringVar(&cfg.ConsumerAddr, "consumer-addr", "0.0.0.0:8080", "consumer server bind address")
	fs.StringVar(&cfg.ProducerAddr, "producer-addr", "0.0.0.0:8081", "producer server bind address")
	fs.StringVar(&cfg.InputDevice, "input-device", "", "capture device name (empty = default)")
	fs.Var(&models, "wakeword-model", "path to a stage-3 keyword model (may repeat)")
	fs.StringVar(&cfg.MelspecModel, "melspec-model", "bin/melspectrogram.onnx", "path to the stage-1 mel model")
	fs.StringVar(&cfg.EmbeddingModel, "embedding-model", "bin/embedding_model.onnx", "path to the stage-2 embedding model")
	fs.StringVar(&cfg.OnnxLib, "onnx-lib", "bin/libonnxruntime.so", "path to the ONNX Runtime shared library")
	fs.Float64Var(&cfg.Threshold, "threshold", 0.5, "wake-word confidence threshold")
	fs.UintVar(&cfg.DebounceMS, "debounce-ms", 1000, "minimum time between accepted detections")
	fs.StringVar(&cfg.SpotifyPlayer, "spotify-player", "", "media player name prefix to duck (empty disables)")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "enable debug logging")
	fs.BoolVar(&cfg.Quiet, "quiet", false, "disable all logging")
	fs.StringVar(&cfg.LogFile, "log-file", "stderr", `log file path, or "stderr"`)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.WakewordModels = models
	return cfg, nil
}

// Debounce returns DebounceMS as a time.Duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}
