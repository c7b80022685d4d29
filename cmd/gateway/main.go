// Command gateway is the edge voice-assistant audio gateway's process
// entry point: it wires wake-word detection, audio capture, the playback
// sink, and the consumer/producer TCP servers, then blocks until SIGINT or
// SIGTERM.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hammamikhairi/ottocook/internal/config"
	"github.com/hammamikhairi/ottocook/internal/logger"
	"github.com/hammamikhairi/ottocook/internal/supervisor"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Parse(args)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logOut, closeLog, err := openLogOutput(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	defer closeLog()

	level := logger.LevelNormal
	switch {
	case cfg.Quiet:
		level = logger.LevelOff
	case cfg.Verbose:
		level = logger.LevelVerbose
	}
	log := logger.New(level, logOut)

	sup, err := supervisor.New(cfg, log)
	if err != nil {
		return fmt.Errorf("wiring components: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("starting components: %w", err)
	}

	log.Info("gateway: running, press Ctrl+C to stop")
	var fatalErr error
	select {
	case <-ctx.Done():
		log.Info("gateway: shutting down")
	case fatalErr = <-sup.Fatal():
		log.Error("gateway: %v", fatalErr)
	}
	sup.Stop()

	return fatalErr
}

func openLogOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "stderr" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
