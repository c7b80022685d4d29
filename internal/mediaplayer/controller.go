// Package mediaplayer implements C10: a non-blocking pause of a
// co-resident media player via the external playerctl CLI, upon wake-word
// detection.
package mediaplayer

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/hammamikhairi/ottocook/internal/domain"
	"github.com/hammamikhairi/ottocook/internal/logger"
)

const helperTimeout = 2 * time.Second

var _ domain.PlayerController = (*Controller)(nil)

// Controller pauses a configured player by name prefix. The zero value
// (empty PlayerPrefix) is a valid no-op controller, used when
// --spotify-player is unset.
type Controller struct {
	PlayerPrefix string
	log          *logger.Logger
}

// New creates a Controller for the given player name prefix (e.g.
// "spotifyd"). An empty prefix disables ducking entirely.
func New(playerPrefix string, log *logger.Logger) *Controller {
	return &Controller{PlayerPrefix: playerPrefix, log: log}
}

// PauseIfPlaying synchronously shells out to playerctl to find and pause
// the configured player. It satisfies domain.PlayerController but blocks
// on subprocess I/O; callers on the detection hot path must use
// PauseIfPlayingAsync instead so the detection thread is never stalled.
func (c *Controller) PauseIfPlaying(ctx context.Context) bool {
	if c.PlayerPrefix == "" {
		return false
	}
	if _, err := exec.LookPath("playerctl"); err != nil {
		c.log.Debug("mediaplayer: playerctl not found: %v", err)
		return false
	}

	instance, err := c.findInstance(ctx)
	if err != nil {
		c.log.Debug("mediaplayer: no matching player for prefix %q: %v", c.PlayerPrefix, err)
		return false
	}

	status, err := c.run(ctx, "--player", instance, "status")
	if err != nil || strings.TrimSpace(status) != "Playing" {
		c.log.Debug("mediaplayer: %q not currently playing", instance)
		return false
	}

	if _, err := c.run(ctx, "--player", instance, "pause"); err != nil {
		c.log.Debug("mediaplayer: pause failed for %q: %v", instance, err)
		return false
	}

	c.log.Info("mediaplayer: paused %q", instance)
	return true
}

// PauseIfPlayingAsync spawns PauseIfPlaying on a helper goroutine and
// reports the outcome via onResult, which is invoked on that goroutine.
// It never blocks the caller; used by the wake-word detection thread
// which must not stall on subprocess I/O.
func (c *Controller) PauseIfPlayingAsync(ctx context.Context, onResult func(wasPaused bool)) {
	go func() {
		ctx, cancel := context.WithTimeout(ctx, helperTimeout)
		defer cancel()
		wasPaused := c.PauseIfPlaying(ctx)
		if onResult != nil {
			onResult(wasPaused)
		}
	}()
}

func (c *Controller) findInstance(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "--list-all")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, c.PlayerPrefix) {
			return line, nil
		}
	}
	return "", exec.ErrNotFound
}

func (c *Controller) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "playerctl", args...)
	out, err := cmd.Output()
	return string(out), err
}
