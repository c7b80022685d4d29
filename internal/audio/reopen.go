package audio

import (
	"context"
	"sync"
	"time"

	"github.com/hammamikhairi/ottocook/internal/domain"
	"github.com/hammamikhairi/ottocook/internal/logger"
)

// ReopenOption configures a Reopener.
type ReopenOption func(*Reopener)

// WithBackoff sets the initial and maximum backoff between reopen attempts.
func WithBackoff(initial, max time.Duration) ReopenOption {
	return func(r *Reopener) {
		r.initialBackoff = initial
		r.maxBackoff = max
	}
}

// WithMaxAttempts sets how many consecutive reopen failures are tolerated
// before giving up and invoking OnExhausted.
func WithMaxAttempts(n int) ReopenOption {
	return func(r *Reopener) { r.maxAttempts = n }
}

// Reopener watches a Capture for device runtime errors and attempts to
// reopen it with exponential backoff, per spec §7's DeviceRuntimeError
// policy: log, attempt reopen with backoff, exit after N failures. Its
// Start/Stop shape follows the project's ticker-loop supervisor idiom.
type Reopener struct {
	open func(ctx context.Context) (<-chan domain.AudioFrame, error)
	log  *logger.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxAttempts    int

	// OnExhausted is invoked once reopen attempts are exhausted, following
	// the fatal-exit policy for DeviceRuntimeError.
	OnExhausted func(lastErr error)
	// OnFrames is invoked with the channel returned by each successful
	// reopen; the caller should fan its contents into the detection
	// pipeline until the channel closes.
	OnFrames func(<-chan domain.AudioFrame)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewReopener creates a Reopener around the given device-open function.
func NewReopener(open func(ctx context.Context) (<-chan domain.AudioFrame, error), log *logger.Logger, opts ...ReopenOption) *Reopener {
	r := &Reopener{
		open:           open,
		log:            log,
		initialBackoff: 200 * time.Millisecond,
		maxBackoff:     10 * time.Second,
		maxAttempts:    8,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start begins the reopen-supervising loop.
func (r *Reopener) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	go r.loop(childCtx)
}

// Stop halts the supervising loop; it does not close an already-open device
// handle, which remains owned by whatever consumed the last OnFrames call.
func (r *Reopener) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	r.running = false
}

func (r *Reopener) loop(ctx context.Context) {
	backoff := r.initialBackoff
	attempts := 0

	for {
		frames, err := r.open(ctx)
		if err != nil {
			attempts++
			r.log.Error("audio: device open failed (attempt %d/%d): %v", attempts, r.maxAttempts, err)
			if attempts >= r.maxAttempts {
				if r.OnExhausted != nil {
					r.OnExhausted(err)
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > r.maxBackoff {
				backoff = r.maxBackoff
			}
			continue
		}

		attempts = 0
		backoff = r.initialBackoff
		if r.OnFrames != nil {
			// OnFrames blocks until frames closes (runtime error or shutdown);
			// only then do we loop back to reopen.
			r.OnFrames(frames)
		} else {
			for range frames {
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
			r.log.Warn("audio: capture stream ended unexpectedly, reopening")
		}
	}
}
