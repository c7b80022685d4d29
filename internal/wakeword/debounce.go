package wakeword

import (
	"time"

	"github.com/hammamikhairi/ottocook/internal/domain"
)

// Debouncer turns a stream of per-model confidences into discrete
// DetectionEvents, suppressing repeats within an interval. Per-model
// thresholds are supplied on each call to Evaluate, since a Pipeline may
// score several wake-word models with independent thresholds against the
// same Debouncer. It holds no model state and is safe to unit test
// without ONNX.
type Debouncer struct {
	Interval time.Duration

	lastEvent time.Time
	hasFired  bool
}

// NewDebouncer creates a Debouncer with the given minimum interval between
// accepted detections.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{Interval: interval}
}

// candidate is one model's scoring result at a point in time.
type candidate struct {
	modelName  string
	confidence float64
}

// Evaluate applies the tie-breaking and debounce rules from §4.4 across all
// classifiers that scored on this tick and returns a DetectionEvent if one
// should fire. now is passed explicitly so tests can drive the clock.
func (d *Debouncer) Evaluate(scores map[string]float64, thresholds map[string]float64, now time.Time) (domain.DetectionEvent, bool) {
	var best candidate
	found := false

	for model, conf := range scores {
		th := thresholds[model]
		if conf < th {
			continue
		}
		if !found || conf > best.confidence {
			best = candidate{modelName: model, confidence: conf}
			found = true
		}
	}

	if !found {
		return domain.DetectionEvent{}, false
	}

	if d.hasFired && now.Sub(d.lastEvent) < d.Interval {
		return domain.DetectionEvent{}, false
	}

	d.lastEvent = now
	d.hasFired = true

	return domain.DetectionEvent{
		ModelName:  best.modelName,
		Confidence: best.confidence,
		Timestamp:  now,
	}, true
}

// Reset clears debounce state, e.g. after a Pause/Resume cycle.
func (d *Debouncer) Reset() {
	d.hasFired = false
	d.lastEvent = time.Time{}
}
