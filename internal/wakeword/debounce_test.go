package wakeword

import (
	"testing"
	"time"
)

func TestDebouncerFiresAboveThreshold(t *testing.T) {
	d := NewDebouncer(time.Second)
	base := time.Now()

	scores := map[string]float64{"hey-otto": 0.92}
	thresholds := map[string]float64{"hey-otto": 0.5}

	event, fired := d.Evaluate(scores, thresholds, base)
	if !fired {
		t.Fatal("expected a detection event")
	}
	if event.ModelName != "hey-otto" || event.Confidence != 0.92 {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestDebouncerSuppressesBelowThreshold(t *testing.T) {
	d := NewDebouncer(time.Second)
	scores := map[string]float64{"hey-otto": 0.2}
	thresholds := map[string]float64{"hey-otto": 0.5}

	if _, fired := d.Evaluate(scores, thresholds, time.Now()); fired {
		t.Fatal("expected no event below threshold")
	}
}

// TestDebouncerSuppressesWithinInterval mirrors scenario S3: two
// occurrences 300ms apart should yield exactly one event.
func TestDebouncerSuppressesWithinInterval(t *testing.T) {
	d := NewDebouncer(time.Second)
	base := time.Now()
	thresholds := map[string]float64{"hey-otto": 0.5}

	_, fired := d.Evaluate(map[string]float64{"hey-otto": 0.9}, thresholds, base)
	if !fired {
		t.Fatal("expected first event to fire")
	}

	_, fired = d.Evaluate(map[string]float64{"hey-otto": 0.9}, thresholds, base.Add(300*time.Millisecond))
	if fired {
		t.Fatal("expected second event within debounce interval to be suppressed")
	}

	_, fired = d.Evaluate(map[string]float64{"hey-otto": 0.9}, thresholds, base.Add(1100*time.Millisecond))
	if !fired {
		t.Fatal("expected event after debounce interval elapses to fire")
	}
}

func TestDebouncerTieBreaksOnHighestConfidence(t *testing.T) {
	d := NewDebouncer(time.Second)
	thresholds := map[string]float64{"a": 0.5, "b": 0.5}
	scores := map[string]float64{"a": 0.6, "b": 0.95}

	event, fired := d.Evaluate(scores, thresholds, time.Now())
	if !fired {
		t.Fatal("expected an event")
	}
	if event.ModelName != "b" {
		t.Fatalf("expected the higher-confidence model b to win, got %s", event.ModelName)
	}
}

func TestDebouncerIgnoresModelBelowItsOwnThreshold(t *testing.T) {
	d := NewDebouncer(time.Second)
	thresholds := map[string]float64{"a": 0.9, "b": 0.5}
	scores := map[string]float64{"a": 0.7, "b": 0.6} // a is below its own threshold

	event, fired := d.Evaluate(scores, thresholds, time.Now())
	if !fired {
		t.Fatal("expected an event from model b")
	}
	if event.ModelName != "b" {
		t.Fatalf("expected model b, got %s", event.ModelName)
	}
}
