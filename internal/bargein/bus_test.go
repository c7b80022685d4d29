package bargein

import "testing"

func TestBusFireThenPoll(t *testing.T) {
	b := New()

	if b.Poll() {
		t.Fatal("expected no pending signal before Fire")
	}

	b.Fire()
	if !b.Poll() {
		t.Fatal("expected a pending signal after Fire")
	}
	if b.Poll() {
		t.Fatal("expected Poll to be one-shot")
	}
}

func TestBusFireDoesNotBlockWhenFull(t *testing.T) {
	b := New()
	for i := 0; i < busCapacity+5; i++ {
		b.Fire() // must never block even past capacity
	}

	count := 0
	for b.Poll() {
		count++
	}
	if count != busCapacity {
		t.Fatalf("expected %d queued signals, got %d", busCapacity, count)
	}
}

func TestBusCSelectsLikePoll(t *testing.T) {
	b := New()
	b.Fire()

	select {
	case <-b.C():
	default:
		t.Fatal("expected a signal to be selectable on C() after Fire")
	}

	select {
	case <-b.C():
		t.Fatal("expected C() to be empty after the signal was consumed")
	default:
	}
}
