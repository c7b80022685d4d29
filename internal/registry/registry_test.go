package registry

import (
	"testing"

	"github.com/hammamikhairi/ottocook/internal/domain"
	"github.com/hammamikhairi/ottocook/internal/logger"
)

func TestRegistryAddBroadcastRemove(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	reg := New(log)

	client, err := reg.Add("client-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	overflowed := reg.Broadcast([]byte("frame"))
	if len(overflowed) != 0 {
		t.Fatalf("expected no overflow, got %v", overflowed)
	}

	select {
	case payload := <-client.Queue:
		if string(payload) != "frame" {
			t.Fatalf("unexpected payload: %s", payload)
		}
	default:
		t.Fatal("expected payload on client queue")
	}

	reg.Remove("client-1")
	if reg.Count() != 0 {
		t.Fatalf("expected 0 clients after remove, got %d", reg.Count())
	}
}

func TestRegistryRejectsDuplicateID(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	reg := New(log)

	if _, err := reg.Add("dup"); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := reg.Add("dup"); err != domain.ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRegistryBroadcastReportsOverflow(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	reg := New(log)

	client, _ := reg.Add("slow")
	for i := 0; i < QueueDepth; i++ {
		client.Queue <- []byte("x")
	}

	overflowed := reg.Broadcast([]byte("one-too-many"))
	if len(overflowed) != 1 || overflowed[0] != "slow" {
		t.Fatalf("expected slow client reported as overflowed, got %v", overflowed)
	}
}

func TestRegistryEvictWakesKick(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	reg := New(log)

	client, _ := reg.Add("evict-me")
	reg.Evict("evict-me", "slow consumer")

	select {
	case reason := <-client.Kick:
		if reason != "slow consumer" {
			t.Fatalf("unexpected kick reason: %s", reason)
		}
	default:
		t.Fatal("expected a kick signal")
	}
	if reg.Count() != 0 {
		t.Fatalf("expected client removed after evict, got count=%d", reg.Count())
	}
}
