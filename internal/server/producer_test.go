package server

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/ottocook/internal/bargein"
	"github.com/hammamikhairi/ottocook/internal/domain"
	"github.com/hammamikhairi/ottocook/internal/logger"
	"github.com/hammamikhairi/ottocook/internal/protocol"
)

// fakeSink records WriteChunk/EndStream/Abort calls so tests can assert on
// the producer server's state-machine behavior without a real audio
// device.
type fakeSink struct {
	mu       sync.Mutex
	chunks   []domain.StreamId
	ended    []domain.StreamId
	aborts   int
	pendings map[domain.StreamId]domain.CompletionSignal
}

func newFakeSink() *fakeSink {
	return &fakeSink{pendings: make(map[domain.StreamId]domain.CompletionSignal)}
}

func (f *fakeSink) WriteChunk(chunk domain.PlaybackChunk) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunk.StreamID)
}

func (f *fakeSink) EndStream(streamID domain.StreamId) domain.CompletionSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, streamID)
	sig := domain.NewCompletionSignal()
	f.pendings[streamID] = sig
	return sig
}

func (f *fakeSink) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	for id, sig := range f.pendings {
		close(sig)
		delete(f.pendings, id)
	}
}

// complete simulates the audio thread observing a fully-drained stream.
func (f *fakeSink) complete(id domain.StreamId) {
	f.mu.Lock()
	sig, ok := f.pendings[id]
	delete(f.pendings, id)
	f.mu.Unlock()
	if ok {
		close(sig)
	}
}

func startTestProducer(t *testing.T, sink *fakeSink, bus *bargein.Bus) (addr string, stop func()) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	srv := NewProducerServer("127.0.0.1:0", sink, bus, log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv.listener = ln
	srv.addr = ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			srv.mu.Lock()
			if srv.connected {
				srv.mu.Unlock()
				srv.rejectDuplicate(conn)
				continue
			}
			srv.connected = true
			srv.mu.Unlock()
			go srv.handleConn(ctx, conn)
		}
	}()

	return ln.Addr().String(), func() {
		cancel()
		ln.Close()
	}
}

func dialAndExpectConnected(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	r := bufio.NewReader(conn)
	payload, err := protocol.ReadFrame(r)
	if err != nil {
		t.Fatalf("read Connected: %v", err)
	}
	name, _, err := protocol.DecodeVariant(payload)
	if err != nil || name != protocol.VariantConnected {
		t.Fatalf("expected Connected, got %s (err=%v)", name, err)
	}
	return conn, r
}

func sendPlay(t *testing.T, conn net.Conn, streamID uint64, pcm []byte) {
	t.Helper()
	payload, err := protocol.EncodeVariant(protocol.VariantPlay, protocol.PlayData{
		StreamID: streamID,
		Data:     base64.StdEncoding.EncodeToString(pcm),
	})
	if err != nil {
		t.Fatalf("encode Play: %v", err)
	}
	if err := protocol.WriteFrame(conn, payload); err != nil {
		t.Fatalf("write Play: %v", err)
	}
}

func sendEndOfStream(t *testing.T, conn net.Conn, streamID uint64) {
	t.Helper()
	payload, err := protocol.EncodeVariant(protocol.VariantEndOfStream, protocol.EndOfStreamData{StreamID: streamID})
	if err != nil {
		t.Fatalf("encode EndOfStream: %v", err)
	}
	if err := protocol.WriteFrame(conn, payload); err != nil {
		t.Fatalf("write EndOfStream: %v", err)
	}
}

func expectPlaybackComplete(t *testing.T, r *bufio.Reader) {
	t.Helper()
	payload, err := protocol.ReadFrame(r)
	if err != nil {
		t.Fatalf("read PlaybackComplete: %v", err)
	}
	name, _, err := protocol.DecodeVariant(payload)
	if err != nil || name != protocol.VariantPlaybackComplete {
		t.Fatalf("expected PlaybackComplete, got %s (err=%v)", name, err)
	}
}

// TestProducerPlayThenEndOfStream mirrors scenario S4.
func TestProducerPlayThenEndOfStream(t *testing.T) {
	sink := newFakeSink()
	bus := bargein.New()
	addr, stop := startTestProducer(t, sink, bus)
	defer stop()

	conn, r := dialAndExpectConnected(t, addr)
	defer conn.Close()

	sendPlay(t, conn, 100, make([]byte, 2560))
	sendEndOfStream(t, conn, 100)

	// Give the read loop a moment to register EndOfStream, then simulate
	// the audio thread draining.
	time.Sleep(20 * time.Millisecond)
	sink.complete(100)

	expectPlaybackComplete(t, r)
}

// TestProducerStreamSwitch mirrors scenario S5: a new stream id pre-empts
// the old one without an explicit stop, and no PlaybackComplete fires
// until EndOfStream.
func TestProducerStreamSwitch(t *testing.T) {
	sink := newFakeSink()
	bus := bargein.New()
	addr, stop := startTestProducer(t, sink, bus)
	defer stop()

	conn, r := dialAndExpectConnected(t, addr)
	defer conn.Close()

	sendPlay(t, conn, 100, make([]byte, 2560))
	sendPlay(t, conn, 200, make([]byte, 2560))
	time.Sleep(20 * time.Millisecond)

	sink.mu.Lock()
	chunks := append([]domain.StreamId(nil), sink.chunks...)
	sink.mu.Unlock()
	if len(chunks) != 2 || chunks[0] != 100 || chunks[1] != 200 {
		t.Fatalf("expected chunks for streams [100 200], got %v", chunks)
	}

	// A late chunk for the interrupted stream must be dropped.
	sendPlay(t, conn, 100, make([]byte, 2560))
	time.Sleep(20 * time.Millisecond)

	sink.mu.Lock()
	chunkCount := len(sink.chunks)
	sink.mu.Unlock()
	if chunkCount != 2 {
		t.Fatalf("expected stale stream-100 chunk to be dropped, got %d total chunks", chunkCount)
	}

	sendEndOfStream(t, conn, 200)
	time.Sleep(20 * time.Millisecond)
	sink.complete(200)
	expectPlaybackComplete(t, r)
}

// TestProducerBargeIn mirrors scenario S6.
func TestProducerBargeIn(t *testing.T) {
	sink := newFakeSink()
	bus := bargein.New()
	addr, stop := startTestProducer(t, sink, bus)
	defer stop()

	conn, r := dialAndExpectConnected(t, addr)
	defer conn.Close()

	sendPlay(t, conn, 100, make([]byte, 2560))
	time.Sleep(10 * time.Millisecond)

	// The read loop selects on the bus directly, so a fire is observed even
	// with no further inbound frames — no nudge message needed.
	start := time.Now()
	bus.Fire()
	expectPlaybackComplete(t, r)
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("expected barge-in to abort playback within 50ms, took %v", elapsed)
	}

	sink.mu.Lock()
	aborts := sink.aborts
	sink.mu.Unlock()
	if aborts != 1 {
		t.Fatalf("expected exactly one abort, got %d", aborts)
	}

	// A delayed Play for the interrupted stream must be dropped.
	sendPlay(t, conn, 100, make([]byte, 2560))
	// A new stream must be accepted.
	sendPlay(t, conn, 200, make([]byte, 2560))
	time.Sleep(20 * time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	var count100, count200 int
	for _, id := range sink.chunks {
		switch id {
		case 100:
			count100++
		case 200:
			count200++
		}
	}
	if count100 != 1 {
		t.Fatalf("expected exactly one stream-100 chunk (the pre-barge-in one), got %d", count100)
	}
	if count200 != 1 {
		t.Fatalf("expected the new stream 200 to be accepted, got %d chunks", count200)
	}
}

func TestProducerRejectsDuplicateConnection(t *testing.T) {
	sink := newFakeSink()
	bus := bargein.New()
	addr, stop := startTestProducer(t, sink, bus)
	defer stop()

	conn1, _ := dialAndExpectConnected(t, addr)
	defer conn1.Close()

	conn2, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn2.Close()

	r2 := bufio.NewReader(conn2)
	payload, err := protocol.ReadFrame(r2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	name, data, err := protocol.DecodeVariant(payload)
	if err != nil || name != protocol.VariantError {
		t.Fatalf("expected Error for duplicate producer, got %s", name)
	}
	var errData protocol.ErrorData
	if err := json.Unmarshal(data, &errData); err != nil {
		t.Fatalf("unmarshal error data: %v", err)
	}
	if errData.Message == "" {
		t.Fatal("expected a non-empty error message")
	}
}
