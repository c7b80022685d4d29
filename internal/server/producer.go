package server

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/hammamikhairi/ottocook/internal/bargein"
	"github.com/hammamikhairi/ottocook/internal/domain"
	"github.com/hammamikhairi/ottocook/internal/logger"
	"github.com/hammamikhairi/ottocook/internal/protocol"
)

// PlaybackSink is the subset of the sink package's Sink that the producer
// server drives. Declared narrowly here so the server can be tested
// against a fake.
type PlaybackSink interface {
	WriteChunk(chunk domain.PlaybackChunk)
	EndStream(streamID domain.StreamId) domain.CompletionSignal
	Abort()
}

// connState is the per-connection state machine from spec §4.6.
type connState int

const (
	stateIdle connState = iota
	stateBuffering
	stateDraining
)

// ProducerServer implements C7: a single-producer-at-a-time TCP endpoint
// driving a PlaybackSink, with barge-in abort wired from the detection
// pipeline via a bargein.Bus.
type ProducerServer struct {
	addr string
	log  *logger.Logger
	sink PlaybackSink
	bus  *bargein.Bus

	mu        sync.Mutex
	connected bool

	listener net.Listener
}

// NewProducerServer creates a ProducerServer around sink, polling bus for
// barge-in signals on every read-loop iteration.
func NewProducerServer(addr string, sink PlaybackSink, bus *bargein.Bus, log *logger.Logger) *ProducerServer {
	return &ProducerServer{addr: addr, log: log, sink: sink, bus: bus}
}

// Start opens the listener and begins accepting the single producer
// connection until ctx is cancelled.
func (s *ProducerServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.log.Info("producer: listening on %s", s.addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					s.log.Warn("producer: accept error: %v", err)
					return
				}
			}

			s.mu.Lock()
			if s.connected {
				s.mu.Unlock()
				s.rejectDuplicate(conn)
				continue
			}
			s.connected = true
			s.mu.Unlock()

			go s.handleConn(ctx, conn)
		}
	}()
	return nil
}

// Stop closes the listener.
func (s *ProducerServer) Stop() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *ProducerServer) rejectDuplicate(conn net.Conn) {
	defer conn.Close()
	payload, _ := protocol.EncodeVariant(protocol.VariantError, protocol.ErrorData{Message: "producer already connected"})
	_ = protocol.WriteFrame(conn, payload)
	s.log.Warn("producer: %v", domain.ErrDuplicateProducer)
}

func (s *ProducerServer) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}()

	connected, _ := protocol.EncodeBareVariant(protocol.VariantConnected)
	if err := protocol.WriteFrame(conn, connected); err != nil {
		return
	}

	reader := bufio.NewReader(conn)

	state := stateIdle
	currentStreamID := domain.NoStream
	interruptedStreamID := domain.NoStream
	var pendingCompletion domain.CompletionSignal

	// completionReady is fed whenever a watched completion signal fires; the
	// select loop below races it against the next inbound frame and the
	// barge-in bus.
	completionReady := make(chan struct{})
	watchCompletion := func(sig domain.CompletionSignal) {
		go func() {
			<-sig
			select {
			case completionReady <- struct{}{}:
			case <-ctx.Done():
			}
		}()
	}

	frames := make(chan []byte)
	readErrs := make(chan error, 1)
	go func() {
		for {
			payload, err := protocol.ReadFrame(reader)
			if err != nil {
				readErrs <- err
				return
			}
			frames <- payload
		}
	}()

	sendComplete := func() {
		payload, _ := protocol.EncodeVariant(protocol.VariantPlaybackComplete, protocol.PlaybackCompleteData{
			Timestamp: uint64(time.Now().UnixMilli()),
		})
		_ = protocol.WriteFrame(conn, payload)
	}

	applyBargeIn := func() {
		if currentStreamID == domain.NoStream {
			return
		}
		interruptedStreamID = currentStreamID
		s.sink.Abort()
		currentStreamID = domain.NoStream
		pendingCompletion = nil
		state = stateIdle
		sendComplete()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErrs:
			_ = err
			return
		case <-completionReady:
			pendingCompletion = nil
			currentStreamID = domain.NoStream
			state = stateIdle
			sendComplete()
		case <-s.bus.C():
			// Observed directly off the bus rather than waiting for the next
			// inbound frame, so a barge-in fired mid-stream (a single Play
			// message can carry seconds of audio) takes effect immediately.
			applyBargeIn()
		case payload := <-frames:
			name, data, err := protocol.DecodeVariant(payload)
			if err != nil {
				s.sendProtocolError(conn, "malformed frame")
				return
			}

			switch name {
			case protocol.VariantPlay:
				var play protocol.PlayData
				if err := json.Unmarshal(data, &play); err != nil {
					s.sendProtocolError(conn, "malformed Play")
					return
				}
				sid := domain.StreamId(play.StreamID)
				if sid <= interruptedStreamID && interruptedStreamID != domain.NoStream {
					continue // stale, dropped silently
				}
				raw, err := base64.StdEncoding.DecodeString(play.Data)
				if err != nil {
					s.sendProtocolError(conn, "malformed base64 audio")
					return
				}
				if sid != currentStreamID {
					if currentStreamID != domain.NoStream && sid > currentStreamID {
						// A newer id supersedes the current stream; its late
						// chunks are stale from here on.
						interruptedStreamID = currentStreamID
					}
					currentStreamID = sid
					state = stateBuffering
				}
				s.sink.WriteChunk(domain.PlaybackChunk{StreamID: sid, Payload: raw})

			case protocol.VariantEndOfStream:
				var eos protocol.EndOfStreamData
				if err := json.Unmarshal(data, &eos); err != nil {
					s.sendProtocolError(conn, "malformed EndOfStream")
					return
				}
				sid := domain.StreamId(eos.StreamID)
				if sid != currentStreamID {
					continue // idempotent / stale, ignored
				}
				pendingCompletion = s.sink.EndStream(sid)
				watchCompletion(pendingCompletion)
				state = stateDraining

			default:
				s.sendProtocolError(conn, "unexpected message")
				return
			}

			s.log.Debug("producer: state=%d stream=%d interrupted=%d", state, currentStreamID, interruptedStreamID)
		}
	}
}

func (s *ProducerServer) sendProtocolError(conn net.Conn, message string) {
	payload, _ := protocol.EncodeVariant(protocol.VariantError, protocol.ErrorData{Message: message})
	_ = protocol.WriteFrame(conn, payload)
	s.log.Debug("producer: %v: %s", domain.ErrClientProtocolError, message)
}
