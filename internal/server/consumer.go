// Package server implements the two TCP endpoints: the consumer server
// (C6, spec §4.5) and the producer server (C7, spec §4.6), both sharing
// the length-prefixed tagged-union framing in internal/protocol.
package server

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"net"

	"github.com/hammamikhairi/ottocook/internal/domain"
	"github.com/hammamikhairi/ottocook/internal/logger"
	"github.com/hammamikhairi/ottocook/internal/protocol"
	"github.com/hammamikhairi/ottocook/internal/registry"
)

// ConsumerServer implements C6: it accepts any number of clients, streams
// every captured audio frame and wake event to each subscriber over its
// own bounded queue, and disconnects slow consumers rather than ever
// blocking the capture thread.
type ConsumerServer struct {
	addr string
	log  *logger.Logger
	reg  *registry.Registry

	listener net.Listener
}

// NewConsumerServer creates a ConsumerServer bound to addr (not yet
// listening; call Start).
func NewConsumerServer(addr string, log *logger.Logger) *ConsumerServer {
	return &ConsumerServer{addr: addr, log: log, reg: registry.New(log)}
}

// Start opens the listener and begins accepting clients until ctx is
// cancelled.
func (s *ConsumerServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.log.Info("consumer: listening on %s", s.addr)

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
					s.log.Warn("consumer: accept error: %v", err)
					return
				}
			}
			go s.handleConn(ctx, conn)
		}
	}()
	return nil
}

// Stop closes the listener, ending the accept loop.
func (s *ConsumerServer) Stop() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *ConsumerServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connected, _ := protocol.EncodeBareVariant(protocol.VariantConnected)
	if err := protocol.WriteFrame(conn, connected); err != nil {
		return
	}

	reader := bufio.NewReader(conn)
	payload, err := protocol.ReadFrame(reader)
	if err != nil {
		return
	}
	name, data, err := protocol.DecodeVariant(payload)
	if err != nil || name != protocol.VariantSubscribe {
		s.sendError(conn, "expected Subscribe")
		return
	}
	var sub protocol.SubscribeData
	if err := json.Unmarshal(data, &sub); err != nil {
		s.sendError(conn, "malformed Subscribe")
		return
	}

	client, err := s.reg.Add(sub.ID)
	if err != nil {
		s.sendError(conn, "duplicate client id")
		return
	}
	defer s.reg.Remove(sub.ID)
	s.log.Info("consumer: client %s subscribed", sub.ID)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A reader goroutine exists solely to notice the client closing the
	// socket; this endpoint has no further inbound messages after
	// Subscribe.
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := conn.Read(buf); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case <-connCtx.Done():
			return
		case reason := <-client.Kick:
			s.sendError(conn, reason)
			return
		case payload, open := <-client.Queue:
			if !open {
				return
			}
			if err := protocol.WriteFrame(conn, payload); err != nil {
				return
			}
		}
	}
}

func (s *ConsumerServer) sendError(conn net.Conn, message string) {
	payload, _ := protocol.EncodeVariant(protocol.VariantError, protocol.ErrorData{Message: message})
	_ = protocol.WriteFrame(conn, payload)
}

// BroadcastAudio encodes frame as an Audio variant and fans it out to
// every subscriber, disconnecting any whose queue has overflowed. Called
// from the capture/detection thread once per 80ms frame; never blocks.
func (s *ConsumerServer) BroadcastAudio(frame *domain.AudioFrame, speechDetected bool) {
	raw := make([]byte, domain.FrameSamples*2)
	for i, v := range frame.Samples {
		raw[i*2] = byte(uint16(v))
		raw[i*2+1] = byte(uint16(v) >> 8)
	}

	payload, _ := protocol.EncodeVariant(protocol.VariantAudio, protocol.AudioData{
		Data:           base64.StdEncoding.EncodeToString(raw),
		SpeechDetected: speechDetected,
	})
	s.dropOverflowed(s.reg.Broadcast(payload))
}

// BroadcastWakeword encodes event as a WakewordDetected variant and fans
// it out to every subscriber.
func (s *ConsumerServer) BroadcastWakeword(event domain.DetectionEvent, spotifyWasPaused bool) {
	payload, _ := protocol.EncodeVariant(protocol.VariantWakewordDetected, protocol.WakewordDetectedData{
		Model:            event.ModelName,
		SpotifyWasPaused: spotifyWasPaused,
		Timestamp:        uint64(event.Timestamp.UnixMilli()),
	})
	s.dropOverflowed(s.reg.Broadcast(payload))
}

func (s *ConsumerServer) dropOverflowed(ids []string) {
	for _, id := range ids {
		s.log.Warn("consumer: %v, disconnecting client %s", domain.ErrSlowClient, id)
		s.reg.Evict(id, "slow consumer")
	}
}
