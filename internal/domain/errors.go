package domain

import "errors"

// Sentinel errors for the abstract error kinds used across the gateway.
// Components compare against these with errors.Is rather than inspecting
// message text.
var (
	ErrDeviceOpenFailed    = errors.New("audio device open failed")
	ErrDeviceRuntimeError  = errors.New("audio device runtime error")
	ErrModelLoadError      = errors.New("model load error")
	ErrModelInferenceError = errors.New("model inference error")
	ErrQueueOverflow       = errors.New("queue overflow")
	ErrClientProtocolError = errors.New("client protocol error")
	ErrSlowClient          = errors.New("slow consumer")
	ErrDuplicateProducer   = errors.New("producer already connected")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
)
