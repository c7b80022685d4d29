// Package protocol implements the length-prefixed, tagged-union JSON wire
// format shared by the consumer and producer servers (spec §6.1). Framing
// is [u32 little-endian length][UTF-8 JSON payload]; a variant with data
// is encoded as {"VariantName": {...}}, a variant without data as the bare
// string "VariantName". No pack example implements this exact convention
// (the closest, rustyguts-bken/server/protocol.go, uses a flat `Type`
// discriminator field instead), so this layer is built directly on the
// standard library rather than adapted from an example.
package protocol

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameLength bounds a single payload to guard against a malformed or
// hostile length prefix forcing an unbounded allocation.
const MaxFrameLength = 16 * 1024 * 1024

// WriteFrame writes a length-prefixed payload to w.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed payload from r.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxFrameLength {
		return nil, fmt.Errorf("protocol: frame length %d exceeds max %d", n, MaxFrameLength)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// EncodeVariant marshals a named variant carrying data as
// {"Name": <data>}.
func EncodeVariant(name string, data any) ([]byte, error) {
	wrapped := map[string]any{name: data}
	return json.Marshal(wrapped)
}

// EncodeBareVariant marshals a data-less variant as the bare JSON string
// "Name".
func EncodeBareVariant(name string) ([]byte, error) {
	return json.Marshal(name)
}

// DecodeVariant inspects payload and reports which variant it names and,
// for variants with data, the raw JSON of that data for the caller to
// unmarshal into a concrete type.
func DecodeVariant(payload []byte) (name string, data json.RawMessage, err error) {
	var bare string
	if err := json.Unmarshal(payload, &bare); err == nil {
		return bare, nil, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return "", nil, fmt.Errorf("protocol: not a recognized tagged-union payload: %w", err)
	}
	if len(wrapped) != 1 {
		return "", nil, fmt.Errorf("protocol: tagged-union payload must have exactly one key, got %d", len(wrapped))
	}
	for k, v := range wrapped {
		return k, v, nil
	}
	return "", nil, fmt.Errorf("protocol: unreachable")
}
