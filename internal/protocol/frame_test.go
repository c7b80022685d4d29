package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"Audio":{"data":"abc","speechDetected":true}}`)

	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadFrame(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected %s, got %s", payload, got)
	}
}

func TestBareVariantEncodeDecode(t *testing.T) {
	payload, err := EncodeBareVariant(VariantConnected)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	name, data, err := DecodeVariant(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if name != VariantConnected {
		t.Fatalf("expected %s, got %s", VariantConnected, name)
	}
	if data != nil {
		t.Fatalf("expected no data for a bare variant, got %s", data)
	}
}

func TestTaggedVariantEncodeDecode(t *testing.T) {
	payload, err := EncodeVariant(VariantPlay, PlayData{StreamID: 100, Data: "AAAA"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	name, data, err := DecodeVariant(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if name != VariantPlay {
		t.Fatalf("expected %s, got %s", VariantPlay, name)
	}

	var play PlayData
	if err := json.Unmarshal(data, &play); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if play.StreamID != 100 || play.Data != "AAAA" {
		t.Fatalf("unexpected payload: %+v", play)
	}
}
