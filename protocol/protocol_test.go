package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	body := []byte(`{"success": true, "result": "Hello World!"}`)

	// Encode into a buffer and read the frame back out
	var buf bytes.Buffer
	if err := WriteFrame(&buf, body); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	decoded, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(decoded, body) {
		t.Errorf("body mismatch: got %q, want %q", decoded, body)
	}
}

func TestEncodeFrameHeader(t *testing.T) {
	frame := EncodeFrame([]byte("hello"))

	// The header is zero-padded decimal ASCII, exactly HeaderSize bytes
	if string(frame[:HeaderSize]) != "0000000005" {
		t.Errorf("header mismatch: got %q, want %q", frame[:HeaderSize], "0000000005")
	}
	if string(frame[HeaderSize:]) != "hello" {
		t.Errorf("payload mismatch: got %q", frame[HeaderSize:])
	}
}

func TestParseHeaderSpacePadded(t *testing.T) {
	// Peers are allowed to left-pad the length with spaces instead of zeros
	n, err := ParseHeader([]byte("        42"))
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if n != 42 {
		t.Errorf("length mismatch: got %d, want 42", n)
	}
}

func TestParseHeaderInvalid(t *testing.T) {
	cases := [][]byte{
		[]byte("garbageeee"),
		[]byte("       -10"),
		[]byte("12.5      "),
	}
	for _, header := range cases {
		_, err := ParseHeader(header)
		if err == nil {
			t.Errorf("ParseHeader(%q) should have failed", header)
			continue
		}
		var ferr *FramingError
		if !errors.As(err, &ferr) {
			t.Errorf("ParseHeader(%q) returned %T, want *FramingError", header, err)
		}
	}
}

func TestReadFrameEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	body, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("expected empty body, got %q", body)
	}
}

func TestReadFrameBadHeader(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("not-a-size")
	buf.WriteString("whatever")

	_, err := ReadFrame(&buf)
	var ferr *FramingError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *FramingError, got %v", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	// Header promises 100 bytes but only 5 arrive
	var buf bytes.Buffer
	buf.WriteString("0000000100")
	buf.WriteString("short")

	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected error for truncated body")
	}
}

func TestEncodeFrameMultibyte(t *testing.T) {
	// Length counts encoded bytes, not characters
	body := []byte("héllo")
	frame := EncodeFrame(body)
	if string(frame[:HeaderSize]) != "0000000006" {
		t.Errorf("header mismatch for multibyte body: got %q", frame[:HeaderSize])
	}
}
