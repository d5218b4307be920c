// Package protocol implements the framed wire format used on every dcclink channel.
//
// It solves TCP's sticky packet problem with a fixed-size 10-character header
// followed by a variable-length body. The header is the body length written as
// decimal ASCII, zero-padded to 10 characters; the body is UTF-8 encoded JSON.
// The receiver reads the header first to learn the body length, then reads
// exactly that many bytes.
//
// Frame format:
//
//	0                10
//	┌────────────────┬────────────────┐
//	│  "0000000042"  │    body ...    │
//	│ length, ASCII  │ length bytes   │
//	└────────────────┴────────────────┘
//
// The length counts bytes after UTF-8 encoding, not characters. Measuring the
// pre-encoding character count truncates any body containing multi-byte runes,
// so encoding always happens first and the length is taken from the result.
package protocol

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// HeaderSize is the fixed length of the ASCII decimal header.
const HeaderSize = 10

// FramingError reports a header that does not parse as a non-negative decimal
// integer. It is a protocol violation, distinct from timeouts and disconnects:
// the receiver must purge its input buffer before reading anything further.
type FramingError struct {
	Header []byte
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("invalid frame header: %q", e.Header)
}

// EncodeFrame returns the complete frame for body: header + body.
// The header is always zero-padded on encode; see ParseHeader for what is
// accepted on decode.
func EncodeFrame(body []byte) []byte {
	frame := make([]byte, 0, HeaderSize+len(body))
	frame = append(frame, fmt.Sprintf("%0*d", HeaderSize, len(body))...)
	frame = append(frame, body...)
	return frame
}

// WriteFrame writes a complete frame (header + body) to w.
// The caller must hold a write lock if multiple goroutines share the same
// writer, otherwise frames interleave and corrupt the stream.
func WriteFrame(w io.Writer, body []byte) error {
	_, err := w.Write(EncodeFrame(body))
	return err
}

// ParseHeader parses the 10-character length header and returns the declared
// body length. Historic peers space-pad the header instead of zero-padding it,
// so leading whitespace is tolerated; anything else that is not a non-negative
// decimal integer is a *FramingError.
func ParseHeader(header []byte) (int, error) {
	if len(header) != HeaderSize {
		return 0, &FramingError{Header: header}
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(header)))
	if err != nil || n < 0 {
		return 0, &FramingError{Header: header}
	}
	return n, nil
}

// ReadFrame reads one complete frame from r and returns the body.
// io.ReadFull guarantees exactly N bytes per read, so arbitrarily fragmented
// delivery (including one byte at a time) reassembles correctly.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	bodyLen, err := ParseHeader(header)
	if err != nil {
		return nil, err
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
