package protocol

import (
	"bytes"
	"errors"
)

// Frame layout: STX, the field-delimited payload, ETX and a one-byte
// longitudinal checksum of the payload. The receiver discards through the
// checksum byte before scanning for the next frame.
const (
	STX byte = 0x02
	ETX byte = 0x03

	// trailerWidth is the number of bytes following the payload: the ETX
	// marker plus the checksum byte.
	trailerWidth = 2
)

// ErrChecksum reports a frame whose checksum byte does not match its payload.
var ErrChecksum = errors.New("protocol: frame checksum mismatch")

// lrc computes the XOR checksum over the payload bytes.
func lrc(payload []byte) byte {
	var c byte
	for _, b := range payload {
		c ^= b
	}
	return c
}

// Encode wraps a built message into a wire frame.
func Encode(msg string) []byte {
	payload := []byte(msg)
	out := make([]byte, 0, len(payload)+3)
	out = append(out, STX)
	out = append(out, payload...)
	out = append(out, ETX, lrc(payload))
	return out
}

// Decode scans buf for one complete frame. ok is false while the buffer only
// holds a partial frame; the caller should keep the bytes and retry after the
// next read. When ok is true, advance reports how many leading bytes to
// discard regardless of whether the frame was valid, so the caller can slide
// its buffer past garbage as well as past good frames. A non-nil err marks a
// frame that must be dropped.
func Decode(buf []byte) (msg string, advance int, ok bool, err error) {
	etx := bytes.IndexByte(buf, ETX)
	if etx == -1 {
		return "", 0, false, nil
	}
	if len(buf) < etx+trailerWidth {
		// ETX seen but the checksum byte has not arrived yet.
		return "", 0, false, nil
	}
	advance = etx + trailerWidth

	stx := bytes.IndexByte(buf[:etx], STX)
	if stx == -1 {
		return "", advance, true, errors.New("protocol: frame missing start marker")
	}
	payload := buf[stx+1 : etx]
	if lrc(payload) != buf[etx+1] {
		return "", advance, true, ErrChecksum
	}
	return string(payload), advance, true, nil
}
