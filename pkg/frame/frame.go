// Package frame converts between a byte stream and length-prefixed message frames.
//
// A frame is a 4-byte big-endian header followed by exactly `length` bytes of
// opaque payload.  The high bit of the header is a reserved flag (the XDR record
// marking "last fragment" bit) and is never part of the length.
package frame

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// HeaderSize is the length of a frame header in bytes
	HeaderSize = 4

	// MaxMessageSize is the default upper bound on a frame body
	MaxMessageSize = 0x1000000

	// ReservedBit is the flag carried in the high bit of the header
	ReservedBit = 0x80000000

	lengthMask = 0x7fffffff
)

var (
	// ErrFrameTooLarge is returned when a header declares a body larger than the limit.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrShortHeader is returned when fewer than HeaderSize bytes are supplied.
	ErrShortHeader = errors.New("short header")
)

// Header is the on-wire frame header
type Header [HeaderSize]byte

// EncodeHeader writes n big-endian into a header.  The reserved bit is clear.
// The caller guarantees 0 <= n <= MaxMessageSize.
func EncodeHeader(n int) (h Header) {
	binary.BigEndian.PutUint32(h[:], uint32(n)&lengthMask)
	return
}

// EncodeHeaderFlagged is EncodeHeader with the reserved bit set.
func EncodeHeaderFlagged(n int) (h Header) {
	binary.BigEndian.PutUint32(h[:], uint32(n)&lengthMask|ReservedBit)
	return
}

// DecodeHeader decodes a header against MaxMessageSize.
func DecodeHeader(b []byte) (int, error) {
	return DecodeHeaderMax(b, MaxMessageSize)
}

// DecodeHeaderMax masks the reserved bit and returns the body length.  Lengths
// above max are rejected with ErrFrameTooLarge.
func DecodeHeaderMax(b []byte, max int) (int, error) {
	if len(b) < HeaderSize {
		return 0, ErrShortHeader
	}

	length := int64(binary.BigEndian.Uint32(b) & lengthMask)
	if length < 0 || length > int64(max) {
		return 0, errors.Wrapf(ErrFrameTooLarge, "declared %d, limit %d", length, max)
	}

	return int(length), nil
}

// Append a complete frame for payload to dst.
func Append(dst, payload []byte, flagged bool) []byte {
	h := EncodeHeader(len(payload))
	if flagged {
		h = EncodeHeaderFlagged(len(payload))
	}

	dst = append(dst, h[:]...)
	return append(dst, payload...)
}

// WriteFrame writes payload to w as a single frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return errors.Wrapf(ErrFrameTooLarge, "payload %d", len(payload))
	}

	_, err := w.Write(Append(make([]byte, 0, HeaderSize+len(payload)), payload, false))
	return errors.Wrap(err, "write frame")
}

// ReadFrame reads exactly one frame from r and returns its body.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var h Header
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return nil, err
	}

	n, err := DecodeHeaderMax(h[:], max)
	if err != nil {
		return nil, err
	}

	body := make([]byte, n)
	if _, err = io.ReadFull(r, body); err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	return body, nil
}
