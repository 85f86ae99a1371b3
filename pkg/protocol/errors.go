package protocol

import (
	"errors"
	"fmt"

	"github.com/dbechrd/slimerrt/pkg/bitpack"
)

// Protocol errors.
var (
	// ErrUnknownKind is returned when a packet carries a discriminant that does
	// not name a message kind.
	ErrUnknownKind = errors.New("protocol: unknown message kind")

	// ErrLengthExceeded is returned when a string, byte field or list is
	// longer than its declared maximum. It is reported on both encode and
	// decode; nothing is ever truncated to fit.
	ErrLengthExceeded = errors.New("protocol: length exceeds maximum")

	// ErrInvalidValue is returned when an enumerated field holds a value
	// outside its defined set.
	ErrInvalidValue = errors.New("protocol: invalid field value")

	// ErrEmptyPacket is returned when decoding zero bytes.
	ErrEmptyPacket = errors.New("protocol: empty packet")

	// ErrPacketTooLarge is returned when a packet exceeds MaxPacketSize.
	ErrPacketTooLarge = errors.New("protocol: packet too large")

	// ErrTrailingData is returned when bytes remain after a complete message.
	ErrTrailingData = errors.New("protocol: trailing data after message")

	// ErrNilMessage is returned when serializing a nil message.
	ErrNilMessage = errors.New("protocol: nil message")

	// ErrUnexpectedMessage is returned by handlers that receive a message kind
	// that is not valid in their direction.
	ErrUnexpectedMessage = errors.New("protocol: unexpected message kind")

	// ErrBufferFull is returned when an encoded message does not fit the
	// destination buffer.
	ErrBufferFull = bitpack.ErrBufferFull
)

// DecodeError reports a packet that could not be decoded. The packet must be
// dropped as a whole; no part of it is trustworthy.
type DecodeError struct {
	Kind Kind  // Kind named by the packet, KindUnknown if not read
	Err  error // Underlying cause
}

// Error returns the error message.
func (e *DecodeError) Error() string {
	if e.Kind == KindUnknown {
		return fmt.Sprintf("protocol: decode: %v", e.Err)
	}
	return fmt.Sprintf("protocol: decode %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err describes untrusted input that should be
// dropped, as opposed to a local programming error.
func IsMalformed(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// DecodeReason returns a short, stable label for a decode failure, suitable
// for metrics.
func DecodeReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(err, bitpack.ErrBadPadding):
		return "bad_padding"
	case errors.Is(err, ErrLengthExceeded):
		return "length_exceeded"
	case errors.Is(err, bitpack.ErrOverrun):
		return "truncated"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	case errors.Is(err, ErrTrailingData):
		return "trailing_data"
	case errors.Is(err, ErrEmptyPacket):
		return "empty"
	case errors.Is(err, ErrPacketTooLarge):
		return "too_large"
	default:
		return "other"
	}
}
