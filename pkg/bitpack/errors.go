package bitpack

import "errors"

var (
	// ErrInvalidWidth is returned when a field width is outside 1..32 bits.
	// It indicates a programming error in the caller, not bad input.
	ErrInvalidWidth = errors.New("bitpack: bit width out of range")

	// ErrBufferFull is returned when a write does not fit in the backing buffer.
	ErrBufferFull = errors.New("bitpack: buffer full")

	// ErrOverrun is returned when a read would consume more bits than the
	// stream holds.
	ErrOverrun = errors.New("bitpack: read past end of stream")

	// ErrBadPadding is returned when alignment padding contains set bits.
	ErrBadPadding = errors.New("bitpack: non-zero alignment padding")

	// ErrNotAligned is returned by byte-level operations on a stream that is
	// not on a byte boundary.
	ErrNotAligned = errors.New("bitpack: stream not byte aligned")
)
