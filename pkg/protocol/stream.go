package protocol

import (
	"math"

	"github.com/dbechrd/slimerrt/pkg/bitpack"
)

// stream is the one interface every message walks its fields through. The
// write stream reads from the field pointers; the read stream stores into
// them. Because each message lists its fields once, in one method, the
// encoder and decoder cannot disagree on order or width.
type stream interface {
	reading() bool
	bits(v *uint32, width uint) error
	align() error
	raw(b *[]byte, n int) error
}

type writeStream struct {
	w *bitpack.Writer
}

func (s *writeStream) reading() bool { return false }

func (s *writeStream) bits(v *uint32, width uint) error {
	return s.w.WriteBits(*v, width)
}

func (s *writeStream) align() error { return s.w.AlignToByte() }

func (s *writeStream) raw(b *[]byte, n int) error {
	return s.w.WriteBytes((*b)[:n])
}

type readStream struct {
	r *bitpack.Reader
}

func (s *readStream) reading() bool { return true }

func (s *readStream) bits(v *uint32, width uint) error {
	x, err := s.r.ReadBits(width)
	*v = x
	return err
}

func (s *readStream) align() error { return s.r.AlignToByte() }

func (s *readStream) raw(b *[]byte, n int) error {
	data, err := s.r.ReadBytes(n)
	if err != nil {
		return err
	}
	*b = data
	return nil
}

// unsigned covers the integer field types used by messages.
type unsigned interface {
	~uint8 | ~uint16 | ~uint32
}

// serializeUint walks an unsigned field of the given width. A value that does
// not fit the width is rejected on write rather than masked.
func serializeUint[T unsigned](s stream, v *T, width uint) error {
	u := uint32(*v)
	if !s.reading() && width < 32 && u>>width != 0 {
		return ErrInvalidValue
	}
	if err := s.bits(&u, width); err != nil {
		return err
	}
	*v = T(u)
	return nil
}

// serializeEnum walks an enumerated field and checks it against valid in both
// directions.
func serializeEnum[T ~uint8](s stream, v *T, width uint, valid func(T) bool) error {
	if !s.reading() && !valid(*v) {
		return ErrInvalidValue
	}
	if err := serializeUint(s, v, width); err != nil {
		return err
	}
	if !valid(*v) {
		return ErrInvalidValue
	}
	return nil
}

func serializeInt16(s stream, v *int16) error {
	u := uint16(*v)
	if err := serializeUint(s, &u, 16); err != nil {
		return err
	}
	*v = int16(u)
	return nil
}

func serializeBool(s stream, v *bool) error {
	var u uint32
	if *v {
		u = 1
	}
	if err := s.bits(&u, 1); err != nil {
		return err
	}
	*v = u == 1
	return nil
}

func serializeFloat32(s stream, v *float32) error {
	u := math.Float32bits(*v)
	if err := s.bits(&u, float32Bits); err != nil {
		return err
	}
	*v = math.Float32frombits(u)
	return nil
}

// serializeLength walks a length or count field bounded by max.
func serializeLength(s stream, n *int, width uint, max int) error {
	if !s.reading() && (*n < 0 || *n > max) {
		return ErrLengthExceeded
	}
	u := uint32(*n)
	if err := s.bits(&u, width); err != nil {
		return err
	}
	if int(u) > max {
		return ErrLengthExceeded
	}
	*n = int(u)
	return nil
}

// serializeBlob walks a variable-length byte field:
// [length][align][raw bytes][align]. Zero-length fields decode as nil.
func serializeBlob(s stream, b *[]byte, width uint, max int) error {
	n := len(*b)
	if err := serializeLength(s, &n, width, max); err != nil {
		return err
	}
	if err := s.align(); err != nil {
		return err
	}
	if n == 0 {
		if s.reading() {
			*b = nil
		}
		return s.align()
	}
	if err := s.raw(b, n); err != nil {
		return err
	}
	return s.align()
}

// serializeString walks a variable-length string field. Decoded strings own
// their bytes.
func serializeString(s stream, v *string, width uint, max int) error {
	if !s.reading() && len(*v) > max {
		return ErrLengthExceeded
	}
	b := []byte(*v)
	if err := serializeBlob(s, &b, width, max); err != nil {
		return err
	}
	*v = string(b)
	return nil
}

// serializeList walks a bounded list: the count, then each element through fn.
func serializeList[T any](s stream, list *[]T, width uint, max int, fn func(stream, *T) error) error {
	n := len(*list)
	if err := serializeLength(s, &n, width, max); err != nil {
		return err
	}
	if s.reading() {
		if n == 0 {
			*list = nil
			return nil
		}
		*list = make([]T, n)
	}
	for i := range *list {
		if err := fn(s, &(*list)[i]); err != nil {
			return err
		}
	}
	return nil
}
