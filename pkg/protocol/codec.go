package protocol

import (
	"fmt"
	"reflect"

	"github.com/dbechrd/slimerrt/pkg/bitpack"
)

// SerializeTo encodes m into buf and returns the number of bytes produced.
//
// Layout: [kind: KindBits][align][variant fields][flush]. The byte count is
// exact, not rounded to a storage word.
func SerializeTo(buf []byte, m Message) (int, error) {
	if m == nil || reflect.ValueOf(m).IsNil() {
		return 0, ErrNilMessage
	}
	k := m.Kind()

	w := bitpack.NewWriter(buf)
	s := &writeStream{w: w}

	kind := uint32(k)
	if err := s.bits(&kind, KindBits); err != nil {
		return 0, fmt.Errorf("protocol: serialize %s: %w", k, err)
	}
	if err := s.align(); err != nil {
		return 0, fmt.Errorf("protocol: serialize %s: %w", k, err)
	}
	if err := m.serialize(s); err != nil {
		return 0, fmt.Errorf("protocol: serialize %s: %w", k, err)
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("protocol: serialize %s: %w", k, err)
	}
	return w.BytesWritten(), nil
}

// Serialize encodes m into a newly allocated slice of exactly the encoded size.
func Serialize(m Message) ([]byte, error) {
	var scratch [MaxPacketSize]byte
	n, err := SerializeTo(scratch[:], m)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, scratch[:n])
	return out, nil
}

// Deserialize decodes one message from data. Any error is a *DecodeError and
// means the whole packet must be dropped. The returned message owns all of its
// memory; data may be reused once Deserialize returns.
func Deserialize(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: ErrEmptyPacket}
	}
	if len(data) > MaxPacketSize {
		return nil, &DecodeError{Err: ErrPacketTooLarge}
	}

	r := bitpack.NewReader(data)
	s := &readStream{r: r}

	var kind uint32
	if err := s.bits(&kind, KindBits); err != nil {
		return nil, &DecodeError{Err: err}
	}
	k := Kind(kind)
	m := newMessage(k)
	if m == nil {
		return nil, &DecodeError{Kind: k, Err: fmt.Errorf("%w: %d", ErrUnknownKind, kind)}
	}
	if err := s.align(); err != nil {
		return nil, &DecodeError{Kind: k, Err: err}
	}
	if err := m.serialize(s); err != nil {
		return nil, &DecodeError{Kind: k, Err: err}
	}
	// The writer pads the final byte with zeros; anything else is corruption.
	if err := s.align(); err != nil {
		return nil, &DecodeError{Kind: k, Err: err}
	}
	if r.BitsRemaining() != 0 {
		return nil, &DecodeError{Kind: k, Err: ErrTrailingData}
	}
	return m, nil
}

// PeekKind returns the discriminant of an encoded message without decoding it.
func PeekKind(data []byte) Kind {
	if len(data) == 0 {
		return KindUnknown
	}
	k := Kind(data[0] & (1<<KindBits - 1))
	if !k.Valid() {
		return KindUnknown
	}
	return k
}
