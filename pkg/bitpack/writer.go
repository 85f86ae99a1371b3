package bitpack

// WordBits is the width of a storage word.
const WordBits = 32

// Writer packs bit fields into a caller-supplied buffer.
type Writer struct {
	buf         []byte
	scratch     uint64 // pending bits, low bits first
	scratchBits uint   // valid bits in scratch, always < 32 after a write
	wordIndex   int    // next storage word to flush
	bitsWritten int
}

// NewWriter returns a Writer that packs into buf.
// The writer never grows buf; writes past its end fail with ErrBufferFull.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// Reset discards all state and starts writing into buf.
func (w *Writer) Reset(buf []byte) {
	*w = Writer{buf: buf}
}

// WriteBits writes the low width bits of value.
func (w *Writer) WriteBits(value uint32, width uint) error {
	if width == 0 || width > WordBits {
		return ErrInvalidWidth
	}
	if w.bitsWritten+int(width) > len(w.buf)*8 {
		return ErrBufferFull
	}

	v := uint64(value) & (uint64(1)<<width - 1)
	w.scratch |= v << w.scratchBits
	w.scratchBits += width
	w.bitsWritten += int(width)

	if w.scratchBits >= WordBits {
		w.flushWord()
	}
	return nil
}

// WriteBool writes a single bit.
func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteBits(1, 1)
	}
	return w.WriteBits(0, 1)
}

// AlignToByte pads with zero bits up to the next byte boundary.
func (w *Writer) AlignToByte() error {
	rem := w.bitsWritten % 8
	if rem == 0 {
		return nil
	}
	return w.WriteBits(0, uint(8-rem))
}

// WriteBytes copies data into the stream. The stream must be byte aligned.
func (w *Writer) WriteBytes(data []byte) error {
	if w.bitsWritten%8 != 0 {
		return ErrNotAligned
	}
	if w.bitsWritten+len(data)*8 > len(w.buf)*8 {
		return ErrBufferFull
	}
	for _, b := range data {
		if err := w.WriteBits(uint32(b), 8); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes any partially filled word to the buffer. Only the bytes that
// hold written bits are touched, so BytesWritten is exact after a flush.
// Flush does not consume the scratch register; writing may continue after it.
func (w *Writer) Flush() error {
	if w.scratchBits == 0 {
		return nil
	}
	off := w.wordIndex * 4
	n := int(w.scratchBits+7) / 8
	if off+n > len(w.buf) {
		return ErrBufferFull
	}
	word := w.scratch
	for i := 0; i < n; i++ {
		w.buf[off+i] = byte(word)
		word >>= 8
	}
	return nil
}

// BitsWritten returns the number of bits written so far.
func (w *Writer) BitsWritten() int {
	return w.bitsWritten
}

// BytesWritten returns the number of bytes needed to hold the written bits.
func (w *Writer) BytesWritten() int {
	return (w.bitsWritten + 7) / 8
}

// Bytes returns the written portion of the buffer. Call Flush first.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.BytesWritten()]
}

func (w *Writer) flushWord() {
	off := w.wordIndex * 4
	word := uint32(w.scratch)
	w.buf[off] = byte(word)
	w.buf[off+1] = byte(word >> 8)
	w.buf[off+2] = byte(word >> 16)
	w.buf[off+3] = byte(word >> 24)
	w.scratch >>= WordBits
	w.scratchBits -= WordBits
	w.wordIndex++
}
