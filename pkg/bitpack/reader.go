package bitpack

// Reader unpacks bit fields written by a Writer.
type Reader struct {
	buf         []byte
	scratch     uint64
	scratchBits uint
	wordIndex   int
	totalBits   int
	bitsRead    int
}

// NewReader returns a Reader over data. Every bit of data is readable; the
// final partial word is treated as zero-filled.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data, totalBits: len(data) * 8}
}

// ReadBits reads a field of the given width.
func (r *Reader) ReadBits(width uint) (uint32, error) {
	if width == 0 || width > WordBits {
		return 0, ErrInvalidWidth
	}
	if r.bitsRead+int(width) > r.totalBits {
		return 0, ErrOverrun
	}

	if r.scratchBits < width {
		r.loadWord()
	}

	v := uint32(r.scratch & (uint64(1)<<width - 1))
	r.scratch >>= width
	r.scratchBits -= width
	r.bitsRead += int(width)
	return v, nil
}

// ReadBool reads a single bit.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

// AlignToByte skips to the next byte boundary. The skipped bits must be zero.
func (r *Reader) AlignToByte() error {
	rem := r.bitsRead % 8
	if rem == 0 {
		return nil
	}
	pad, err := r.ReadBits(uint(8 - rem))
	if err != nil {
		return err
	}
	if pad != 0 {
		return ErrBadPadding
	}
	return nil
}

// ReadBytes reads n raw bytes. The stream must be byte aligned.
// The returned slice is a copy and does not alias the input buffer.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if r.bitsRead%8 != 0 {
		return nil, ErrNotAligned
	}
	if n < 0 || r.bitsRead+n*8 > r.totalBits {
		return nil, ErrOverrun
	}
	out := make([]byte, n)
	for i := range out {
		v, err := r.ReadBits(8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

// BitsRead returns the number of bits consumed so far.
func (r *Reader) BitsRead() int {
	return r.bitsRead
}

// BitsRemaining returns the number of unread bits.
func (r *Reader) BitsRemaining() int {
	return r.totalBits - r.bitsRead
}

func (r *Reader) loadWord() {
	off := r.wordIndex * 4
	var word uint64
	for i := 0; i < 4 && off+i < len(r.buf); i++ {
		word |= uint64(r.buf[off+i]) << (8 * i)
	}
	r.scratch |= word << r.scratchBits
	r.scratchBits += WordBits
	r.wordIndex++
}
