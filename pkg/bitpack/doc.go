// Package bitpack reads and writes fields of arbitrary bit width.
//
// A Writer accumulates fields in a 64-bit scratch register and flushes whole
// 32-bit words to the backing buffer as they fill. Fields are packed from the
// least significant bit upward and words are stored little-endian, so a stream
// of bytes produced by a Writer can be consumed by a Reader in the same order:
//
//	w := bitpack.NewWriter(buf)
//	w.WriteBits(3, 2)
//	w.WriteBits(100, 7)
//	w.AlignToByte()
//	w.WriteBytes([]byte("hi"))
//	w.Flush()
//
//	r := bitpack.NewReader(buf[:w.BytesWritten()])
//	a, _ := r.ReadBits(2)
//	b, _ := r.ReadBits(7)
//	r.AlignToByte() // fails with ErrBadPadding if the pad bits are not zero
//	s, _ := r.ReadBytes(2)
//
// Alignment padding is always zero on write and is validated on read, which
// gives the decoder a cheap corruption check at every alignment point.
//
// Neither type is safe for concurrent use. Both are cheap to create and are
// meant to live for a single encode or decode call.
package bitpack
