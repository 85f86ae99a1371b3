package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dbechrd/slimerrt/pkg/chat"
	"github.com/dbechrd/slimerrt/pkg/protocol"
	"github.com/klauspost/compress/zstd"
)

// ErrCorrupt is returned when a transcript cannot be decoded.
var ErrCorrupt = errors.New("archive: corrupt transcript")

// transcriptMagic starts every uncompressed transcript. The last byte is the
// format version.
const transcriptMagic = "SLOG\x01"

// maxTranscriptSize bounds the decompressed size of one transcript.
const maxTranscriptSize = 64 << 20

var (
	sharedEncoder     *zstd.Encoder
	sharedEncoderOnce sync.Once
	sharedDecoder     *zstd.Decoder
	sharedDecoderOnce sync.Once
)

func getEncoder() *zstd.Encoder {
	sharedEncoderOnce.Do(func() {
		var err error
		sharedEncoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			panic("failed to create zstd encoder: " + err.Error())
		}
	})
	return sharedEncoder
}

func getDecoder() *zstd.Decoder {
	sharedDecoderOnce.Do(func() {
		var err error
		sharedDecoder, err = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(maxTranscriptSize),
		)
		if err != nil {
			panic("failed to create zstd decoder: " + err.Error())
		}
	})
	return sharedDecoder
}

// EncodeTranscript packs lines into a compressed transcript. Each line is
// written as
//
//	[unix millis: uvarint][length: uvarint][protocol encoding]
//
// after the magic header.
func EncodeTranscript(lines []chat.Line) ([]byte, error) {
	raw := make([]byte, 0, len(transcriptMagic)+len(lines)*64)
	raw = append(raw, transcriptMagic...)

	packet := make([]byte, protocol.MaxPacketSize)
	for i := range lines {
		msg := lines[i].Value
		n, err := protocol.SerializeTo(packet, &msg)
		if err != nil {
			return nil, fmt.Errorf("archive: line %d: %w", i, err)
		}
		raw = binary.AppendUvarint(raw, uint64(lines[i].Timestamp.UnixMilli()))
		raw = binary.AppendUvarint(raw, uint64(n))
		raw = append(raw, packet[:n]...)
	}
	return getEncoder().EncodeAll(raw, nil), nil
}

// DecodeTranscript reverses EncodeTranscript. Every line is validated by the
// protocol decoder; anything but a chat message is corrupt.
func DecodeTranscript(data []byte) ([]chat.Line, error) {
	raw, err := getDecoder().DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(raw) < len(transcriptMagic) || string(raw[:len(transcriptMagic)]) != transcriptMagic {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	raw = raw[len(transcriptMagic):]

	var lines []chat.Line
	for len(raw) > 0 {
		millis, n := binary.Uvarint(raw)
		if n <= 0 {
			return nil, fmt.Errorf("%w: line %d: bad timestamp", ErrCorrupt, len(lines))
		}
		raw = raw[n:]

		size, n := binary.Uvarint(raw)
		if n <= 0 || size > protocol.MaxPacketSize || size > uint64(len(raw)-n) {
			return nil, fmt.Errorf("%w: line %d: bad length", ErrCorrupt, len(lines))
		}
		raw = raw[n:]

		msg, err := protocol.Deserialize(raw[:size])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorrupt, len(lines), err)
		}
		cm, ok := msg.(*protocol.ChatMessage)
		if !ok {
			return nil, fmt.Errorf("%w: line %d: unexpected %s", ErrCorrupt, len(lines), msg.Kind())
		}
		raw = raw[size:]

		lines = append(lines, chat.Line{
			Value:     *cm,
			Timestamp: time.UnixMilli(int64(millis)).UTC(),
		})
	}
	return lines, nil
}
