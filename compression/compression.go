// Package compression provides the lossless codec applied to file payloads
// before they are broadcast and after they are received.
//
// The codec is Zstandard. Compress and Decompress are stateless and safe for
// concurrent use; they share one encoder and one decoder configured for
// whole-buffer operation.
package compression

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
)

// ErrCorruptPayload is returned when input is not a valid compressed payload.
var ErrCorruptPayload = errors.New("corrupt compressed payload")

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		panic(fmt.Sprintf("compression: create zstd encoder: %v", err))
	}
	decoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic(fmt.Sprintf("compression: create zstd decoder: %v", err))
	}
}

// Compress returns the compressed form of data. Empty input still produces a
// complete frame, so a compressed payload is never empty.
func Compress(data []byte) []byte {
	out := encoder.EncodeAll(data, make([]byte, 0, len(data)/2+64))

	logrus.WithFields(logrus.Fields{
		"function":        "Compress",
		"input_size":      len(data),
		"compressed_size": len(out),
	}).Debug("Compressed payload")

	return out
}

// Decompress reverses Compress. Input that is not a valid payload yields
// ErrCorruptPayload.
func Decompress(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrCorruptPayload)
	}

	out, err := decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}
