package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// lengthPrefixSize is the size of the big-endian length header before each envelope.
const lengthPrefixSize = 4

// WriteEnvelope writes a length-prefixed envelope to w in a single write.
func WriteEnvelope(w io.Writer, env *Envelope) error {
	message, err := frameEnvelope(env)
	if err != nil {
		return err
	}
	_, err = w.Write(message)
	return err
}

// WriteEnvelopeSegmented writes a length-prefixed envelope to w in chunks of at
// most segmentSize bytes and calls progress after every chunk with the number
// of chunks written so far and the total chunk count. A nil progress is allowed.
func WriteEnvelopeSegmented(w io.Writer, env *Envelope, segmentSize int, progress func(current, total int)) error {
	if segmentSize <= 0 {
		return fmt.Errorf("segment size must be positive, got %d", segmentSize)
	}

	message, err := frameEnvelope(env)
	if err != nil {
		return err
	}

	total := (len(message) + segmentSize - 1) / segmentSize
	for i := 0; i < total; i++ {
		start := i * segmentSize
		end := start + segmentSize
		if end > len(message) {
			end = len(message)
		}
		if _, err := w.Write(message[start:end]); err != nil {
			return fmt.Errorf("write segment %d/%d: %w", i+1, total, err)
		}
		if progress != nil {
			progress(i+1, total)
		}
	}
	return nil
}

// ReadEnvelope reads one length-prefixed envelope from r. Partial reads are
// retried until the whole message is available.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	header := make([]byte, lengthPrefixSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header)
	if length > MaxEnvelopeSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrEnvelopeTooLarge, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read envelope body: %w", err)
	}

	return UnmarshalEnvelope(body)
}

// frameEnvelope returns the envelope body with its 4-byte length prefix.
func frameEnvelope(env *Envelope) ([]byte, error) {
	body, err := env.MarshalBinary()
	if err != nil {
		return nil, err
	}

	message := make([]byte, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(message[:lengthPrefixSize], uint32(len(body)))
	copy(message[lengthPrefixSize:], body)
	return message, nil
}
