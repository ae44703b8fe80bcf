// Package limits provides centralized size and name limits for filedrop.
// This ensures consistent validation across the coordinator and the channels.
package limits

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxFileNameLength is the longest file name, in bytes, a sender may announce.
	// This matches the common filesystem limit for a single path component.
	MaxFileNameLength = 255

	// MaxFrameSize is the largest frame a relay channel can carry
	// (the relay envelope limit minus its 5-byte header).
	MaxFrameSize = 64<<20 - 5

	// MaxFileSize is the largest file BeginSend accepts. It leaves headroom for
	// the frame discriminator and for worst-case compression expansion.
	MaxFileSize = 60 << 20
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")

	// ErrInvalidFileName indicates a file name that cannot be announced
	ErrInvalidFileName = errors.New("invalid file name")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateFrame validates an outbound frame against MaxFrameSize.
func ValidateFrame(frame []byte) error {
	return ValidateMessageSize(frame, MaxFrameSize)
}

// ValidateFileSize checks file contents against MaxFileSize. Empty files are valid.
func ValidateFileSize(data []byte) error {
	if len(data) > MaxFileSize {
		return fmt.Errorf("%w: file size %d exceeds limit %d", ErrMessageTooLarge, len(data), MaxFileSize)
	}
	return nil
}

// ValidateFileName checks that name is non-empty, valid UTF-8, free of NUL
// bytes and no longer than MaxFileNameLength bytes.
func ValidateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidFileName)
	}
	if len(name) > MaxFileNameLength {
		return fmt.Errorf("%w: length %d exceeds limit %d", ErrInvalidFileName, len(name), MaxFileNameLength)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidFileName)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: contains NUL byte", ErrInvalidFileName)
	}
	return nil
}
