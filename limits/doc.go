// Package limits provides centralized size constants and validation functions
// for filedrop.
//
// # Limits
//
//   - MaxFileNameLength (255 bytes): the longest announced file name.
//   - MaxFrameSize: the largest frame a relay channel can carry, derived from
//     the relay's 64 MiB envelope limit.
//   - MaxFileSize (60 MiB): the largest file accepted for sending, leaving room
//     for compression overhead inside MaxFrameSize.
//
// # Validation Functions
//
//	if err := limits.ValidateFileName(name); err != nil {
//	    // errors.Is(err, limits.ErrInvalidFileName)
//	}
//
//	if err := limits.ValidateFrame(frame); err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
//
// For custom size limits, use the generic ValidateMessageSize function.
package limits
