package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/opd-ai/filedrop/interfaces"
	"github.com/sirupsen/logrus"
)

var (
	// ErrBusy is returned by BeginSend while another send is in flight.
	ErrBusy = errors.New("send already in progress")

	// ErrNothingToCancel is returned by CancelSend when no send is in flight.
	ErrNothingToCancel = errors.New("no send in progress")

	// ErrSendFailed wraps the channel error that aborted a send.
	ErrSendFailed = errors.New("send failed")

	// ErrTransferNotFound indicates there is no transfer for the given peer.
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrTransferIncomplete indicates the file data has not arrived yet.
	ErrTransferIncomplete = errors.New("transfer incomplete")

	// ErrDirectoryTraversal indicates an attempt to access files outside allowed directories.
	ErrDirectoryTraversal = errors.New("path contains directory traversal")
)

// maxNameCollisions bounds the "name (n).ext" attempts made by SaveTo.
const maxNameCollisions = 1000

// TransferState represents the state of an inbound transfer.
type TransferState uint8

const (
	// TransferStateAnnounced indicates the file name arrived but no data yet.
	TransferStateAnnounced TransferState = iota + 1
	// TransferStateComplete indicates the file data arrived and was decompressed.
	TransferStateComplete
)

// String returns the state name.
func (s TransferState) String() string {
	switch s {
	case TransferStateAnnounced:
		return "announced"
	case TransferStateComplete:
		return "complete"
	default:
		return "none"
	}
}

// SendState represents the outbound side of a coordinator.
type SendState uint8

const (
	// SendStateIdle means BeginSend will be accepted.
	SendStateIdle SendState = iota
	// SendStateSending means a send is in flight.
	SendStateSending
)

// String returns the state name.
func (s SendState) String() string {
	if s == SendStateSending {
		return "sending"
	}
	return "idle"
}

// Outcome is the result reported by SendCompleted.
type Outcome uint8

const (
	// OutcomeCompleted means both frames were broadcast.
	OutcomeCompleted Outcome = iota
	// OutcomeCancelled means CancelSend stopped the send before the data frame.
	OutcomeCancelled
	// OutcomeFailed means the channel rejected a broadcast.
	OutcomeFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// InboundTransfer is a file being received from one peer.
type InboundTransfer struct {
	SenderID    interfaces.PeerID
	FileName    string
	Data        []byte
	State       TransferState
	AnnouncedAt time.Time
	CompletedAt time.Time
}

// Size returns the number of decompressed bytes received so far.
func (t InboundTransfer) Size() int {
	return len(t.Data)
}

// OutboundTransfer is the single in-flight local send.
type OutboundTransfer struct {
	FileName  string
	Payload   []byte
	StartedAt time.Time
	cancelled atomic.Bool
}

// Cancelled reports whether CancelSend was called for this send.
func (o *OutboundTransfer) Cancelled() bool {
	return o.cancelled.Load()
}

// ValidatePath checks if a file path is safe from directory traversal attacks.
// It returns the cleaned path or an error if any component is "..". Both
// slash styles are checked since names come from remote peers.
func ValidatePath(path string) (string, error) {
	cleanedPath := filepath.Clean(path)

	parts := strings.FieldsFunc(cleanedPath, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	for _, part := range parts {
		if part == ".." {
			return "", ErrDirectoryTraversal
		}
	}

	return cleanedPath, nil
}

// SaveTo writes a completed transfer into dir under the base name the sender
// announced. An existing file is never overwritten; "name (n).ext" is tried
// instead. It returns the path written.
func SaveTo(dir string, t InboundTransfer) (string, error) {
	if t.State != TransferStateComplete {
		return "", fmt.Errorf("%w: %q from %s", ErrTransferIncomplete, t.FileName, t.SenderID)
	}

	safePath, err := ValidatePath(t.FileName)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "SaveTo",
			"sender_id": uint32(t.SenderID),
			"file_name": t.FileName,
			"error":     err.Error(),
		}).Warn("Rejected file name")
		return "", err
	}

	base := filepath.Base(strings.ReplaceAll(safePath, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("%w: %q", ErrDirectoryTraversal, t.FileName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 0; n < maxNameCollisions; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}
		target := filepath.Join(dir, name)

		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", target, err)
		}

		if _, err := f.Write(t.Data); err != nil {
			f.Close()
			os.Remove(target)
			return "", fmt.Errorf("write %s: %w", target, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", target, err)
		}

		logrus.WithFields(logrus.Fields{
			"function":  "SaveTo",
			"sender_id": uint32(t.SenderID),
			"path":      target,
			"size":      len(t.Data),
		}).Info("Saved received file")

		return target, nil
	}

	return "", fmt.Errorf("no free name for %q in %s", base, dir)
}
