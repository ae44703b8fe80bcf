package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/opd-ai/filedrop"
	"github.com/opd-ai/filedrop/file"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// errSendCancelled is returned when the user interrupts a send.
var errSendCancelled = errors.New("send cancelled")

// SendFlags holds the send command's own flags.
type SendFlags struct {
	FilePath    string
	WaitForPeer time.Duration
}

var sendFlags SendFlags

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Broadcast a file to everyone in the channel",
	Long: `Join the channel, broadcast one file and leave.

Press Ctrl-C to cancel. A send that has started writing its data cannot be
taken back, but one still announcing its name is stopped.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		sendFlags.FilePath = viper.GetString("send.file")
		sendFlags.WaitForPeer = viper.GetDuration("send.wait")
		return validateSendFlags(&sendFlags)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSend(cmd, &sendFlags)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringP("file", "f", "", "path to the file to send (required)")
	sendCmd.Flags().Duration("wait", 10*time.Second, "how long to wait for another participant before sending (0 sends at once)")

	_ = viper.BindPFlag("send.file", sendCmd.Flags().Lookup("file"))
	_ = viper.BindPFlag("send.wait", sendCmd.Flags().Lookup("wait"))
}

// validateSendFlags validates the send command flags
func validateSendFlags(flags *SendFlags) error {
	if flags.FilePath == "" {
		return fmt.Errorf("file path is required")
	}
	info, err := os.Stat(flags.FilePath)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", flags.FilePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", flags.FilePath)
	}
	if flags.WaitForPeer < 0 {
		return fmt.Errorf("wait must not be negative")
	}
	return nil
}

func runSend(cmd *cobra.Command, flags *SendFlags) error {
	ctx, stop := signalContext()
	defer stop()

	fd, err := filedrop.New(ctx, joinOptions())
	if err != nil {
		return err
	}
	defer fd.Close()

	if flags.WaitForPeer > 0 && !waitForPeer(ctx, fd, flags.WaitForPeer) {
		logrus.WithFields(logrus.Fields{
			"function": "runSend",
			"waited":   flags.WaitForPeer.String(),
		}).Warn("No other participant joined, sending anyway")
	}

	return sendFile(ctx, fd, flags.FilePath, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// waitForPeer polls until someone other than the local participant is
// present. It reports whether one showed up.
func waitForPeer(ctx context.Context, fd *filedrop.FileDrop, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if len(fd.Peers()) > 1 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// sendFile broadcasts path and blocks until the send finishes. Cancelling
// ctx requests CancelSend and still waits for the outcome.
func sendFile(ctx context.Context, fd *filedrop.FileDrop, path string, out, progressOut io.Writer) error {
	progress := newProgressReporter(progressOut, filepath.Base(path))
	fd.OnProgress(progress.update)

	result := make(chan error, 1)
	fd.OnSendCompleted(func(outcome file.Outcome, err error) {
		progress.finish()
		switch outcome {
		case file.OutcomeCompleted:
			result <- nil
		case file.OutcomeCancelled:
			result <- errSendCancelled
		default:
			result <- err
		}
	})

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if err := fd.SendFile(path); err != nil {
		return err
	}

	select {
	case err = <-result:
	case <-ctx.Done():
		if cancelErr := fd.CancelSend(); cancelErr != nil && !errors.Is(cancelErr, file.ErrNothingToCancel) {
			return cancelErr
		}
		err = <-result
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Sent %s (%s) to %d participant(s)\n",
		filepath.Base(path), humanize.Bytes(uint64(info.Size())), len(fd.Peers())-1)
	return nil
}

// progressReporter draws a progress bar once the channel reports the
// segment count.
type progressReporter struct {
	out         io.Writer
	description string
	bar         *progressbar.ProgressBar
	mu          sync.Mutex
}

func newProgressReporter(out io.Writer, description string) *progressReporter {
	return &progressReporter{out: out, description: description}
}

func (p *progressReporter) update(current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription(p.description),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(current)
}

func (p *progressReporter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
