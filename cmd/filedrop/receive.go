package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/opd-ai/filedrop"
	"github.com/opd-ai/filedrop/file"
	"github.com/opd-ai/filedrop/history"
	"github.com/opd-ai/filedrop/interfaces"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ReceiveFlags holds the receive command's own flags.
type ReceiveFlags struct {
	Dir    string
	DBPath string
	Count  int
}

var receiveFlags ReceiveFlags

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Save every file dropped into the channel",
	Long: `Join the channel and save each file other participants send into --dir.

Existing files are never overwritten; a numbered name is picked instead.
With --db every saved file is recorded for the history command.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		receiveFlags.Dir = viper.GetString("receive.dir")
		receiveFlags.DBPath = viper.GetString("receive.db")
		receiveFlags.Count = viper.GetInt("receive.count")
		return validateReceiveFlags(&receiveFlags)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReceive(cmd, &receiveFlags)
	},
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().String("dir", ".", "directory to save received files into")
	receiveCmd.Flags().String("db", "", "history database to record received files in")
	receiveCmd.Flags().Int("count", 0, "exit after this many files (0 keeps running)")

	_ = viper.BindPFlag("receive.dir", receiveCmd.Flags().Lookup("dir"))
	_ = viper.BindPFlag("receive.db", receiveCmd.Flags().Lookup("db"))
	_ = viper.BindPFlag("receive.count", receiveCmd.Flags().Lookup("count"))
}

// validateReceiveFlags validates the receive command flags
func validateReceiveFlags(flags *ReceiveFlags) error {
	if flags.Dir == "" {
		return fmt.Errorf("directory is required")
	}
	if _, err := file.ValidatePath(flags.Dir); err != nil {
		return err
	}
	if flags.Count < 0 {
		return fmt.Errorf("count must not be negative")
	}
	return nil
}

func runReceive(cmd *cobra.Command, flags *ReceiveFlags) error {
	ctx, stop := signalContext()
	defer stop()

	var store *history.Store
	if flags.DBPath != "" {
		var err error
		store, err = history.Open(flags.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	fd, err := filedrop.New(ctx, joinOptions())
	if err != nil {
		return err
	}
	defer fd.Close()

	r := newReceiver(fd, flags.Dir, store, flags.Count, cmd.OutOrStdout())
	r.attach()

	fmt.Fprintf(cmd.OutOrStdout(), "Joined as %s, saving into %s\n", fd.PeerLabel(fd.SelfID()), flags.Dir)
	return r.run(ctx)
}

// receiver saves completed transfers and reports channel activity.
type receiver struct {
	fd    *filedrop.FileDrop
	dir   string
	store *history.Store
	limit int
	out   io.Writer

	mu    sync.Mutex
	saved int
	done  chan struct{}
	lost  chan error
}

func newReceiver(fd *filedrop.FileDrop, dir string, store *history.Store, limit int, out io.Writer) *receiver {
	return &receiver{
		fd:    fd,
		dir:   dir,
		store: store,
		limit: limit,
		out:   out,
		done:  make(chan struct{}),
		lost:  make(chan error, 1),
	}
}

func (r *receiver) attach() {
	r.fd.OnPeerJoined(func(_ interfaces.PeerID, name string) {
		r.printf("%s joined\n", name)
	})
	r.fd.OnPeerLeft(func(_ interfaces.PeerID, name string) {
		r.printf("%s left\n", name)
	})
	r.fd.OnFileAnnounced(func(_ interfaces.PeerID, sender, fileName string) {
		r.printf("%s is sending %s\n", sender, fileName)
	})
	r.fd.OnTransferCancelled(func(_ interfaces.PeerID, sender string) {
		r.printf("Transfer from %s cancelled\n", sender)
	})
	r.fd.OnFileReceived(func(id interfaces.PeerID, sender, fileName string, data []byte) {
		if err := r.handleFile(id, sender, fileName, data); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "receiver.handleFile",
				"sender":    sender,
				"file_name": fileName,
				"error":     err.Error(),
			}).Error("Failed to save received file")
			r.printf("Could not save %s from %s: %v\n", fileName, sender, err)
		}
	})
	r.fd.OnDisconnected(func(err error) {
		select {
		case r.lost <- err:
		default:
		}
	})
}

// run blocks until ctx is done, the file limit is reached or the channel
// connection is lost.
func (r *receiver) run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-r.done:
		return nil
	case err := <-r.lost:
		return fmt.Errorf("lost connection to relay: %w", err)
	}
}

// handleFile saves one completed transfer, records it and drops it from
// memory.
func (r *receiver) handleFile(id interfaces.PeerID, sender, fileName string, data []byte) error {
	transfer := file.InboundTransfer{
		SenderID: id,
		FileName: fileName,
		Data:     data,
		State:    file.TransferStateComplete,
	}
	path, err := file.SaveTo(r.dir, transfer)
	if err != nil {
		return err
	}
	r.fd.Discard(id)

	if r.store != nil {
		rec := history.NewRecord(sender, fileName, data, path, time.Now())
		if err := r.store.Add(context.Background(), rec); err != nil {
			return err
		}
	}

	r.printf("Saved %s from %s (%s) to %s\n", fileName, sender, humanize.Bytes(uint64(len(data))), path)

	r.mu.Lock()
	r.saved++
	reached := r.limit > 0 && r.saved == r.limit
	r.mu.Unlock()
	if reached {
		close(r.done)
	}
	return nil
}

func (r *receiver) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}
