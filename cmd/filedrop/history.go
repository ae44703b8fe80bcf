package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/opd-ai/filedrop/history"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List files received earlier",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("history.db")
		if path == "" {
			return fmt.Errorf("database path is required")
		}
		store, err := history.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()
		return printHistory(cmd.Context(), store, viper.GetInt("history.limit"), cmd.OutOrStdout(), time.Now())
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().String("db", "filedrop.db", "history database")
	historyCmd.Flags().Int("limit", 20, "number of entries to show (0 shows all)")

	_ = viper.BindPFlag("history.db", historyCmd.Flags().Lookup("db"))
	_ = viper.BindPFlag("history.limit", historyCmd.Flags().Lookup("limit"))
}

// printHistory writes the newest records as a table.
func printHistory(ctx context.Context, store *history.Store, limit int, out io.Writer, now time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}
	records, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No files received yet")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECEIVED\tFROM\tFILE\tSIZE\tBLAKE2B")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			humanize.RelTime(rec.ReceivedAt, now, "ago", "from now"),
			rec.SenderName,
			rec.FileName,
			humanize.Bytes(uint64(rec.Size)),
			shortDigest(rec.Digest),
		)
	}
	return w.Flush()
}

func shortDigest(digest string) string {
	if len(digest) > 16 {
		return digest[:16]
	}
	return digest
}
