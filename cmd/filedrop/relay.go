package main

import (
	"fmt"

	"github.com/opd-ai/filedrop/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a relay that hosts one channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay(cmd, viper.GetString("relay.listen"))
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.Flags().String("listen", ":7420", "address to listen on")
	_ = viper.BindPFlag("relay.listen", relayCmd.Flags().Lookup("listen"))
}

func runRelay(cmd *cobra.Command, listen string) error {
	ctx, stop := signalContext()
	defer stop()

	server, err := transport.NewRelayServer(listen)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Relay listening on %s\n", server.Addr())

	<-ctx.Done()

	logrus.WithFields(logrus.Fields{
		"function": "runRelay",
		"members":  server.MemberCount(),
	}).Info("Shutting down relay")
	return server.Close()
}
