package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opd-ai/filedrop"
	"github.com/opd-ai/filedrop/factory"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "filedrop",
	Short: "Drop files into a shared channel",
	Long: `filedrop broadcasts files to everyone connected to the same relay.

Usage:
  Run a relay:      filedrop relay --listen :7420
  Send a file:      filedrop send --relay host:7420 --name alice --file ./a.txt
  Receive files:    filedrop receive --relay host:7420 --name bob --dir ./inbox
  List history:     filedrop history --db filedrop.db

Every flag can also be set as FILEDROP_<FLAG> in the environment or in
$HOME/.filedrop.yaml.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initConfig()
		return configureLogging(viper.GetString("log-level"), viper.GetString("log-format"))
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.filedrop.yaml)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("relay", factory.DefaultRelayAddress, "relay address")
	flags.String("name", "", "display name shown to other participants")
	flags.Int("write-timeout", 5000, "write timeout in milliseconds")
	flags.Int("segment-size", 32*1024, "progress segment size in bytes")

	for _, name := range []string{"log-level", "log-format", "relay", "name", "write-timeout", "segment-size"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	viper.SetEnvPrefix("FILEDROP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "initConfig",
				"error":    err.Error(),
			}).Debug("Could not find home directory")
			return
		}
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".filedrop")
	}

	if err := viper.ReadInConfig(); err == nil {
		logrus.WithFields(logrus.Fields{
			"function": "initConfig",
			"file":     viper.ConfigFileUsed(),
		}).Info("Using config file")
	}
}

// configureLogging applies the log level and format to the standard logger.
func configureLogging(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q: want text or json", format)
	}
	return nil
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// joinOptions builds facade options from the bound flags.
func joinOptions() *filedrop.Options {
	opts := filedrop.NewOptions()
	opts.DisplayName = viper.GetString("name")
	opts.RelayAddress = viper.GetString("relay")
	opts.WriteTimeout = time.Duration(viper.GetInt("write-timeout")) * time.Millisecond
	opts.SegmentSize = viper.GetInt("segment-size")
	return opts
}
