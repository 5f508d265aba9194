package main

import (
	"fmt"
	"os"

	"github.com/lthibault/peerwire/pkg/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	listen   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "peerwire",
	Short: "Overlay peer node",
	Long: `peerwire accepts and initiates framed peer connections, performs the
hello handshake, gossips peer lists and relays data messages.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		if cfg, err = config.Load(cfgFile); err != nil {
			return errors.Wrap(err, "load config")
		}

		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if listen != "" {
			cfg.Listen = listen
		}

		return cfg.Validate()
	},
}

// Execute the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "peerwire.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level")
	rootCmd.PersistentFlags().StringVarP(&listen, "listen", "l", "", "override listen address")
}
