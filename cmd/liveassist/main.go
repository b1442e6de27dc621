package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/CBA-LAD365/liveassist-botsdk-go/pkg/config"
)

var (
	flagConfigFile string
	flagLogLevel   string
	flagAccountID  string

	settings *config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "liveassist",
	Short: "liveassist talks to the LiveAssist chat escalation service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load()
		if err != nil {
			return err
		}
		if flagConfigFile != "" {
			if err := s.MergeFile(flagConfigFile); err != nil {
				return err
			}
		}
		if flagLogLevel != "" {
			s.LogLevel = flagLogLevel
		}
		if flagAccountID != "" {
			s.AccountID = flagAccountID
		}
		settings = s
		initLogger(s)
		return nil
	},
}

func initLogger(s *config.Settings) {
	zerolog.SetGlobalLevel(s.ParseLevel())
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "YAML config file overlaying LA_* environment settings")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagAccountID, "account-id", "", "LiveAssist account id")

	rootCmd.AddCommand(newAvailabilityCommand())
	rootCmd.AddCommand(newChatCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
