package cmd

import (
	"os"

	"github.com/spf13/cobra"

	pkglog "github.com/AetherKnowledge/capstone/pkg/log"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "relay-client",
	Short: "Command-line client for the chat relay",
	Long: `relay-client talks to a chat relay over its websocket endpoint.

Available commands:
  connect    Join a chat, send stdin lines as messages and print what arrives
  token      Mint a development identity token

Use "relay-client [command] --help" for more information about a specific command.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		pkglog.Init(pkglog.Config{
			Level:       logLevel,
			Pretty:      true,
			ServiceName: "relay-client",
			Output:      os.Stderr,
		})
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
