package cmd

import (
	"fmt"
	"os"

	"github.com/killallgit/voxlog/pkg/config"
	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "voxlog",
	Short: "Voice journaling daemon for Telegram",
	Long: `voxlog - Voice journaling over Telegram

Voice notes sent to the bot are grouped into sessions, transcribed locally
with whisper.cpp and handed to a narrative pipeline once a session is done.

Features:
  • Session lifecycle driven by chat commands and inline buttons
  • Local transcription through the whisper.cpp CLI
  • Crash recovery for sessions interrupted mid-flight
  • Read-only status API and terminal session listing`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		if !cmd.Flags().Changed("log-level") {
			if configured := config.GetString("logging.level"); configured != "" {
				level = configured
			}
		}
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		return configureLogging(os.Stderr, level, jsonLogs)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates a new root command (exported for testing)
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	// Set up configuration loading with lazy initialization
	cobra.OnInitialize(loadConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config/settings.yaml)")

	// Add persistent flags for logging configuration
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "enable JSON formatted logs")
}

// loadConfig loads the configuration when a command needs it
func loadConfig() {
	// Skip config loading for commands that don't need it
	cmd, _, _ := rootCmd.Find(os.Args[1:])
	if cmd != nil && (cmd.Name() == "version" || cmd.Name() == "help") {
		return
	}

	config.SetConfigFile(cfgFile)
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}
