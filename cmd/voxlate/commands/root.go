package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxlate/voxlate/cmd/voxlate/internal/config"
)

var (
	// Global flags
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "voxlate",
	Short: "Voice and text translation over the OpenAI API",
	Long: `voxlate - a translation app: text, speech and live voice.

The web server exposes translation, transcription and speech routes plus a
WebRTC signaling relay for browser voice sessions. The talk command runs a
live voice session directly from the terminal.

Configuration is read from an optional YAML file (--config) with environment
overrides; the API key comes from OPENAI_API_KEY or the config file.

Examples:
  # Run the web server
  voxlate serve --addr :8080

  # Hold a live translated conversation from the terminal
  voxlate talk --target-lang German

  # Keep a recording of the remote audio
  voxlate talk --target-lang French --record out.ogg`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
}

func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// loadConfig loads and validates the configuration for commands that need
// upstream credentials.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
