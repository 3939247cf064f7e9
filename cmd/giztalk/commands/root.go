package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/giztalk/cmd/giztalk/internal/config"
)

var (
	verbose    bool
	configPath string
	envFile    string

	globalConfig  *config.Config
	configLoadErr error
)

var rootCmd = &cobra.Command{
	Use:   "giztalk",
	Short: "Korean conversational AI: realtime voice, text chat and credits",
	Long: `giztalk - Korean conversational AI over OpenAI Realtime.

The server exposes the HTTP API used by the web app: realtime credentials,
text chat, conversation history, credits and Toss payments. The call command
holds a voice conversation from the terminal against a running server.

Configuration is read from the OS config directory:
  macOS:   ~/Library/Application Support/giztalk/config.yaml
  Linux:   ~/.config/giztalk/config.yaml
  Windows: %AppData%/giztalk/config.yaml

A .env file in the working directory and the environment variables
OPENAI_API_KEY, DATABASE_URL, TOSS_PAYMENTS_SECRET_KEY, CREDITS_PER_5000_WON
and PUBLIC_APP_URL override the file.

Examples:
  giztalk config set openai.api_key sk-...
  giztalk serve
  giztalk call --style counseling --mic hello.ogg --record`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		initConfig()
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is the OS config dir)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load")
}

// initConfig loads the configuration. Errors are kept for GetConfig so
// commands that do not need it, like version, still run.
func initConfig() {
	globalConfig, configLoadErr = nil, nil
	if err := config.LoadDotEnv(envFile); err != nil {
		configLoadErr = err
		return
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		configLoadErr = err
		return
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// GetConfig returns the loaded configuration.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		initConfig()
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}
