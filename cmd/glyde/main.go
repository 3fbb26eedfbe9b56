package main

import (
	"fmt"
	"os"

	"github.com/TensoriumAi/Glyde/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose     bool
	sessionName string
	configPath  string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "glyde",
	Short: "Glyde - remote-controlled browser sessions",
	Long: `Glyde drives a persistent browser session from the command line.

A long-running controller (glyde serve) owns the browser and listens on a
per-session Unix socket. Every other subcommand is a short-lived client that
connects to that socket, sends one command, prints the result, and exits.

Sessions are independent: each has its own socket, browser profile, saved
state, screenshots, and logs under ~/.glyde/sessions/<name>/.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig loads the config file (or defaults) and layers global flags on top.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if sessionName != "" {
		cfg.Session = sessionName
	}
	if verbose {
		cfg.Logging.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&sessionName, "session", "s", "", "Session name (default \"default\")")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.glyde/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(helpSendCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(injectCmd)
	rootCmd.AddCommand(screenshotCmd)
	rootCmd.AddCommand(clickCmd)
	rootCmd.AddCommand(typeCmd)
	rootCmd.AddCommand(urlCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(labelCmd)
	rootCmd.AddCommand(auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
