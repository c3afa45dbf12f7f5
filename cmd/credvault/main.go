package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/awnumar/memguard"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/credvault/internal/config"
	"github.com/TheMichaelB/credvault/internal/dbconn"
	"github.com/TheMichaelB/credvault/internal/events"
	"github.com/TheMichaelB/credvault/internal/profile"
	"github.com/TheMichaelB/credvault/internal/vault"
)

var rootCmd = &cobra.Command{
	Use:   "credvault",
	Short: "Manage database connection profiles and their passwords",
	Long: `credvault stores database connection profiles and keeps their passwords
out of plaintext: each password is read from an environment variable or
stored encrypted under a master key.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var (
	cfgFile    string
	jsonOutput bool
	logLevel   string

	cfg       *config.Config
	logger    *events.Logger
	store     profile.Store
	resolver  *vault.Resolver
	connector *dbconn.Connector

	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Config file (default: ./credvault.* or ~/.config/credvault/credvault.*)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	events.SetDefault(logger)
	cmd.SetContext(events.WithLogger(cmd.Context(), logger))

	store, err = profile.NewStore(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}

	resolver = vault.NewResolver(vault.WithLogger(logger))
	connector = dbconn.NewConnector(resolver, logger)

	return nil
}

// teardown releases what setup opened. Cobra skips post-run hooks when a
// command fails, so main calls it directly.
func teardown() {
	if store != nil {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close profile store")
		}
		store = nil
	}
}

func main() {
	memguard.CatchInterrupt()

	err := rootCmd.ExecuteContext(context.Background())
	teardown()
	memguard.Purge()

	if err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
		} else {
			printError("Error: %v", err)
		}
		os.Exit(1)
	}
}

var (
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

func printSuccess(format string, args ...interface{}) {
	successColor.Fprintf(stdout, format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	infoColor.Fprintf(stdout, format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	warningColor.Fprintf(stderr, format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	errorColor.Fprintf(stderr, format+"\n", args...)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		printError("encode output: %v", err)
	}
}
