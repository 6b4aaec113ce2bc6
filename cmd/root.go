/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"jeev/pkg/config"
	"jeev/pkg/logger"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jeev",
	Short: "A chat bot host with pluggable units",
	Long: `Jeev connects a chat transport (console or Telegram) to a set of
compiled-in units that listen, respond and run background work.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./jeev.{json,yaml,yml,toml} or $JEEV_CONFIG)")
}

func loadConfig() (*config.Config, error) {
	if path := strings.TrimSpace(configPath); path != "" {
		return config.LoadFile(path)
	}
	return config.LoadConfig()
}

// newLogger builds the process logger. An empty logFile sends logs to
// fallback; otherwise logs are appended to the file.
func newLogger(cfg config.LoggingConfig, logFile string, fallback io.Writer) (*slog.Logger, func(), error) {
	if strings.TrimSpace(logFile) == "" {
		log, err := logger.New(cfg, fallback)
		return log, func() {}, err
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	log, err := logger.New(cfg, file)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	return log, func() { _ = file.Close() }, nil
}
