package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"jeev/pkg/config"
	"jeev/pkg/host"
	"jeev/pkg/option"
	"jeev/pkg/unit"
	"jeev/pkg/units"

	"github.com/spf13/cobra"
)

var runLogFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the chat host",
	Long: `Loads the configured units and connects them to the configured transport.
With the console transport logs are discarded unless --log-file is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		var fallback io.Writer = os.Stderr
		if cfg.Adapter == "" || cfg.Adapter == "console" {
			fallback = io.Discard
		}
		appLogger, closeLog, err := newLogger(cfg.Logging, runLogFile, fallback)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer closeLog()
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.run")

		catalog := units.Catalog()
		h, err := host.New(cfg, catalog, host.WithLogger(appLogger))
		if err != nil {
			return err
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("Starting host", "config", cfg.Path, "adapter", cfg.Adapter, "units", cfg.Units.Names())
		if err := h.Run(runCtx); err != nil {
			for _, line := range describeLoadError(catalog, cfg, config.OSEnviron(), err) {
				fmt.Fprintln(cmd.ErrOrStderr(), line)
			}
			return err
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "append logs to this file")
	rootCmd.AddCommand(runCmd)
}

// describeLoadError explains a failed unit load field by field, naming each
// option's description and environment variable.
func describeLoadError(catalog *unit.Catalog, cfg *config.Config, env config.Environ, err error) []string {
	var loadErr *unit.LoadError
	if !errors.As(err, &loadErr) {
		return nil
	}

	var cfgErr *option.ConfigError
	if !errors.As(loadErr.Err, &cfgErr) {
		return []string{fmt.Sprintf("unit %s failed to load: %v", loadErr.Unit, loadErr.Err)}
	}

	entry, _ := cfg.Units.Lookup(loadErr.Unit)
	set, inspectErr := catalog.Inspect(loadErr.Unit, entry.Options, env)
	if inspectErr != nil {
		set = nil
	}

	lines := []string{fmt.Sprintf("unit %s has invalid configuration:", loadErr.Unit)}
	for _, line := range option.Describe(set, cfgErr) {
		lines = append(lines, "  "+line)
	}
	return lines
}
