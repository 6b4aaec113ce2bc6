/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"jeev/pkg/config"
	"jeev/pkg/host"
	"jeev/pkg/message"
	"jeev/pkg/transport"
	"jeev/pkg/units"

	"github.com/spf13/cobra"
)

var (
	sayText    string
	sayChannel string
	sayUser    string
	sayWait    time.Duration
	sayLogFile string
)

// sayCmd represents the say command
var sayCmd = &cobra.Command{
	Use:   "say [text]",
	Short: "Send one line to the units, or read lines from stdin",
	Long: `Loads the configured units without a chat transport, delivers one line
(or every line read from stdin) and prints the replies.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Web.Enabled = false
		cfg.Watch = false

		appLogger, closeLog, err := newLogger(cfg.Logging, sayLogFile, io.Discard)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer closeLog()

		adapter := newLineAdapter(cmd.OutOrStdout())
		catalog := units.Catalog()
		h, err := host.New(cfg, catalog, host.WithAdapter(adapter), host.WithLogger(appLogger))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := h.Start(ctx); err != nil {
			for _, line := range describeLoadError(catalog, cfg, config.OSEnviron(), err) {
				fmt.Fprintln(cmd.ErrOrStderr(), line)
			}
			return err
		}
		defer func() { _ = h.Stop() }()

		if text := resolveText(args); text != "" {
			adapter.deliver(sayChannel, sayUser, text)
			waitForReplies(ctx, sayWait)
			return nil
		}

		return runInteractive(ctx, adapter, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(sayCmd)
	sayCmd.Flags().StringVarP(&sayText, "text", "t", "", "text to send")
	sayCmd.Flags().StringVar(&sayChannel, "channel", config.DefaultConsoleChannel, "channel the text is sent in")
	sayCmd.Flags().StringVar(&sayUser, "user", config.DefaultConsoleUser, "user the text is sent as")
	sayCmd.Flags().DurationVar(&sayWait, "wait", 2*time.Second, "how long to wait for replies to a single line")
	sayCmd.Flags().StringVar(&sayLogFile, "log-file", "", "append logs to this file")
}

func resolveText(args []string) string {
	if value := strings.TrimSpace(sayText); value != "" {
		return value
	}

	return strings.TrimSpace(strings.Join(args, " "))
}

func waitForReplies(ctx context.Context, wait time.Duration) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func runInteractive(ctx context.Context, adapter *lineAdapter, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("input error: %w", err)
			}
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if isExitCommand(text) {
			return nil
		}

		adapter.deliver(sayChannel, sayUser, text)
	}
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q":
		return true
	default:
		return false
	}
}

// lineAdapter is a transport that takes lines from the caller and prints
// replies as "< [#channel] text".
type lineAdapter struct {
	mu      sync.Mutex
	out     io.Writer
	ctx     context.Context
	handler transport.Handler
}

func newLineAdapter(out io.Writer) *lineAdapter {
	return &lineAdapter{out: out}
}

func (a *lineAdapter) Name() string {
	return "cli"
}

func (a *lineAdapter) Start(ctx context.Context, handler transport.Handler) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ctx = ctx
	a.handler = handler
	return nil
}

func (a *lineAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handler == nil {
		return errors.New("cli adapter is not running")
	}
	a.handler = nil
	return nil
}

func (a *lineAdapter) SendMessage(_ context.Context, channel string, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, line := range replyLines(text) {
		if _, err := fmt.Fprintf(a.out, "< [#%s] %s\n", channel, line); err != nil {
			return err
		}
	}
	return nil
}

func (a *lineAdapter) deliver(channel string, user string, text string) {
	a.mu.Lock()
	ctx, handler := a.ctx, a.handler
	a.mu.Unlock()

	if handler == nil {
		return
	}
	handler(ctx, message.New(channel, user, text, map[string]string{"transport": "cli"}))
}

func replyLines(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "\n")
}
