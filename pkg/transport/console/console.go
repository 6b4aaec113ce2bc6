package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"jeev/pkg/config"
	"jeev/pkg/transport"

	tea "github.com/charmbracelet/bubbletea"
)

const adapterName = "console"

// Option configures the console adapter.
type Option func(*Adapter)

// WithIO replaces the terminal the program reads from and renders to.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *Adapter) {
		a.programOptions = append(a.programOptions, tea.WithInput(in), tea.WithOutput(out))
	}
}

// Adapter is an interactive terminal chat. Bot messages render as
// "< [#channel] text".
type Adapter struct {
	cfg            config.ConsoleConfig
	botName        string
	log            *slog.Logger
	programOptions []tea.ProgramOption

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
	runErr  error
}

func NewAdapter(cfg config.ConsoleConfig, botName string, log *slog.Logger, opts ...Option) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Channel == "" {
		cfg.Channel = config.DefaultConsoleChannel
	}
	if cfg.User == "" {
		cfg.User = config.DefaultConsoleUser
	}

	a := &Adapter{
		cfg:     cfg,
		botName: botName,
		log:     log.With("component", "transport.console"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string {
	return adapterName
}

// Start launches the terminal program.
func (a *Adapter) Start(ctx context.Context, handler transport.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.program != nil {
		return errors.New("console adapter is already running")
	}

	m := newModel(ctx, handler, a.botName, a.cfg.Channel, a.cfg.User)
	options := append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, a.programOptions...)
	program := tea.NewProgram(m, options...)

	a.program = program
	a.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_, err := program.Run()
		if err != nil && !errors.Is(err, tea.ErrProgramKilled) && ctx.Err() == nil {
			a.mu.Lock()
			a.runErr = fmt.Errorf("console program: %w", err)
			a.mu.Unlock()
		}
	}(a.done)

	a.log.Debug("Console transport started", "channel", a.cfg.Channel, "user", a.cfg.User)
	return nil
}

func (a *Adapter) Stop() error {
	a.mu.Lock()
	program, done := a.program, a.done
	a.mu.Unlock()

	if program == nil {
		return errors.New("console adapter is not running")
	}

	program.Quit()
	<-done
	return nil
}

// Join blocks until the user quits or the adapter is stopped.
func (a *Adapter) Join(ctx context.Context) error {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()

	if done == nil {
		return errors.New("console adapter is not running")
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runErr
}

func (a *Adapter) SendMessage(_ context.Context, channel string, text string) error {
	a.mu.Lock()
	program := a.program
	a.mu.Unlock()

	if program == nil {
		return errors.New("console adapter is not running")
	}

	program.Send(botLineMsg{channel: channel, text: text})
	return nil
}
