package cmds

import (
	"context"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/supportchat/pkg/tui"
	"github.com/go-go-golems/supportchat/pkg/widget"
	"github.com/go-go-golems/supportchat/pkg/widget/loop"
)

func NewWidgetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "widget",
		Short:   "Open the visitor chat widget in the terminal",
		PreRunE: bindFlags,
		RunE:    runWidget,
	}
	addEndpointFlags(cmd)
	cmd.Flags().String(flagTitle, "", "header title")
	cmd.Flags().String("debug-log", "", "write widget logs to this file; the terminal belongs to the UI")
	return cmd
}

func runWidget(cmd *cobra.Command, _ []string) error {
	fd := os.Stdout.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return errors.New("widget needs an interactive terminal")
	}

	cfg, err := widgetConfig(cmd)
	if err != nil {
		return err
	}

	logger := zerolog.Nop()
	if path := strings.TrimSpace(viper.GetString("debug-log")); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrap(err, "open debug log")
		}
		defer func() { _ = f.Close() }()
		logger = zerolog.New(f).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	l := loop.New(loop.WithLogger(logger))
	fwd := tui.NewForwarder()
	w, err := widget.New(cfg, l,
		widget.WithLogger(logger),
		widget.WithPresenter(tui.Presenter{Send: fwd.Send}),
		widget.WithContext(ctx),
	)
	if err != nil {
		return err
	}

	model := tui.NewModel(cfg, tui.LoopActions{Runner: l, Widget: w, Logger: logger})
	prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("widget loop stopped")
		}
	}()
	go fwd.Run(ctx, prog.Send)

	_, err = prog.Run()
	// closing detaches and disconnects an active session
	closeCtx, closeCancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	_ = l.Call(closeCtx, func() { _ = w.Close() })
	closeCancel()
	cancel()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "run widget ui")
	}
	return nil
}
