package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/supportchat/pkg/widget/handshake"
	"github.com/go-go-golems/supportchat/pkg/widget/transport/wsclient"
	"github.com/go-go-golems/supportchat/pkg/wire"
)

// NewAgentCommand answers visitors from stdin. A line starting with
// @<session-id> goes to that visitor only; other lines go to every visitor.
func NewAgentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agent",
		Short:   "Join a relay as a support agent and chat from stdin",
		PreRunE: bindFlags,
		RunE:    runAgent,
	}
	addEndpointFlags(cmd)
	cmd.Flags().String("name", "support", "agent name shown to visitors")
	cmd.Flags().String("email", "", "agent email (optional)")
	return cmd
}

func runAgent(cmd *cobra.Command, _ []string) error {
	cfg, err := widgetConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	md := handshake.Metadata{
		wire.ParamRole: wire.RoleAgent,
		wire.ParamName: viper.GetString("name"),
	}
	if email := strings.TrimSpace(viper.GetString("email")); email != "" {
		md[wire.ParamEmail] = email
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	conn, err := wsclient.New(wsclient.WithLogger(log.Logger)).Dial(dialCtx, cfg.Address(), md)
	cancel()
	if err != nil {
		return errors.Wrap(err, "join relay")
	}
	defer func() { _ = conn.Close() }()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "joined %s as agent %s\n", cfg.Address(), conn.ID())
	conn.OnMessage(func(m handshake.Message) {
		switch m.Event {
		case wire.EventMessage:
			fmt.Fprintf(out, "[%s] @%s %s: %s\n", m.At.Format("15:04:05"), m.SessionID, m.From, m.Text)
		case wire.EventError:
			fmt.Fprintf(out, "relay error: %s\n", m.Text)
		}
	})

	lines := make(chan string)
	go scanLines(cmd.InOrStdin(), lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			return errors.New("relay closed the connection")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			to, text := parseAgentLine(line)
			if text == "" {
				continue
			}
			if err := conn.Emit(cfg.Event, wire.Message{To: to, Text: text}); err != nil {
				return errors.Wrap(err, "send reply")
			}
		}
	}
}

func scanLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines <- sc.Text()
	}
}

// parseAgentLine splits "@<session-id> text" into its recipient and text.
func parseAgentLine(line string) (to, text string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "@") {
		return "", line
	}
	id, rest, _ := strings.Cut(line[1:], " ")
	return id, strings.TrimSpace(rest)
}
