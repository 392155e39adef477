package cmds

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/supportchat/pkg/relay"
	"github.com/go-go-golems/supportchat/pkg/relay/audit"
)

func NewServeCommand() *cobra.Command {
	d := relay.DefaultSettings()
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the relay between visitor widgets and support agents",
		PreRunE: bindFlags,
		RunE:    runServe,
	}
	fs := cmd.Flags()
	fs.String("addr", d.Addr, "listen address")
	fs.String(flagEvent, d.Event, "event name clients send chat text under")
	fs.Duration("idle-timeout", d.IdleTimeout, "log when nobody has been connected for this long (0 disables)")
	fs.String("backend", d.Backend, "message backend: memory or redis")
	fs.String("redis-addr", d.RedisAddr, "redis address for the redis backend")
	fs.String("redis-group", d.RedisGroup, "redis stream consumer group; leave empty so each relay instance gets its own and sees all traffic")
	fs.String("redis-consumer", d.RedisConsumer, "redis stream consumer name")
	fs.Int64("max-frame-bytes", d.MaxFrameBytes, "largest inbound websocket frame; bigger frames close the session (0 disables)")
	fs.String("audit-db", "", "sqlite file for the session and security journal")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := relay.Settings{
		Addr:          viper.GetString("addr"),
		Event:         viper.GetString(flagEvent),
		IdleTimeout:   viper.GetDuration("idle-timeout"),
		Backend:       viper.GetString("backend"),
		RedisAddr:     viper.GetString("redis-addr"),
		RedisGroup:    viper.GetString("redis-group"),
		RedisConsumer: viper.GetString("redis-consumer"),
		MaxFrameBytes: viper.GetInt64("max-frame-bytes"),
	}
	if path := strings.TrimSpace(viper.GetString("audit-db")); path != "" {
		dsn, err := audit.DSNForFile(path)
		if err != nil {
			return err
		}
		s.AuditDSN = dsn
	}
	if err := s.Validate(); err != nil {
		return err
	}

	opts := []relay.Option{relay.WithLogger(log.Logger)}
	if s.AuditDSN != "" {
		store, err := audit.NewSQLiteStore(s.AuditDSN)
		if err != nil {
			return errors.Wrap(err, "open audit journal")
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("close audit journal")
			}
		}()
		opts = append(opts, relay.WithJournal(store))
	}

	srv, err := relay.NewServer(ctx, s, opts...)
	if err != nil {
		return err
	}
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
