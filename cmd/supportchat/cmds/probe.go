package cmds

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/supportchat/pkg/widget/handshake"
	"github.com/go-go-golems/supportchat/pkg/widget/transport/wsclient"
	"github.com/go-go-golems/supportchat/pkg/wire"
)

// NewProbeCommand checks that a relay accepts a visitor handshake.
func NewProbeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "probe",
		Short:   "Open and close one visitor session against a relay",
		PreRunE: bindFlags,
		RunE:    runProbe,
	}
	addEndpointFlags(cmd)
	cmd.Flags().String("name", "probe", "visitor name")
	cmd.Flags().String("email", "probe@example.com", "visitor email")
	return cmd
}

func runProbe(cmd *cobra.Command, _ []string) error {
	cfg, err := widgetConfig(cmd)
	if err != nil {
		return err
	}
	h := handshake.New(
		wsclient.New(wsclient.WithLogger(log.Logger)),
		cfg,
		handshake.WithLogger(log.Logger),
		handshake.WithMetadata(wire.ParamRole, wire.RoleVisitor),
	)
	s, err := h.Connect(cmd.Context(), &handshake.Identity{
		Name:  viper.GetString("name"),
		Email: viper.GetString("email"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session %s on %s\n", s.ID(), cfg.Address())

	if err := h.Disconnect(s); err != nil {
		return err
	}
	// a second disconnect is a no-op
	return h.Disconnect(s)
}
