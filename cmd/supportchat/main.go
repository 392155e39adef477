package main

import (
	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/supportchat/cmd/supportchat/cmds"
)

var rootCmd = &cobra.Command{
	Use:   "supportchat",
	Short: "supportchat runs a support chat relay and a terminal chat widget",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// flags are parsed now, so --log-level and co take effect
		if err := logging.InitLoggerFromCobra(cmd); err != nil {
			return err
		}
		return readConfig()
	},
}

// readConfig loads ~/.supportchat/config.yaml when present. Its "widget"
// section feeds the widget settings.
func readConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.supportchat")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("SUPPORTCHAT")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

func main() {
	if err := clay.InitGlazed("supportchat", rootCmd); err != nil {
		cobra.CheckErr(err)
	}

	rootCmd.AddCommand(
		cmds.NewServeCommand(),
		cmds.NewWidgetCommand(),
		cmds.NewProbeCommand(),
		cmds.NewAgentCommand(),
	)
	cobra.CheckErr(rootCmd.Execute())
}
