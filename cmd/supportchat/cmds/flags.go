package cmds

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/supportchat/pkg/widget/config"
)

const (
	flagWidgetConfig = "widget-config"
	flagURL          = "url"
	flagPort         = "port"
	flagProtocol     = "protocol"
	flagEvent        = "event"
	flagTitle        = "title"
	flagDialTimeout  = "dial-timeout"
)

// addEndpointFlags registers the flags that locate the relay.
func addEndpointFlags(cmd *cobra.Command) {
	d := config.Defaults()
	fs := cmd.Flags()
	fs.String(flagWidgetConfig, "", "yaml file with widget settings (title, url, port, ...)")
	fs.String(flagURL, d.URL, "relay host")
	fs.Int(flagPort, d.Port, "relay port")
	fs.String(flagProtocol, d.Protocol, "relay scheme (ws, wss, http, https)")
	fs.String(flagEvent, d.Event, "event name outbound messages are sent under")
	fs.Duration(flagDialTimeout, d.DialTimeout, "handshake timeout")
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	return errors.Wrap(viper.BindPFlags(cmd.Flags()), "bind flags")
}

// widgetConfig layers the yaml file, the "widget" section of the
// supportchat config file and explicitly set flags over the defaults.
func widgetConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Defaults()
	if path := strings.TrimSpace(viper.GetString(flagWidgetConfig)); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	var err error
	if section := viper.GetStringMap("widget"); len(section) > 0 {
		if cfg, err = config.Merge(cfg, section); err != nil {
			return config.Config{}, err
		}
	}

	overrides := map[string]any{}
	set := func(flag, key string, v any) {
		if cmd.Flags().Changed(flag) {
			overrides[key] = v
		}
	}
	set(flagURL, config.KeyURL, viper.GetString(flagURL))
	set(flagPort, config.KeyPort, viper.GetInt(flagPort))
	set(flagProtocol, config.KeyProtocol, viper.GetString(flagProtocol))
	set(flagEvent, config.KeyEvent, viper.GetString(flagEvent))
	set(flagDialTimeout, config.KeyDialTimeout, viper.GetDuration(flagDialTimeout))
	if cmd.Flags().Lookup(flagTitle) != nil {
		set(flagTitle, config.KeyTitle, viper.GetString(flagTitle))
	}
	if cfg, err = config.Merge(cfg, overrides); err != nil {
		return config.Config{}, err
	}
	return cfg, cfg.Validate()
}
