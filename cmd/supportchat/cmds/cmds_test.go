package cmds

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAgentLine(t *testing.T) {
	to, text := parseAgentLine("@session-3  thanks for waiting ")
	assert.Equal(t, "session-3", to)
	assert.Equal(t, "thanks for waiting", text)

	to, text = parseAgentLine("hello everyone")
	assert.Empty(t, to)
	assert.Equal(t, "hello everyone", text)

	to, text = parseAgentLine("@session-3")
	assert.Equal(t, "session-3", to)
	assert.Empty(t, text)
}

func TestWidgetConfigLayersFileAndFlags(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "widget.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: Help\nurl: relay.example.com\nport: 9000\n"), 0o644))

	cmd := NewWidgetCommand()
	require.NoError(t, cmd.Flags().Set(flagWidgetConfig, path))
	require.NoError(t, cmd.Flags().Set(flagPort, "9443"))
	require.NoError(t, cmd.Flags().Set(flagProtocol, "wss"))
	require.NoError(t, bindFlags(cmd, nil))

	cfg, err := widgetConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "Help", cfg.Title)
	assert.Equal(t, "wss://relay.example.com:9443", cfg.Address())
}

func TestWidgetConfigRejectsBadPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := NewProbeCommand()
	require.NoError(t, cmd.Flags().Set(flagPort, "0"))
	require.NoError(t, bindFlags(cmd, nil))

	_, err := widgetConfig(cmd)
	assert.Error(t, err)
}
