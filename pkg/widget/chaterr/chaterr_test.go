package chaterr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := Handshake("connect", errors.New("connection refused"))
	wrapped := errors.Wrap(base, "open widget")

	require.True(t, Is(wrapped, KindHandshake))
	require.False(t, Is(wrapped, KindConfiguration))
	require.Equal(t, KindHandshake, KindOf(wrapped))
	require.Contains(t, wrapped.Error(), "HandshakeError: connect: connection refused")
}

func TestHandshakeWithoutCause(t *testing.T) {
	err := Handshake("connect", nil)
	require.EqualError(t, err, "HandshakeError: connect: no session handle")
}

func TestFatalKinds(t *testing.T) {
	require.True(t, KindConfiguration.Fatal())
	require.True(t, KindHandshake.Fatal())
	require.False(t, KindValidation.Fatal())
	require.False(t, KindSecurity.Fatal())
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	require.False(t, Is(nil, KindUnknown))
}

func TestConfigurationMessage(t *testing.T) {
	err := Configuration("listen", "handler for %q is nil", "openingChatbox")
	require.EqualError(t, err, `ConfigurationError: listen: handler for "openingChatbox" is nil`)
}
