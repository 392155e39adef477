package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeCarriesTypedPayload(t *testing.T) {
	b, err := Encode(EventHandshake, Handshake{SessionID: "s1", Role: RoleVisitor})
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"handshake","data":{"session_id":"s1","role":"visitor"}}`, string(b))

	env, err := Decode(b)
	require.NoError(t, err)
	var hs Handshake
	require.NoError(t, env.Into(&hs))
	require.Equal(t, "s1", hs.SessionID)
}

func TestDecodeRejectsMissingEvent(t *testing.T) {
	_, err := Decode([]byte(`{"data":{}}`))
	require.Error(t, err)
	_, err = Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestIntoWithoutData(t *testing.T) {
	b, err := Encode(EventError, nil)
	require.NoError(t, err)
	env, err := Decode(b)
	require.NoError(t, err)
	require.Error(t, env.Into(&Error{}))
}

func TestEncodeRejectsEmptyEvent(t *testing.T) {
	_, err := Encode("  ", nil)
	require.Error(t, err)
}
