package handshake_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/supportchat/pkg/widget/chaterr"
	"github.com/go-go-golems/supportchat/pkg/widget/config"
	"github.com/go-go-golems/supportchat/pkg/widget/eventbus"
	"github.com/go-go-golems/supportchat/pkg/widget/handshake"
	"github.com/go-go-golems/supportchat/pkg/widget/handshake/handshaketest"
	"github.com/go-go-golems/supportchat/pkg/wire"
)

func TestConnectPassesIdentityAsMetadata(t *testing.T) {
	tr := handshaketest.NewTransport()
	cfg := config.Defaults()
	cfg.URL = "relay.local"
	cfg.Port = 3000

	bus := eventbus.New()
	var created eventbus.SessionHandle
	require.NoError(t, eventbus.Handle(bus, func(e eventbus.HandshakeCreatedEvent) error {
		created = e.Session
		return nil
	}))

	h := handshake.New(tr, cfg, handshake.WithEmitter(bus), handshake.WithMetadata(wire.ParamRole, wire.RoleVisitor))
	id := &handshake.Identity{Name: "Sam", Email: "sam@x.com"}
	s, err := h.Connect(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s)

	dials := tr.Dials()
	require.Len(t, dials, 1)
	require.Equal(t, "ws://relay.local:3000", dials[0].Address)
	require.Equal(t, "Sam", dials[0].Metadata[wire.ParamName])
	require.Equal(t, "sam@x.com", dials[0].Metadata[wire.ParamEmail])
	require.Equal(t, wire.RoleVisitor, dials[0].Metadata[wire.ParamRole])

	require.Same(t, s, created)
	require.Same(t, id, s.Identity())
	require.Equal(t, "session-1", s.ID())
}

func TestConnectFailureIsHandshakeError(t *testing.T) {
	h := handshake.New(handshaketest.Failing(errors.New("connection refused")), config.Defaults())
	s, err := h.Connect(context.Background(), &handshake.Identity{Name: "Sam", Email: "sam@x.com"})
	require.Nil(t, s)
	require.True(t, chaterr.Is(err, chaterr.KindHandshake))
	require.Contains(t, err.Error(), "connection refused")
}

func TestConnectWithoutHandleIsHandshakeError(t *testing.T) {
	h := handshake.New(handshaketest.NewTransport().ReturnNil(), config.Defaults())
	s, err := h.Connect(context.Background(), &handshake.Identity{Name: "Sam", Email: "sam@x.com"})
	require.Nil(t, s)
	require.True(t, chaterr.Is(err, chaterr.KindHandshake))

	_, err = handshake.New(nil, config.Defaults()).Connect(context.Background(), &handshake.Identity{})
	require.True(t, chaterr.Is(err, chaterr.KindHandshake))

	_, err = h.Connect(context.Background(), nil)
	require.True(t, chaterr.Is(err, chaterr.KindHandshake))
}

func TestConnectDoesNotAnnounceFailures(t *testing.T) {
	bus := eventbus.New()
	announced := false
	require.NoError(t, eventbus.Handle(bus, func(eventbus.HandshakeCreatedEvent) error {
		announced = true
		return nil
	}))
	h := handshake.New(handshaketest.Failing(errors.New("nope")), config.Defaults(), handshake.WithEmitter(bus))
	_, err := h.Connect(context.Background(), &handshake.Identity{Name: "Sam", Email: "sam@x.com"})
	require.Error(t, err)
	require.False(t, announced)
}

func TestConnectReportsMissingHandlerAndClosesConn(t *testing.T) {
	tr := handshaketest.NewTransport()
	h := handshake.New(tr, config.Defaults(), handshake.WithEmitter(eventbus.New()))
	s, err := h.Connect(context.Background(), &handshake.Identity{Name: "Sam", Email: "sam@x.com"})
	require.Nil(t, s)
	require.True(t, chaterr.Is(err, chaterr.KindConfiguration))
	require.Equal(t, 1, tr.Last().Closes())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	tr := handshaketest.NewTransport()
	h := handshake.New(tr, config.Defaults())
	s, err := h.Connect(context.Background(), &handshake.Identity{Name: "Sam", Email: "sam@x.com"})
	require.NoError(t, err)

	require.NoError(t, h.Disconnect(s))
	require.NoError(t, h.Disconnect(s))
	require.NoError(t, h.Disconnect(nil))
	require.True(t, s.Closed())
	require.Equal(t, 1, tr.Last().Closes())
}

func TestDisconnectReportsTransportErrorOnce(t *testing.T) {
	tr := handshaketest.NewTransport()
	h := handshake.New(tr, config.Defaults())
	s, err := h.Connect(context.Background(), &handshake.Identity{Name: "Sam", Email: "sam@x.com"})
	require.NoError(t, err)
	tr.Last().SetCloseError(errors.New("already gone"))

	require.Error(t, h.Disconnect(s))
	require.NoError(t, h.Disconnect(s))
}

func TestSendUsesConfiguredEvent(t *testing.T) {
	tr := handshaketest.NewTransport()
	cfg := config.Defaults()
	cfg.Event = "visitor-says"
	h := handshake.New(tr, cfg)
	s, err := h.Connect(context.Background(), &handshake.Identity{Name: "Sam", Email: "sam@x.com"})
	require.NoError(t, err)

	require.NoError(t, s.Send("hello"))
	emitted := tr.Last().Emitted()
	require.Len(t, emitted, 1)
	require.Equal(t, "visitor-says", emitted[0].Event)
	require.Equal(t, wire.Message{Text: "hello"}, emitted[0].Payload)

	require.NoError(t, h.Disconnect(s))
	require.ErrorIs(t, s.Send("again"), handshake.ErrSessionClosed)
}

func TestConnectRejectsInvalidConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.URL = ""
	_, err := handshake.New(handshaketest.NewTransport(), cfg).Connect(context.Background(), &handshake.Identity{})
	require.True(t, chaterr.Is(err, chaterr.KindConfiguration))
}

func TestSessionDoneFollowsRemoteDrop(t *testing.T) {
	tr := handshaketest.NewTransport()
	h := handshake.New(tr, config.Defaults())
	s, err := h.Connect(context.Background(), &handshake.Identity{Name: "Sam", Email: "sam@x.com"})
	require.NoError(t, err)

	select {
	case <-s.Done():
		t.Fatal("session ended before the remote dropped it")
	default:
	}
	tr.Last().Drop()
	<-s.Done()

	var nilSession *handshake.Session
	<-nilSession.Done()
}
