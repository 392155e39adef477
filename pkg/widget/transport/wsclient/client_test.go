package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/supportchat/pkg/widget/handshake"
	"github.com/go-go-golems/supportchat/pkg/wire"
)

type fakeRelay struct {
	t        *testing.T
	upgrader websocket.Upgrader
	reject   bool

	mu       sync.Mutex
	queries  []map[string]string
	received []wire.Envelope
}

func (f *fakeRelay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	require.NoError(f.t, err)
	defer ws.Close()

	q := map[string]string{}
	for k := range r.URL.Query() {
		q[k] = r.URL.Query().Get(k)
	}
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if f.reject {
		b, _ := wire.Encode(wire.EventError, wire.Error{Code: "invalid_identity", Message: "email is invalid"})
		_ = ws.WriteMessage(websocket.TextMessage, b)
		return
	}
	b, _ := wire.Encode(wire.EventHandshake, wire.Handshake{SessionID: "abc", Role: wire.RoleVisitor})
	_ = ws.WriteMessage(websocket.TextMessage, b)

	// Greet before the client has subscribed, to exercise buffering.
	b, _ = wire.Encode(wire.EventMessage, wire.Message{From: "agent", Text: "welcome", SentAtMs: 1000})
	_ = ws.WriteMessage(websocket.TextMessage, b)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		env, err := wire.Decode(data)
		if err != nil {
			continue
		}
		f.mu.Lock()
		f.received = append(f.received, env)
		f.mu.Unlock()
		var m wire.Message
		if env.Into(&m) == nil {
			echo, _ := wire.Encode(wire.EventMessage, wire.Message{From: "agent", Text: "echo: " + m.Text})
			_ = ws.WriteMessage(websocket.TextMessage, echo)
		}
	}
}

func (f *fakeRelay) Received() []wire.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wire.Envelope(nil), f.received...)
}

func startRelay(t *testing.T, reject bool) (*fakeRelay, string) {
	t.Helper()
	f := &fakeRelay{t: t, reject: reject}
	mux := http.NewServeMux()
	mux.Handle(wire.SocketPath, f)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, strings.Replace(srv.URL, "http://", "ws://", 1)
}

func TestDialURL(t *testing.T) {
	tr := New()
	u, err := tr.DialURL("http://localhost:8080", handshake.Metadata{"name": "Sam Smith", "email": "sam@x.com"})
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:8080/socket?email=sam%40x.com&name=Sam+Smith", u)

	u, err = tr.DialURL("https://chat.example.com:443", nil)
	require.NoError(t, err)
	require.Equal(t, "wss://chat.example.com:443/socket", u)

	_, err = tr.DialURL("ftp://x:1", nil)
	require.Error(t, err)
}

func TestDialWaitsForHandshakeAndRelaysMessages(t *testing.T) {
	relay, addr := startRelay(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := New().Dial(ctx, addr, handshake.Metadata{wire.ParamName: "Sam", wire.ParamEmail: "sam@x.com"})
	require.NoError(t, err)
	require.Equal(t, "abc", conn.ID())

	got := make(chan handshake.Message, 4)
	conn.OnMessage(func(m handshake.Message) { got <- m })

	first := <-got
	require.Equal(t, "welcome", first.Text)
	require.Equal(t, "agent", first.From)
	require.Equal(t, time.UnixMilli(1000), first.At)

	require.NoError(t, conn.Emit("send-message", wire.Message{Text: "hi"}))
	select {
	case m := <-got:
		require.Equal(t, "echo: hi", m.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("no echo")
	}

	received := relay.Received()
	require.Len(t, received, 1)
	require.Equal(t, "send-message", received[0].Event)

	relay.mu.Lock()
	require.Equal(t, "Sam", relay.queries[0][wire.ParamName])
	relay.mu.Unlock()

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	select {
	case <-conn.(*Conn).Done():
	case <-time.After(5 * time.Second):
		t.Fatal("read loop did not stop")
	}
}

func TestDialRejected(t *testing.T) {
	_, addr := startRelay(t, true)
	_, err := New().Dial(context.Background(), addr, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrRejected))
	require.Contains(t, err.Error(), "email is invalid")
}

func TestDialUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := New().Dial(ctx, "ws://127.0.0.1:1", nil)
	require.Error(t, err)
}
