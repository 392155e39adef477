// Package relay is the realtime endpoint the widget talks to. Visitors and
// agents connect over websocket with their identity as query parameters; chat
// text from visitors fans out to every agent and agent replies go back to the
// addressed visitor.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/supportchat/pkg/relay/audit"
	"github.com/go-go-golems/supportchat/pkg/widget/validate"
	"github.com/go-go-golems/supportchat/pkg/wire"
)

// Error codes sent in error envelopes.
const (
	CodeInvalidIdentity = "invalid_identity"
	CodeInvalidRole     = "invalid_role"
	CodeUnknownEvent    = "unknown_event"
	CodeMalformed       = "malformed"
)

type Server struct {
	settings  Settings
	logger    zerolog.Logger
	upgrader  websocket.Upgrader
	pool      *Pool
	ps        *PubSub
	ownPS     bool
	metrics   *Metrics
	journal   audit.Journal
	validator *validate.Validator

	ready     chan struct{}
	readyOnce sync.Once
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithJournal(j audit.Journal) Option {
	return func(s *Server) {
		s.journal = j
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithPubSub uses ps instead of building one from the settings. The caller
// keeps ownership and closes it.
func WithPubSub(ps *PubSub) Option {
	return func(s *Server) {
		s.ps = ps
	}
}

func WithUpgrader(u websocket.Upgrader) Option {
	return func(s *Server) {
		s.upgrader = u
	}
}

func NewServer(ctx context.Context, settings Settings, opts ...Option) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		settings: settings,
		logger:   zerolog.Nop(),
		upgrader: websocket.Upgrader{
			// The widget is embedded on arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		journal: audit.Nop{},
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "relay").Logger()
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.ps == nil {
		ps, err := NewPubSub(ctx, settings, s.logger)
		if err != nil {
			return nil, err
		}
		s.ps = ps
		s.ownPS = true
	}
	s.validator = validate.New(nil, validate.WithLogger(s.logger))
	s.pool = NewPool(settings.IdleTimeout, func() {
		s.logger.Info().Dur("idle_for", settings.IdleTimeout).Msg("no sessions connected")
	}, s.logger)
	return s, nil
}

func (s *Server) Pool() *Pool { return s.pool }

func (s *Server) Metrics() *Metrics { return s.metrics }

// Ready is closed once the fan-out loops are subscribed.
func (s *Server) Ready() <-chan struct{} { return s.ready }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(wire.SocketPath, s.handleSocket)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// Run fans published messages out to connected sessions until ctx is done,
// then disconnects everyone.
func (s *Server) Run(ctx context.Context) error {
	visitors, err := s.ps.Subscriber.Subscribe(ctx, TopicVisitor)
	if err != nil {
		return errors.Wrap(err, "subscribe visitor topic")
	}
	agents, err := s.ps.Subscriber.Subscribe(ctx, TopicAgent)
	if err != nil {
		return errors.Wrap(err, "subscribe agent topic")
	}
	s.readyOnce.Do(func() { close(s.ready) })

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return s.fanOut(egCtx, visitors, s.deliverToAgents) })
	eg.Go(func() error { return s.fanOut(egCtx, agents, s.deliverToVisitor) })
	err = eg.Wait()

	s.pool.CloseAll()
	if s.ownPS {
		if cerr := s.ps.Close(); cerr != nil {
			s.logger.Error().Err(cerr).Msg("pubsub close error")
		}
	}
	return err
}

// ListenAndServe runs the HTTP listener next to Run and shuts both down when
// ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.settings.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return s.Run(egCtx) })
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("server shutdown error")
			return err
		}
		s.logger.Info().Msg("server shutdown complete")
		return nil
	})
	eg.Go(func() error {
		s.logger.Info().Str("addr", httpSrv.Addr).Str("backend", s.ps.Backend()).Msg("starting relay")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})
	return eg.Wait()
}

func (s *Server) fanOut(ctx context.Context, msgs <-chan *message.Message, deliver func(wire.Message, []byte)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var m wire.Message
			if err := json.Unmarshal(msg.Payload, &m); err != nil {
				s.logger.Warn().Err(err).Str("uuid", msg.UUID).Msg("dropping undecodable relay message")
				msg.Ack()
				continue
			}
			frame, err := wire.Encode(wire.EventMessage, m)
			if err != nil {
				s.logger.Warn().Err(err).Msg("encode relay frame")
				msg.Ack()
				continue
			}
			deliver(m, frame)
			msg.Ack()
		}
	}
}

func (s *Server) deliverToAgents(m wire.Message, frame []byte) {
	n := s.pool.Broadcast(wire.RoleAgent, frame)
	s.logger.Debug().Str("session_id", m.SessionID).Int("agents", n).Msg("visitor message relayed")
}

func (s *Server) deliverToVisitor(m wire.Message, frame []byte) {
	if m.To != "" {
		if !s.pool.SendTo(m.To, frame) {
			s.logger.Debug().Str("to", m.To).Msg("addressed session not connected here")
		}
		return
	}
	s.pool.Broadcast(wire.RoleVisitor, frame)
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role := strings.TrimSpace(q.Get(wire.ParamRole))
	if role == "" {
		role = wire.RoleVisitor
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	if s.settings.MaxFrameBytes > 0 {
		ws.SetReadLimit(s.settings.MaxFrameBytes)
	}
	logger := s.logger.With().Str("remote", r.RemoteAddr).Str("role", role).Logger()

	if role != wire.RoleVisitor && role != wire.RoleAgent {
		s.metrics.HandshakesRejected.Inc()
		s.reject(ws, CodeInvalidRole, "unknown role "+role)
		return
	}

	name, email, failed := s.checkIdentity(r, role, q.Get(wire.ParamName), q.Get(wire.ParamEmail))
	if len(failed) > 0 {
		s.metrics.HandshakesRejected.Inc()
		for _, f := range failed {
			s.securityEvent(r.Context(), audit.SecurityEvent{Remote: r.RemoteAddr, Field: f, Kind: audit.KindRejectedIdentity})
		}
		logger.Info().Strs("failed", failed).Msg("handshake rejected")
		s.reject(ws, CodeInvalidIdentity, strings.Join(failed, ", ")+" failed validation")
		return
	}

	pr := &peer{
		id:     uuid.NewString(),
		role:   role,
		name:   name,
		email:  email,
		remote: r.RemoteAddr,
		ws:     ws,
	}
	// Registered before the client learns its id so replies addressed to it
	// cannot race the handshake.
	s.pool.add(pr)
	hello, err := wire.Encode(wire.EventHandshake, wire.Handshake{SessionID: pr.id, Role: role})
	if err == nil {
		err = pr.write(hello)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("handshake write failed")
		s.pool.remove(pr.id)
		_ = ws.Close()
		return
	}
	s.metrics.SessionsActive.WithLabelValues(role).Inc()
	connectedAt := time.Now()
	if err := s.journal.SessionOpened(r.Context(), audit.Session{
		ID: pr.id, Role: role, Name: name, Email: email, Remote: r.RemoteAddr, ConnectedAt: connectedAt,
	}); err != nil {
		logger.Error().Err(err).Msg("audit session open failed")
	}
	logger = logger.With().Str("session_id", pr.id).Logger()
	logger.Info().Str("name", name).Msg("session accepted")

	s.readLoop(r.Context(), pr, logger)

	if s.pool.remove(pr.id) {
		_ = ws.Close()
	}
	s.metrics.SessionsActive.WithLabelValues(role).Dec()
	if err := s.journal.SessionClosed(context.WithoutCancel(r.Context()), pr.id, time.Now()); err != nil {
		logger.Error().Err(err).Msg("audit session close failed")
	}
	logger.Info().Dur("duration", time.Since(connectedAt)).Msg("session closed")
}

// checkIdentity sanitizes and validates the query identity. Agents may omit
// the email.
func (s *Server) checkIdentity(r *http.Request, role, name, email string) (string, string, []string) {
	fields := []*validate.Field{{Name: wire.ParamName, Kind: validate.KindText, Value: name}}
	if role == wire.RoleVisitor || strings.TrimSpace(email) != "" {
		fields = append(fields, &validate.Field{Name: wire.ParamEmail, Kind: validate.KindEmail, Value: email})
	}
	res := s.validator.Validate(fields)
	for _, f := range res.Hostile {
		s.securityEvent(r.Context(), audit.SecurityEvent{Remote: r.RemoteAddr, Field: f, Kind: audit.KindHostileMarkup})
	}
	cleanEmail := ""
	if len(fields) > 1 {
		cleanEmail = fields[1].Value
	}
	return fields[0].Value, cleanEmail, res.Failed
}

func (s *Server) readLoop(ctx context.Context, pr *peer, logger zerolog.Logger) {
	topic := TopicVisitor
	if pr.role == wire.RoleAgent {
		topic = TopicAgent
	}
	for {
		_, data, err := pr.ws.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				logger.Warn().Int64("limit", s.settings.MaxFrameBytes).Msg("frame over size limit, closing session")
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		env, err := wire.Decode(data)
		if err != nil {
			s.replyError(pr, CodeMalformed, "undecodable frame")
			continue
		}
		if env.Event != s.settings.Event {
			s.replyError(pr, CodeUnknownEvent, "unsupported event "+env.Event)
			continue
		}
		var in wire.Message
		if err := env.Into(&in); err != nil {
			s.replyError(pr, CodeMalformed, "message payload is invalid")
			continue
		}
		text, hostile := validate.Sanitize(in.Text)
		if hostile {
			logger.Warn().Msg("executable markup stripped from message")
			s.securityEvent(ctx, audit.SecurityEvent{SessionID: pr.id, Remote: pr.remote, Field: "message", Kind: audit.KindHostileMarkup})
		}
		if text == "" {
			continue
		}
		out := wire.Message{
			SessionID: pr.id,
			From:      pr.name,
			To:        strings.TrimSpace(in.To),
			Text:      text,
			SentAtMs:  time.Now().UnixMilli(),
		}
		payload, err := json.Marshal(out)
		if err != nil {
			logger.Warn().Err(err).Msg("marshal relay message")
			continue
		}
		if err := s.ps.Publisher.Publish(topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
			logger.Error().Err(err).Str("topic", topic).Msg("publish failed")
			continue
		}
		s.metrics.Messages.WithLabelValues(pr.role).Inc()
	}
}

func (s *Server) securityEvent(ctx context.Context, e audit.SecurityEvent) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if err := s.journal.SecurityEvent(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Error().Err(err).Msg("audit security event failed")
	}
	s.metrics.SecurityEvents.WithLabelValues(e.Kind).Inc()
}

func (s *Server) replyError(pr *peer, code, msg string) {
	frame, err := wire.Encode(wire.EventError, wire.Error{Code: code, Message: msg})
	if err != nil {
		return
	}
	_ = pr.write(frame)
}

func (s *Server) reject(ws *websocket.Conn, code, msg string) {
	frame, err := wire.Encode(wire.EventError, wire.Error{Code: code, Message: msg})
	if err == nil {
		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = ws.WriteMessage(websocket.TextMessage, frame)
	}
	closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code)
	_ = ws.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	_ = ws.Close()
}
