package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeTimeout = 10 * time.Second

// peer is one accepted websocket session.
type peer struct {
	id     string
	role   string
	name   string
	email  string
	remote string
	ws     *websocket.Conn

	writeMu sync.Mutex
}

func (p *peer) write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.ws.WriteMessage(websocket.TextMessage, data)
}

func (p *peer) close(code int, reason string) {
	p.writeMu.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = p.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	p.writeMu.Unlock()
	_ = p.ws.Close()
}

// Pool tracks the connected sessions, addressed by session id and grouped by
// role. onIdle fires once the pool has stayed empty for idleTimeout.
type Pool struct {
	mu          sync.Mutex
	peers       map[string]*peer
	idleTimer   *time.Timer
	idleTimeout time.Duration
	onIdle      func()
	logger      zerolog.Logger
}

func NewPool(idleTimeout time.Duration, onIdle func(), logger zerolog.Logger) *Pool {
	p := &Pool{
		peers:       map[string]*peer{},
		idleTimeout: idleTimeout,
		onIdle:      onIdle,
		logger:      logger,
	}
	p.mu.Lock()
	p.scheduleIdleTimerLocked()
	p.mu.Unlock()
	return p
}

func (p *Pool) add(pr *peer) {
	if p == nil || pr == nil {
		return
	}
	p.mu.Lock()
	p.peers[pr.id] = pr
	p.stopIdleTimerLocked()
	p.mu.Unlock()
}

// remove drops the session and reports whether it was still tracked.
func (p *Pool) remove(id string) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	_, ok := p.peers[id]
	delete(p.peers, id)
	p.scheduleIdleTimerLocked()
	p.mu.Unlock()
	return ok
}

// SendTo writes data to one session. A failed write drops the session.
func (p *Pool) SendTo(id string, data []byte) bool {
	if p == nil || len(data) == 0 {
		return false
	}
	p.mu.Lock()
	pr, ok := p.peers[id]
	p.mu.Unlock()
	if !ok {
		return false
	}
	if err := pr.write(data); err != nil {
		p.logger.Warn().Err(err).Str("session_id", id).Msg("ws send failed, dropping connection")
		p.drop(pr)
		return false
	}
	return true
}

// Broadcast writes data to every session holding role and returns how many
// received it.
func (p *Pool) Broadcast(role string, data []byte) int {
	if p == nil || len(data) == 0 {
		return 0
	}
	targets := p.snapshot(role)
	n := 0
	for _, pr := range targets {
		if err := pr.write(data); err != nil {
			p.logger.Warn().Err(err).Str("session_id", pr.id).Msg("ws broadcast failed, dropping connection")
			p.drop(pr)
			continue
		}
		n++
	}
	return n
}

// Count returns the number of sessions with role, or all sessions when role
// is empty.
func (p *Pool) Count(role string) int {
	if p == nil {
		return 0
	}
	return len(p.snapshot(role))
}

func (p *Pool) IsEmpty() bool {
	return p.Count("") == 0
}

// CloseAll disconnects every session.
func (p *Pool) CloseAll() {
	if p == nil {
		return
	}
	p.mu.Lock()
	peers := make([]*peer, 0, len(p.peers))
	for id, pr := range p.peers {
		peers = append(peers, pr)
		delete(p.peers, id)
	}
	p.stopIdleTimerLocked()
	p.mu.Unlock()
	for _, pr := range peers {
		pr.close(websocket.CloseGoingAway, "relay shutting down")
	}
}

func (p *Pool) snapshot(role string) []*peer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*peer, 0, len(p.peers))
	for _, pr := range p.peers {
		if role == "" || pr.role == role {
			out = append(out, pr)
		}
	}
	return out
}

// drop closes the socket; the session's read loop then removes it.
func (p *Pool) drop(pr *peer) {
	_ = pr.ws.Close()
}

func (p *Pool) stopIdleTimerLocked() {
	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}
}

func (p *Pool) scheduleIdleTimerLocked() {
	p.stopIdleTimerLocked()
	if len(p.peers) != 0 || p.idleTimeout <= 0 || p.onIdle == nil {
		return
	}
	p.idleTimer = time.AfterFunc(p.idleTimeout, p.triggerIdle)
}

func (p *Pool) triggerIdle() {
	var callback func()
	p.mu.Lock()
	if len(p.peers) == 0 {
		callback = p.onIdle
	}
	p.idleTimer = nil
	p.mu.Unlock()
	if callback != nil {
		callback()
	}
}
