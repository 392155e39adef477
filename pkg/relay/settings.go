package relay

import (
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/go-go-golems/supportchat/pkg/wire"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Topics visitor and agent traffic is published on.
const (
	TopicVisitor = "supportchat.visitor"
	TopicAgent   = "supportchat.agent"
)

// Settings configures a relay Server.
type Settings struct {
	Addr string `yaml:"addr"`
	// Event is the name clients send chat text under.
	Event string `yaml:"event"`
	// IdleTimeout logs once no session has been connected for this long. Zero disables it.
	IdleTimeout time.Duration `yaml:"idleTimeout"`

	Backend   string `yaml:"backend"`
	RedisAddr string `yaml:"redisAddr"`
	// RedisGroup is the consumer group this instance reads the streams with.
	// Every relay must see every message, so instances must not share a group.
	// Empty picks a group unique to this process.
	RedisGroup    string `yaml:"redisGroup"`
	RedisConsumer string `yaml:"redisConsumer"`

	// MaxFrameBytes caps the size of one inbound websocket frame. Zero means no limit.
	MaxFrameBytes int64 `yaml:"maxFrameBytes"`

	// AuditDSN enables the sqlite journal when set.
	AuditDSN string `yaml:"auditDSN"`
}

func DefaultSettings() Settings {
	return Settings{
		Addr:          ":8080",
		Event:         wire.DefaultInboundEvent,
		IdleTimeout:   5 * time.Minute,
		Backend:       BackendMemory,
		RedisAddr:     "localhost:6379",
		RedisConsumer: "relay-1",
		MaxFrameBytes: 64 << 10,
	}
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.Event) == "" {
		return errors.New("relay: inbound event name is empty")
	}
	switch s.Backend {
	case BackendMemory, "":
	case BackendRedis:
		if strings.TrimSpace(s.RedisAddr) == "" {
			return errors.New("relay: redis backend needs an address")
		}
		if strings.TrimSpace(s.RedisConsumer) == "" {
			return errors.New("relay: redis backend needs a consumer name")
		}
	default:
		return errors.Errorf("relay: unknown backend %q", s.Backend)
	}
	if s.MaxFrameBytes < 0 {
		return errors.New("relay: max frame size is negative")
	}
	return nil
}

// consumerGroup returns the configured group, or a fresh one named after the
// host when none is set.
func (s Settings) consumerGroup() string {
	if g := strings.TrimSpace(s.RedisGroup); g != "" {
		return g
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "relay"
	}
	return "supportchat-relay-" + host + "-" + uuid.NewString()[:8]
}
