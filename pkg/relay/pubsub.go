package relay

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// PubSub carries relayed messages between socket handlers and fan-out loops,
// either in process or across relay instances through redis streams. With
// redis each instance reads through its own consumer group so every instance
// sees every message.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	backend    string
	closers    []func() error
}

// NewPubSub builds the backend named by s.Backend.
func NewPubSub(ctx context.Context, s Settings, logger zerolog.Logger) (*PubSub, error) {
	wl := NewWatermillLogger(logger)
	switch s.Backend {
	case BackendMemory, "":
		return newMemoryPubSub(wl), nil
	case BackendRedis:
		return newRedisPubSub(ctx, s, wl, logger)
	default:
		return nil, errors.Errorf("relay: unknown backend %q", s.Backend)
	}
}

func newMemoryPubSub(wl watermill.LoggerAdapter) *PubSub {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, wl)
	return &PubSub{
		Publisher:  ch,
		Subscriber: ch,
		backend:    BackendMemory,
		closers:    []func() error{ch.Close},
	}
}

func newRedisPubSub(ctx context.Context, s Settings, wl watermill.LoggerAdapter, logger zerolog.Logger) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	group := s.consumerGroup()
	for _, topic := range []string{TopicVisitor, TopicAgent} {
		if err := ensureGroupAtTail(ctx, client, topic, group, logger); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, wl)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "relay: redis publisher")
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: group,
		Consumer:      s.RedisConsumer,
	}, wl)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "relay: redis subscriber")
	}
	return &PubSub{
		Publisher:  pub,
		Subscriber: sub,
		backend:    BackendRedis,
		closers:    []func() error{sub.Close, pub.Close, client.Close},
	}, nil
}

// ensureGroupAtTail creates the consumer group at the stream tail so a fresh
// relay does not replay old traffic.
func ensureGroupAtTail(ctx context.Context, client *redis.Client, stream, group string, logger zerolog.Logger) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "relay: create consumer group %s on %s", group, stream)
	}
	logger.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at tail")
	return nil
}

func (p *PubSub) Backend() string {
	if p == nil {
		return ""
	}
	return p.backend
}

func (p *PubSub) Close() error {
	if p == nil {
		return nil
	}
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	p.closers = nil
	return first
}

// watermillLogger routes watermill's logging into zerolog.
type watermillLogger struct {
	logger zerolog.Logger
}

func NewWatermillLogger(logger zerolog.Logger) watermill.LoggerAdapter {
	return watermillLogger{logger: logger.With().Str("component", "watermill").Logger()}
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.logger.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{logger: l.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}
