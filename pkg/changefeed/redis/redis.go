package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/travel-notifications/pkg/changefeed"
	"github.com/jwalitptl/travel-notifications/pkg/circuitbreaker"
	"github.com/jwalitptl/travel-notifications/pkg/logger"
)

const DefaultChannelPrefix = "realtime:"

// Broker carries change events over redis pub/sub, one channel per table.
// It implements changefeed.Source and changefeed.Publisher.
type Broker struct {
	client *redis.Client
	cb     *circuitbreaker.CircuitBreaker
	logger *logger.Logger
	prefix string
	buffer int
}

type Config struct {
	URL           string
	MaxRetries    int
	RetryBackoff  time.Duration
	PoolSize      int
	MinIdleConns  int
	ChannelPrefix string
	Buffer        int
}

func NewBroker(config Config, log *logger.Logger) (*Broker, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pooling
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.RetryBackoff > 0 {
		opts.MinRetryBackoff = config.RetryBackoff
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewBrokerWithClient(client, config, log), nil
}

// NewBrokerWithClient wraps an existing client without pinging it.
func NewBrokerWithClient(client *redis.Client, config Config, log *logger.Logger) *Broker {
	if log == nil {
		log = logger.Nop()
	}
	prefix := config.ChannelPrefix
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Broker{
		client: client,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "redis-changefeed",
			MaxFailures: 5,
			Timeout:     5 * time.Second,
		}),
		logger: log,
		prefix: prefix,
		buffer: config.Buffer,
	}
}

// Channel is the pub/sub channel carrying a table's changes.
func (b *Broker) Channel(table string) string {
	return b.prefix + table
}

func (b *Broker) Publish(ctx context.Context, event changefeed.Event) error {
	payload, err := changefeed.Encode(event)
	if err != nil {
		return err
	}
	return b.cb.Execute(func() error {
		if err := b.client.Publish(ctx, b.Channel(event.Table), payload).Err(); err != nil {
			return fmt.Errorf("failed to publish change event: %w", err)
		}
		return nil
	})
}

func (b *Broker) Subscribe(ctx context.Context, filter changefeed.Filter) (changefeed.Subscription, error) {
	if filter.Table == "" {
		return nil, fmt.Errorf("redis subscriptions need a table")
	}

	pubsub := b.client.Subscribe(ctx, b.Channel(filter.Table))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", filter, err)
	}

	sub, deliver := changefeed.NewSubscription(filter, b.buffer, func() {
		if err := pubsub.Close(); err != nil {
			b.logger.Warn("failed to close redis subscription", "filter", filter.String(), "error", err.Error())
		}
	})

	go func() {
		msgs := pubsub.Channel()
		for {
			select {
			case <-sub.Done():
				return
			case <-ctx.Done():
				sub.Cancel()
				return
			case msg, ok := <-msgs:
				if !ok {
					sub.Cancel()
					return
				}
				event, err := changefeed.Decode([]byte(msg.Payload))
				if err != nil {
					b.logger.Warn("dropping malformed change event", "channel", msg.Channel, "error", err.Error())
					continue
				}
				if !filter.Match(event) {
					continue
				}
				if err := deliver(ctx, event); err != nil {
					return
				}
			}
		}
	}()

	return sub, nil
}

func (b *Broker) Close() error {
	return b.client.Close()
}

// PingContext checks the redis connection for readiness probes.
func (b *Broker) PingContext(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
