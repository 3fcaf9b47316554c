package redis

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/travel-notifications/pkg/changefeed"
)

func TestChannelNames(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	b := NewBrokerWithClient(client, Config{}, nil)
	assert.Equal(t, "realtime:notifications", b.Channel("notifications"))

	b = NewBrokerWithClient(client, Config{ChannelPrefix: "travel:"}, nil)
	assert.Equal(t, "travel:payments", b.Channel("payments"))
}

func TestSubscribeRequiresTable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	b := NewBrokerWithClient(client, Config{}, nil)
	_, err := b.Subscribe(context.Background(), changefeed.Filter{})
	assert.Error(t, err)
}

func TestNewBrokerRejectsBadURL(t *testing.T) {
	_, err := NewBroker(Config{URL: "not a url"}, nil)
	assert.Error(t, err)
}
