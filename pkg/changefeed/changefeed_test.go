package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/travel-notifications/internal/model"
)

func TestFilterMatch(t *testing.T) {
	ins := Event{Kind: Insert, Table: "notifications", New: model.JSONMap{"user_id": "u1"}}
	del := Event{Kind: Delete, Table: "notifications", Old: model.JSONMap{"user_id": "u1"}}
	other := Event{Kind: Insert, Table: "notifications", New: model.JSONMap{"user_id": "u2"}}

	owned := OwnerFilter("notifications", "user_id", "u1")
	assert.True(t, owned.Match(ins))
	assert.True(t, owned.Match(del))
	assert.False(t, owned.Match(other))

	inserts := InsertsOn("notifications")
	assert.True(t, inserts.Match(other))
	assert.False(t, inserts.Match(del))
	assert.False(t, InsertsOn("payments").Match(ins))
}

func TestDecodeTriggerPayload(t *testing.T) {
	e, err := Decode([]byte(`{"type":"insert","table":"payments","new":{"id":7,"metadata":{"tracking_id":"TRK1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, Insert, e.Kind)
	assert.Equal(t, "payments", e.Table)
	assert.Equal(t, "7", e.Row().String("id"))
	assert.Equal(t, "TRK1", e.Row().Map("metadata").String("tracking_id"))

	_, err = Decode([]byte(`{"type":"TRUNCATE","table":"payments"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`{"type":"INSERT"}`))
	assert.Error(t, err)
}

func TestEncodeDecodeKeepsRow(t *testing.T) {
	in := Event{Kind: Update, Table: "notifications", New: model.JSONMap{"id": "a", "metadata": map[string]interface{}{"seen": true}}}
	b, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, in.Kind, out.Kind)
	assert.True(t, out.New.Map("metadata").Truthy("seen"))
}

func TestHubDeliversOnlyMatchingEvents(t *testing.T) {
	hub := NewHub(8)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, OwnerFilter("notifications", "user_id", "u1"))
	require.NoError(t, err)
	defer sub.Cancel()

	require.NoError(t, hub.Publish(ctx, Event{Kind: Insert, Table: "notifications", New: model.JSONMap{"id": "x", "user_id": "u2"}}))
	require.NoError(t, hub.Publish(ctx, Event{Kind: Insert, Table: "notifications", New: model.JSONMap{"id": "y", "user_id": "u1"}}))

	select {
	case e := <-sub.Events():
		assert.Equal(t, "y", e.Row().String("id"))
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}
	assert.Len(t, sub.Events(), 0)
}

func TestSubscriptionCancelIsIdempotent(t *testing.T) {
	hub := NewHub(1)
	sub, err := hub.Subscribe(context.Background(), InsertsOn("applications"))
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers())

	sub.Cancel()
	sub.Cancel()

	assert.Equal(t, 0, hub.Subscribers())
	select {
	case <-sub.Done():
	default:
		t.Fatal("done should be closed after cancel")
	}

	// Publishing after cancel must not block even though the buffer is tiny.
	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Publish(context.Background(), Event{Kind: Insert, Table: "applications", New: model.JSONMap{"id": i}}))
	}
}

func TestSubscriptionCancelledWithContext(t *testing.T) {
	hub := NewHub(1)
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := hub.Subscribe(ctx, InsertsOn("payments"))
	require.NoError(t, err)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription should close with its context")
	}
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestPublishUnblocksWhenSubscriberCancels(t *testing.T) {
	hub := NewHub(1)
	sub, err := hub.Subscribe(context.Background(), InsertsOn("payments"))
	require.NoError(t, err)

	require.NoError(t, hub.Publish(context.Background(), Event{Kind: Insert, Table: "payments", New: model.JSONMap{"id": 1}}))

	done := make(chan error, 1)
	go func() {
		done <- hub.Publish(context.Background(), Event{Kind: Insert, Table: "payments", New: model.JSONMap{"id": 2}})
	}()

	time.Sleep(20 * time.Millisecond)
	sub.Cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish stayed blocked after cancel")
	}
}
