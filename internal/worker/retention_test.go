package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/travel-notifications/internal/model"
	"github.com/jwalitptl/travel-notifications/internal/repository"
	"github.com/jwalitptl/travel-notifications/internal/repository/memory"
	"github.com/jwalitptl/travel-notifications/pkg/changefeed"
)

func TestRetentionCleanupPublishesDeletes(t *testing.T) {
	ctx := context.Background()
	hub := changefeed.NewHub(4)
	repo := repository.NewPublishingNotificationRepository(memory.NewNotificationRepository(), hub, nil)
	owner := uuid.New()

	now := time.Now()
	old, err := repo.Create(ctx, &model.Notification{OwnerID: owner, Title: "old", CreatedAt: now.Add(-40 * 24 * time.Hour)})
	require.NoError(t, err)
	fresh, err := repo.Create(ctx, &model.Notification{OwnerID: owner, Title: "fresh", CreatedAt: now.Add(-time.Hour)})
	require.NoError(t, err)

	sub, err := hub.Subscribe(ctx, changefeed.OwnerFilter(model.TableNotifications, "user_id", owner.String()))
	require.NoError(t, err)
	defer sub.Cancel()

	w := NewRetentionWorker(repo, 30*24*time.Hour, time.Hour, nil)
	w.now = func() time.Time { return now }

	removed, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	select {
	case e := <-sub.Events():
		assert.Equal(t, changefeed.Delete, e.Kind)
		assert.Equal(t, old.ID.String(), e.Old["id"])
	case <-time.After(time.Second):
		t.Fatal("no delete event")
	}

	rows, err := repo.ListByOwner(ctx, owner, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, fresh.ID, rows[0].ID)

	removed, err = w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRetentionStartStopsOnCancel(t *testing.T) {
	w := NewRetentionWorker(memory.NewNotificationRepository(), time.Hour, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
