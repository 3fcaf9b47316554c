package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/travel-notifications/internal/config"
	"github.com/jwalitptl/travel-notifications/internal/model"
	"github.com/jwalitptl/travel-notifications/internal/repository"
	"github.com/jwalitptl/travel-notifications/pkg/changefeed"
	"github.com/jwalitptl/travel-notifications/pkg/metrics"
)

func newTestBase(t *testing.T) BaseRepository {
	t.Helper()
	db, err := NewDB(config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(context.Background(), db, config.DriverSQLite))
	return NewBaseRepository(db)
}

func seed(t *testing.T, repo repository.NotificationRepository, owner uuid.UUID, title string, at time.Time) *model.Notification {
	t.Helper()
	n, err := repo.Create(context.Background(), &model.Notification{
		OwnerID:   owner,
		Title:     title,
		Message:   title + " message",
		Metadata:  model.JSONMap{model.MetaType: "application", model.MetaApplicationID: "app-1"},
		CreatedAt: at,
	})
	require.NoError(t, err)
	return n
}

func TestNotificationRepositoryListByOwner(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository(newTestBase(t))
	owner := uuid.New()
	other := uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seed(t, repo, owner, "T1", base)
	seed(t, repo, owner, "T3", base.Add(2*time.Minute))
	seed(t, repo, owner, "T2", base.Add(time.Minute))
	seed(t, repo, other, "X", base.Add(3*time.Minute))

	rows, err := repo.ListByOwner(ctx, owner, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"T3", "T2", "T1"}, []string{rows[0].Title, rows[1].Title, rows[2].Title})
	assert.Equal(t, model.ApplicationDetails{ApplicationID: "app-1"}, rows[0].Details())

	limited, err := repo.ListByOwner(ctx, owner, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestNotificationRepositoryOwnerScoping(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository(newTestBase(t))
	owner := uuid.New()
	n := seed(t, repo, owner, "mine", time.Now())

	_, err := repo.Get(ctx, n.ID, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = repo.UpdateMetadata(ctx, n.ID, uuid.New(), model.SeenMetadata(n.Metadata))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := repo.Get(ctx, n.ID, owner)
	require.NoError(t, err)
	assert.True(t, got.Unread())
}

func TestNotificationRepositoryUpdateMetadata(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository(newTestBase(t))
	owner := uuid.New()
	n := seed(t, repo, owner, "mark me", time.Now())

	require.NoError(t, repo.UpdateMetadata(ctx, n.ID, owner, model.SeenMetadata(n.Metadata)))

	got, err := repo.Get(ctx, n.ID, owner)
	require.NoError(t, err)
	assert.True(t, got.Seen())
	assert.Equal(t, "app-1", got.Metadata.String(model.MetaApplicationID))
}

func TestNotificationRepositoryListByIDsAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository(newTestBase(t))
	owner := uuid.New()
	other := uuid.New()
	a := seed(t, repo, owner, "a", time.Now())
	b := seed(t, repo, owner, "b", time.Now())
	foreign := seed(t, repo, other, "c", time.Now())

	rows, err := repo.ListByIDs(ctx, []uuid.UUID{a.ID, b.ID, foreign.ID}, owner)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	empty, err := repo.ListByIDs(ctx, nil, owner)
	require.NoError(t, err)
	assert.Empty(t, empty)

	ids, err := repo.DeleteByOwner(ctx, owner)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, ids)

	left, err := repo.ListByOwner(ctx, owner, 0)
	require.NoError(t, err)
	assert.Empty(t, left)

	kept, err := repo.Get(ctx, foreign.ID, other)
	require.NoError(t, err)
	assert.Equal(t, "c", kept.Title)
}

func TestNotificationRepositoryDeleteBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository(newTestBase(t))
	owner := uuid.New()
	other := uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	old := seed(t, repo, owner, "old", base.Add(-48*time.Hour))
	oldOther := seed(t, repo, other, "old other", base.Add(-72*time.Hour))
	seed(t, repo, owner, "new", base)

	refs, err := repo.DeleteBefore(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []repository.RowRef{
		{ID: old.ID, OwnerID: owner},
		{ID: oldOther.ID, OwnerID: other},
	}, refs)

	rows, err := repo.ListByOwner(ctx, owner, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "new", rows[0].Title)
}

func TestUserRepositoryGetRole(t *testing.T) {
	ctx := context.Background()
	base := newTestBase(t)
	repo := NewUserRepository(base)
	id := uuid.New()

	_, err := base.DB().ExecContext(ctx, `INSERT INTO users (id, email, role) VALUES (?, ?, ?)`, id, "ops@example.com", "admin")
	require.NoError(t, err)

	role, err := repo.GetRole(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "admin", role)

	_, err = repo.GetRole(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMigrateRejectsUnknownDriver(t *testing.T) {
	base := newTestBase(t)
	assert.Error(t, Migrate(context.Background(), base.DB(), "mysql"))
}

func TestRelayForwardPublishesDecodedEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := changefeed.NewHub(4)
	sub, err := hub.Subscribe(ctx, changefeed.InsertsOn(model.TablePayments))
	require.NoError(t, err)

	m := metrics.New("test")
	relay := NewRelay("", hub, nil, m)

	payload := `{"type":"INSERT","table":"payments","new":{"id":"p-1","payer_email":"a@b.c"},"old":null}`
	require.NoError(t, relay.Forward(ctx, payload))

	select {
	case e := <-sub.Events():
		assert.Equal(t, changefeed.Insert, e.Kind)
		assert.Equal(t, "p-1", e.New.String("id"))
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RelayEventsForwarded.WithLabelValues(model.TablePayments)))

	assert.Error(t, relay.Forward(ctx, `{"type":"TRUNCATE","table":"payments"}`))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RelayEventsFailed))
}

func TestPostgresTriggerBoundsNotifyPayload(t *testing.T) {
	assert.Contains(t, postgresSchema, "octet_length(payload) >= 7900")
	assert.Contains(t, postgresSchema, "notify_row_summary(new_row)")
	assert.Contains(t, postgresSchema, "EXCEPTION WHEN others THEN")

	// A summarized row still carries what the relay and intake read.
	summary := []byte(`{"type":"INSERT","table":"applications","old":null,
		"new":{"id":"app-9","user_id":null,"user_email":"traveller@example.com","created_at":"2026-03-01T10:00:00Z",
		"metadata":{"visa_id":"v-1","payer_email":"payer@example.com"}}}`)
	e, err := changefeed.Decode(summary)
	require.NoError(t, err)
	assert.Equal(t, changefeed.Insert, e.Kind)
	assert.True(t, changefeed.InsertsOn(model.TableApplications).Match(e))
	assert.Equal(t, "app-9", e.Row().String("id"))
	assert.Equal(t, "traveller@example.com", e.Row().String("user_email"))
}
