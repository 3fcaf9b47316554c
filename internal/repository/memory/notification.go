// Package memory holds process-local repositories for the memory storage
// driver and for tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/travel-notifications/internal/model"
	"github.com/jwalitptl/travel-notifications/internal/repository"
)

type notificationRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*model.Notification
	now  func() time.Time
}

func NewNotificationRepository() repository.NotificationRepository {
	return &notificationRepository{
		rows: make(map[uuid.UUID]*model.Notification),
		now:  time.Now,
	}
}

func (r *notificationRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Notification
	for _, n := range r.rows {
		if n.OwnerID == ownerID {
			out = append(out, n.Clone().Normalize())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *notificationRepository) Get(ctx context.Context, id, ownerID uuid.UUID) (*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.rows[id]
	if !ok || n.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return n.Clone().Normalize(), nil
}

func (r *notificationRepository) ListByIDs(ctx context.Context, ids []uuid.UUID, ownerID uuid.UUID) ([]*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Notification, 0, len(ids))
	for _, id := range ids {
		if n, ok := r.rows[id]; ok && n.OwnerID == ownerID {
			out = append(out, n.Clone().Normalize())
		}
	}
	return out, nil
}

func (r *notificationRepository) Create(ctx context.Context, notification *model.Notification) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := notification.Clone()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now().UTC()
	}
	n.ClientInsertedAt = time.Time{}
	n.Normalize()
	r.rows[n.ID] = n
	return n.Clone().Normalize(), nil
}

func (r *notificationRepository) UpdateMetadata(ctx context.Context, id, ownerID uuid.UUID, metadata model.JSONMap) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.rows[id]
	if !ok || n.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	updated := n.Clone()
	updated.Metadata = metadata.Clone()
	r.rows[id] = updated.Normalize()
	return nil
}

func (r *notificationRepository) DeleteByOwner(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []uuid.UUID
	for id, n := range r.rows {
		if n.OwnerID == ownerID {
			ids = append(ids, id)
			delete(r.rows, id)
		}
	}
	return ids, nil
}

func (r *notificationRepository) DeleteBefore(ctx context.Context, cutoff time.Time) ([]repository.RowRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var refs []repository.RowRef
	for id, n := range r.rows {
		if n.CreatedAt.Before(cutoff) {
			refs = append(refs, repository.RowRef{ID: id, OwnerID: n.OwnerID})
			delete(r.rows, id)
		}
	}
	return refs, nil
}
