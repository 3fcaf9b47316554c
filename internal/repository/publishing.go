package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/travel-notifications/internal/model"
	"github.com/jwalitptl/travel-notifications/pkg/changefeed"
	"github.com/jwalitptl/travel-notifications/pkg/logger"
)

// publishingNotificationRepository emits change events for its own writes.
// Postgres deployments get these from triggers instead; the embedded modes
// have no other source of realtime events.
type publishingNotificationRepository struct {
	NotificationRepository
	pub    changefeed.Publisher
	logger *logger.Logger
}

func NewPublishingNotificationRepository(repo NotificationRepository, pub changefeed.Publisher, log *logger.Logger) NotificationRepository {
	if log == nil {
		log = logger.Nop()
	}
	return &publishingNotificationRepository{
		NotificationRepository: repo,
		pub:                    pub,
		logger:                 log,
	}
}

func (r *publishingNotificationRepository) Create(ctx context.Context, notification *model.Notification) (*model.Notification, error) {
	created, err := r.NotificationRepository.Create(ctx, notification)
	if err != nil {
		return nil, err
	}
	r.publishRow(ctx, changefeed.Insert, created)
	return created, nil
}

func (r *publishingNotificationRepository) UpdateMetadata(ctx context.Context, id, ownerID uuid.UUID, metadata model.JSONMap) error {
	if err := r.NotificationRepository.UpdateMetadata(ctx, id, ownerID, metadata); err != nil {
		return err
	}
	updated, err := r.NotificationRepository.Get(ctx, id, ownerID)
	if err != nil {
		r.logger.Warn("updated notification vanished before publish", "id", id.String(), "error", err.Error())
		return nil
	}
	r.publishRow(ctx, changefeed.Update, updated)
	return nil
}

func (r *publishingNotificationRepository) DeleteByOwner(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := r.NotificationRepository.DeleteByOwner(ctx, ownerID)
	for _, id := range ids {
		r.publish(ctx, changefeed.Event{
			Kind:  changefeed.Delete,
			Table: model.TableNotifications,
			Old:   model.JSONMap{"id": id.String(), "user_id": ownerID.String()},
		})
	}
	return ids, err
}

func (r *publishingNotificationRepository) DeleteBefore(ctx context.Context, cutoff time.Time) ([]RowRef, error) {
	refs, err := r.NotificationRepository.DeleteBefore(ctx, cutoff)
	for _, ref := range refs {
		r.publish(ctx, changefeed.Event{
			Kind:  changefeed.Delete,
			Table: model.TableNotifications,
			Old:   model.JSONMap{"id": ref.ID.String(), "user_id": ref.OwnerID.String()},
		})
	}
	return refs, err
}

func (r *publishingNotificationRepository) publishRow(ctx context.Context, kind changefeed.Kind, n *model.Notification) {
	row, err := n.Row()
	if err != nil {
		r.logger.Error(err, "failed to encode notification change", "id", n.ID.String())
		return
	}
	r.publish(ctx, changefeed.Event{Kind: kind, Table: model.TableNotifications, New: row})
}

func (r *publishingNotificationRepository) publish(ctx context.Context, e changefeed.Event) {
	if err := r.pub.Publish(ctx, e); err != nil {
		r.logger.Error(err, "failed to publish notification change", "kind", string(e.Kind))
	}
}
