package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/travel-notifications/internal/model"
	"github.com/jwalitptl/travel-notifications/internal/repository"
)

const notificationColumns = `id, user_id, user_email, title, message, category, importance, link, metadata, created_at`

type notificationRepository struct {
	BaseRepository
	now func() time.Time
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{BaseRepository: base, now: time.Now}
}

func (r *notificationRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ? ORDER BY created_at DESC`
	args := []interface{}{ownerID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []*model.Notification
	if err := r.db.SelectContext(ctx, &rows, r.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return normalizeAll(rows), nil
}

func (r *notificationRepository) Get(ctx context.Context, id, ownerID uuid.UUID) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ? AND user_id = ?`

	var n model.Notification
	err := r.db.GetContext(ctx, &n, r.rebind(query), id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n.Normalize(), nil
}

func (r *notificationRepository) ListByIDs(ctx context.Context, ids []uuid.UUID, ownerID uuid.UUID) ([]*model.Notification, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+notificationColumns+` FROM notifications WHERE user_id = ? AND id IN (?)`, ownerID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build notification query: %w", err)
	}

	var rows []*model.Notification
	if err := r.db.SelectContext(ctx, &rows, r.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return normalizeAll(rows), nil
}

func (r *notificationRepository) Create(ctx context.Context, notification *model.Notification) (*model.Notification, error) {
	n := notification.Clone()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}
	// Stored in UTC so text-backed timestamps order correctly.
	n.CreatedAt = n.CreatedAt.UTC()
	if n.Importance == "" {
		n.Importance = "normal"
	}
	n.Normalize()

	query := `
		INSERT INTO notifications (
			id, user_id, user_email, title, message, category,
			importance, link, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		n.ID,
		n.OwnerID,
		n.OwnerEmail,
		n.Title,
		n.Message,
		n.Category,
		n.Importance,
		n.Link,
		n.Metadata,
		n.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return n, nil
}

func (r *notificationRepository) UpdateMetadata(ctx context.Context, id, ownerID uuid.UUID, metadata model.JSONMap) error {
	query := `UPDATE notifications SET metadata = ? WHERE id = ? AND user_id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), metadata, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) DeleteByOwner(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &ids, tx.Rebind(`DELETE FROM notifications WHERE user_id = ? RETURNING id`), ownerID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return ids, nil
}

func (r *notificationRepository) DeleteBefore(ctx context.Context, cutoff time.Time) ([]repository.RowRef, error) {
	var refs []repository.RowRef
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &refs, tx.Rebind(`DELETE FROM notifications WHERE created_at < ? RETURNING id, user_id`), cutoff.UTC())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prune notifications: %w", err)
	}
	return refs, nil
}

func normalizeAll(rows []*model.Notification) []*model.Notification {
	for _, n := range rows {
		n.Normalize()
	}
	return rows
}
