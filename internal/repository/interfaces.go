package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/travel-notifications/internal/model"
)

// ErrNotFound is returned when an owner-scoped row does not exist.
var ErrNotFound = errors.New("not found")

// All repository interfaces in one file
type (
	// NotificationRepository is the owner-scoped notifications table. Every
	// read and write that names a row also names its owner.
	NotificationRepository interface {
		// ListByOwner returns up to limit rows, newest first. limit <= 0 means all.
		ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*model.Notification, error)
		Get(ctx context.Context, id, ownerID uuid.UUID) (*model.Notification, error)
		// ListByIDs returns the rows among ids that belong to ownerID.
		ListByIDs(ctx context.Context, ids []uuid.UUID, ownerID uuid.UUID) ([]*model.Notification, error)
		// Create assigns id and created_at when unset and returns the stored row.
		Create(ctx context.Context, notification *model.Notification) (*model.Notification, error)
		UpdateMetadata(ctx context.Context, id, ownerID uuid.UUID, metadata model.JSONMap) error
		// DeleteByOwner removes every row of ownerID and returns their ids.
		DeleteByOwner(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error)
		// DeleteBefore removes rows created before cutoff, across all owners.
		DeleteBefore(ctx context.Context, cutoff time.Time) ([]RowRef, error)
	}

	// RowRef names a deleted row and its owner.
	RowRef struct {
		ID      uuid.UUID `db:"id"`
		OwnerID uuid.UUID `db:"user_id"`
	}

	UserRepository interface {
		// GetRole returns the stored role, ErrNotFound when the user has no row.
		GetRole(ctx context.Context, userID uuid.UUID) (string, error)
	}
)
