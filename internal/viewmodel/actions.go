package viewmodel

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/travel-notifications/internal/model"
	"github.com/jwalitptl/travel-notifications/internal/repository"
)

const (
	opMarkSeen    = "mark_seen"
	opMarkAllSeen = "mark_all_seen"
	opClearAll    = "clear_all"
)

// MarkSeen flips one of the viewer's records to seen locally, then persists
// seen=true. A failed write is logged and returned; the local flip stays.
func (vm *ViewModel) MarkSeen(ctx context.Context, id uuid.UUID) error {
	viewer, err := vm.current()
	if err != nil {
		return err
	}

	vm.mu.Lock()
	n, ok := vm.store.Get(id)
	if !ok {
		vm.mu.Unlock()
		return ErrNotFound
	}
	if n.Seen() {
		vm.mu.Unlock()
		return nil
	}
	vm.store.Replace(n.WithSeen())
	vm.renderLocked()
	vm.mu.Unlock()

	vm.metrics.RemoteWrites.WithLabelValues(opMarkSeen).Inc()
	if err := vm.deps.Notifications.UpdateMetadata(ctx, id, viewer.ID, model.SeenMetadata(n.Metadata)); err != nil {
		vm.metrics.RemoteWriteFailures.WithLabelValues(opMarkSeen).Inc()
		vm.log.Error(err, "failed to mark notification seen", "notification_id", id.String())
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to mark notification seen: %w", err)
	}
	return nil
}

// MarkAllSeen flips every unread record locally first, then persists each
// one's full remote metadata with seen=true. Failed rows are logged and stay
// flipped locally; the remaining rows are still written.
func (vm *ViewModel) MarkAllSeen(ctx context.Context) error {
	viewer, err := vm.current()
	if err != nil {
		return err
	}

	vm.mu.Lock()
	flipped := vm.store.MarkAllSeen()
	if len(flipped) > 0 {
		vm.renderLocked()
	}
	vm.mu.Unlock()

	if len(flipped) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(flipped))
	local := make(map[uuid.UUID]model.JSONMap, len(flipped))
	for _, n := range flipped {
		ids = append(ids, n.ID)
		local[n.ID] = n.Metadata
	}

	// The remote copy is authoritative for the other metadata keys.
	remote, err := vm.deps.Notifications.ListByIDs(ctx, ids, viewer.ID)
	if err != nil {
		vm.log.Error(err, "failed to re-read notifications, writing local metadata", "count", len(ids))
	} else {
		for _, n := range remote {
			local[n.ID] = n.Metadata
		}
	}

	var errs []error
	for _, id := range ids {
		vm.metrics.RemoteWrites.WithLabelValues(opMarkAllSeen).Inc()
		if err := vm.deps.Notifications.UpdateMetadata(ctx, id, viewer.ID, model.SeenMetadata(local[id])); err != nil {
			vm.metrics.RemoteWriteFailures.WithLabelValues(opMarkAllSeen).Inc()
			vm.log.Error(err, "failed to mark notification seen", "notification_id", id.String())
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to persist %d of %d notifications: %w", len(errs), len(ids), errors.Join(errs...))
	}
	return nil
}

// ClearAll deletes every record the viewer owns, then empties the store
// whether or not the delete succeeded. confirm must be true.
func (vm *ViewModel) ClearAll(ctx context.Context, confirm bool) error {
	if !confirm {
		return ErrConfirmationRequired
	}
	viewer, err := vm.current()
	if err != nil {
		return err
	}

	vm.metrics.RemoteWrites.WithLabelValues(opClearAll).Inc()
	_, delErr := vm.deps.Notifications.DeleteByOwner(ctx, viewer.ID)
	if delErr != nil {
		vm.metrics.RemoteWriteFailures.WithLabelValues(opClearAll).Inc()
		vm.log.Error(delErr, "failed to clear notifications", "viewer_id", viewer.ID.String())
	}

	vm.mu.Lock()
	if vm.sameViewer(viewer.ID) {
		vm.store.Clear()
		vm.renderLocked()
	}
	vm.mu.Unlock()

	if delErr != nil {
		return fmt.Errorf("failed to clear notifications: %w", delErr)
	}
	return nil
}

// Click is a tap on the record itself: unread records are marked seen, and
// the feed is re-rendered either way.
func (vm *ViewModel) Click(ctx context.Context, id uuid.UUID) error {
	if _, err := vm.current(); err != nil {
		return err
	}

	vm.mu.Lock()
	n, ok := vm.store.Get(id)
	vm.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if n.Unread() {
		return vm.MarkSeen(ctx, id)
	}

	vm.mu.Lock()
	vm.renderLocked()
	vm.mu.Unlock()
	return nil
}
