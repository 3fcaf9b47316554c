package viewmodel

import (
	"context"

	"github.com/jwalitptl/travel-notifications/internal/model"
	"github.com/jwalitptl/travel-notifications/pkg/changefeed"
)

// load replaces the store with the viewer's newest records. A failed read
// leaves the store as it was.
func (vm *ViewModel) load(ctx context.Context, viewer *model.Viewer) {
	records, err := vm.deps.Notifications.ListByOwner(ctx, viewer.ID, vm.opts.HistoryLimit)
	if err != nil {
		vm.log.Error(err, "failed to load notifications", "viewer_id", viewer.ID.String())
		return
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if !vm.sameViewer(viewer.ID) {
		return
	}
	vm.store.ReplaceAll(records)
	vm.renderLocked()
}

// Reload re-reads the viewer's history without touching subscriptions.
func (vm *ViewModel) Reload(ctx context.Context) error {
	viewer, err := vm.current()
	if err != nil {
		return err
	}
	vm.load(ctx, &viewer)
	return nil
}

func (vm *ViewModel) subscribeViewer(viewer *model.Viewer) error {
	filter := changefeed.OwnerFilter(model.TableNotifications, "user_id", viewer.ID.String())
	sub, err := vm.deps.Feed.Subscribe(vm.ctx, filter)
	if err != nil {
		return err
	}

	vm.mu.Lock()
	vm.feedSub = sub
	vm.mu.Unlock()

	vm.wg.Add(1)
	go vm.consume(sub, vm.applyViewerEvent)
	vm.log.Debug("subscribed to viewer feed", "filter", filter.String())
	return nil
}

func (vm *ViewModel) applyViewerEvent(sub changefeed.Subscription, e changefeed.Event) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if !vm.owns(sub) {
		return
	}

	out, err := vm.store.Apply(e, vm.now())
	if err != nil {
		vm.metrics.FeedEventsDropped.WithLabelValues(e.Table).Inc()
		vm.log.Warn("dropped feed event", "kind", string(e.Kind), "error", err.Error())
		return
	}
	vm.metrics.FeedEventsApplied.WithLabelValues(string(e.Kind)).Inc()

	vm.renderLocked()
	if e.Kind == changefeed.Insert && out.Added {
		vm.toastLocked(out.Record)
	}
}
