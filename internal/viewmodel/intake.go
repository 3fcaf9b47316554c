package viewmodel

import (
	"fmt"
	"time"

	"github.com/jwalitptl/travel-notifications/internal/model"
	"github.com/jwalitptl/travel-notifications/internal/presenter"
	"github.com/jwalitptl/travel-notifications/pkg/changefeed"
)

const (
	CategoryAdmin  = "admin"
	ImportanceHigh = "high"
)

// IntakeSource is one watched table and the notification it produces.
type IntakeSource struct {
	Table string
	Kind  model.NotificationKind
	Title string
	IDKey string
}

// IntakeSources lists the tables privileged viewers are notified about.
func IntakeSources() []IntakeSource {
	return []IntakeSource{
		{Table: model.TableApplications, Kind: model.KindApplication, Title: "New application submitted", IDKey: model.MetaApplicationID},
		{Table: model.TableAppointments, Kind: model.KindAppointment, Title: "New appointment request", IDKey: model.MetaAppointmentID},
		{Table: model.TablePayments, Kind: model.KindPayment, Title: "New payment attempt", IDKey: model.MetaPaymentID},
	}
}

// subscribeIntake opens one insert-only subscription per source. Sources
// that fail to subscribe are logged and skipped.
func (vm *ViewModel) subscribeIntake(viewer *model.Viewer) {
	for _, src := range IntakeSources() {
		sub, err := vm.deps.Feed.Subscribe(vm.ctx, changefeed.InsertsOn(src.Table))
		if err != nil {
			vm.log.Error(err, "failed to subscribe to intake source", "table", src.Table)
			continue
		}

		vm.mu.Lock()
		vm.intakeSubs = append(vm.intakeSubs, sub)
		vm.mu.Unlock()

		src := src
		vm.wg.Add(1)
		go vm.consume(sub, func(sub changefeed.Subscription, e changefeed.Event) {
			vm.handleIntake(sub, src, e)
		})
	}
	vm.log.Debug("subscribed to admin intake", "viewer_id", viewer.ID.String())
}

// handleIntake persists one admin-owned copy of a source insert and adds it
// to the feed. Persist failures drop the event.
func (vm *ViewModel) handleIntake(sub changefeed.Subscription, src IntakeSource, e changefeed.Event) {
	vm.mu.Lock()
	if !vm.owns(sub) || vm.viewer == nil {
		vm.mu.Unlock()
		return
	}
	admin := *vm.viewer
	vm.mu.Unlock()

	n, err := BuildAdminNotification(src, e.New, admin, vm.now())
	if err == nil {
		err = vm.validate.Validate(n)
	}
	if err != nil {
		vm.metrics.IntakeFailures.WithLabelValues(string(src.Kind)).Inc()
		vm.log.Error(err, "failed to build admin notification", "table", src.Table)
		return
	}

	created, err := vm.deps.Notifications.Create(vm.ctx, n)
	if err != nil {
		vm.metrics.IntakeFailures.WithLabelValues(string(src.Kind)).Inc()
		vm.log.Error(err, "failed to persist admin notification", "table", src.Table, "viewer_id", admin.ID.String())
		return
	}
	vm.metrics.IntakeSynthesized.WithLabelValues(string(src.Kind)).Inc()

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if !vm.sameViewer(admin.ID) {
		return
	}
	created = created.Clone().Normalize()
	created.ClientInsertedAt = vm.now()
	added := vm.store.Insert(created)
	vm.renderLocked()
	if added {
		vm.toastLocked(created)
	}
}

// BuildAdminNotification derives the record an admin receives for a source
// row. The record is owned by admin, never by the row's actor.
func BuildAdminNotification(src IntakeSource, row model.JSONMap, admin model.Viewer, now time.Time) (*model.Notification, error) {
	if row == nil {
		return nil, fmt.Errorf("%s insert carried no row", src.Table)
	}
	rowMeta := row.Map("metadata")

	actor := row.FirstString(model.MetaUserEmail, model.MetaEmail)
	if actor == "" {
		actor = rowMeta.FirstString(model.MetaUserEmail, model.MetaPayerEmail)
	}

	meta := model.JSONMap{
		model.MetaScope:          model.ScopeAdmin,
		model.MetaType:           string(src.Kind),
		model.MetaActionRequired: true,
	}
	if actor != "" {
		meta[model.MetaUserEmail] = actor
	}
	if id := row.String(model.MetaID); id != "" {
		meta[src.IDKey] = id
	}
	if src.Kind == model.KindPayment {
		for _, key := range []string{model.MetaApplicationID, model.MetaTrackingID} {
			if v := rowMeta.String(key); v != "" {
				meta[key] = v
			}
		}
	}

	message := fmt.Sprintf("A %s was created. Review and take action.", src.Kind)
	if actor != "" {
		message = fmt.Sprintf("User (%s) initiated a %s. Review and take action.", actor, src.Kind)
	}

	createdAt := now
	if raw := row.String("created_at"); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			createdAt = t
		}
	}

	link := presenter.AdminLink(model.ParseDetails(meta))
	n := &model.Notification{
		OwnerID:    admin.ID,
		Title:      src.Title,
		Message:    message,
		Category:   CategoryAdmin,
		Importance: ImportanceHigh,
		Link:       &link,
		Metadata:   meta,
		CreatedAt:  createdAt,
	}
	if admin.Email != "" {
		email := admin.Email
		n.OwnerEmail = &email
	}
	return n.Normalize(), nil
}
