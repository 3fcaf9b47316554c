package presenter

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/travel-notifications/internal/model"
)

func record(meta model.JSONMap) *model.Notification {
	n := &model.Notification{
		ID:       uuid.New(),
		OwnerID:  uuid.New(),
		Title:    "Application update",
		Message:  "Your application moved forward",
		Metadata: meta,
	}
	return n.Normalize()
}

func TestTrackingLinkDependsOnRole(t *testing.T) {
	p := New("")
	n := record(model.JSONMap{model.MetaType: "application", model.MetaTrackingID: "TRK123"})

	user := p.Present(n, false, time.Now())
	assert.Equal(t, "/views/pages/tracking.html?tracking=TRK123", user.Link)
	assert.Equal(t, UserLinkLabel, user.LinkLabel)

	admin := p.Present(n, true, time.Now())
	assert.Equal(t, "/views/admin/applications.html", admin.Link)
	assert.Equal(t, AdminLinkLabel, admin.LinkLabel)
}

func TestAdminLinks(t *testing.T) {
	tests := []struct {
		name string
		meta model.JSONMap
		want string
	}{
		{"appointment", model.JSONMap{model.MetaType: "appointment", model.MetaAppointmentID: "a 1"}, "/views/admin/appointments.html?id=a+1"},
		{"application", model.JSONMap{model.MetaApplicationID: "app-9"}, "/views/admin/applications.html?id=app-9"},
		{"payment", model.JSONMap{model.MetaType: "payment", model.MetaPaymentID: "p-3", model.MetaApplicationID: "app-9"}, "/views/admin/payments.html?id=p-3"},
		{"payment without id", model.JSONMap{model.MetaType: "payment"}, "/views/admin/payments.html"},
		{"tracking", model.JSONMap{model.MetaType: "tracking", model.MetaTrackingID: "TRK"}, "/views/admin/index.html"},
		{"unknown", model.JSONMap{model.MetaType: "promo"}, "/views/admin/index.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AdminLink(record(tt.meta).Details()))
		})
	}
}

func TestUserLinksNeverReachAdminPages(t *testing.T) {
	tests := []struct {
		name string
		meta model.JSONMap
		want string
	}{
		{"application latest tracking", model.JSONMap{model.MetaType: "application", model.MetaLatestTrackingID: "TRK9"}, "/views/pages/tracking.html?tracking=TRK9"},
		{"application without tracking", model.JSONMap{model.MetaType: "application", model.MetaApplicationID: "app-1"}, ""},
		{"payment", model.JSONMap{model.MetaType: "payment", model.MetaTrackingID: "TRK7"}, "/views/pages/tracking.html?tracking=TRK7"},
		{"tracking", model.JSONMap{model.MetaTrackingID: "TRK5"}, "/views/pages/tracking.html?tracking=TRK5"},
		{"appointment", model.JSONMap{model.MetaAppointmentID: "ap-2"}, "/views/pages/appointment.html?id=ap-2"},
		{"unknown", model.JSONMap{model.MetaType: "promo"}, ""},
	}

	p := New("")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := p.Present(record(tt.meta), false, time.Now())
			assert.Equal(t, tt.want, v.Link)
			assert.NotContains(t, v.Link, "/views/admin/")
			if tt.want == "" {
				assert.Empty(t, v.LinkLabel)
			}
		})
	}
}

func TestHeaderShowsActorOnlyToPrivilegedViewers(t *testing.T) {
	p := New("")
	n := record(model.JSONMap{model.MetaType: "payment", model.MetaUserEmail: "traveller@example.com"})

	assert.Equal(t, "Application update — traveller@example.com", p.Present(n, true, time.Now()).Header)
	assert.Equal(t, "Application update", p.Present(n, false, time.Now()).Header)

	noActor := record(model.JSONMap{})
	assert.Equal(t, "Application update", p.Present(noActor, true, time.Now()).Header)
}

func TestFallbacks(t *testing.T) {
	p := &Presenter{TimeFormat: time.RFC3339, Location: time.UTC}
	now := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)

	n := (&model.Notification{
		ID:       uuid.New(),
		Metadata: model.JSONMap{model.MetaTitle: "From meta", model.MetaMessage: "meta body", model.MetaSeen: true},
	}).Normalize()
	v := p.Present(n, false, now)
	assert.Equal(t, "From meta", v.Header)
	assert.Equal(t, "meta body", v.Body)
	assert.Equal(t, "2026-05-04T03:02:01Z", v.Timestamp)
	assert.False(t, v.Unread)

	bare := (&model.Notification{ID: uuid.New()}).Normalize()
	assert.Equal(t, "Notification", p.Present(bare, false, now).Header)

	n.CreatedAt = now.Add(-time.Hour)
	assert.Equal(t, "2026-05-04T02:02:01Z", p.Present(n, false, now).Timestamp)
}
