// Package presenter turns notification records into role-aware display rows.
package presenter

import (
	"net/url"
	"time"

	"github.com/jwalitptl/travel-notifications/internal/model"
)

// DefaultTimeFormat renders timestamps in the widget's local style.
const DefaultTimeFormat = "Jan 2, 2006, 3:04:05 PM"

const (
	AdminLinkLabel = "Open admin page"
	UserLinkLabel  = "Open tracking"

	adminIndexPath       = "/views/admin/index.html"
	adminAppointmentPath = "/views/admin/appointments.html"
	adminApplicationPath = "/views/admin/applications.html"
	adminPaymentPath     = "/views/admin/payments.html"
	userTrackingPath     = "/views/pages/tracking.html"
	userAppointmentPath  = "/views/pages/appointment.html"

	defaultTitle = "Notification"
)

// View is one rendered notification row.
type View struct {
	ID        string `json:"id"`
	Header    string `json:"header"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
	Unread    bool   `json:"unread"`
	Link      string `json:"link,omitempty"`
	LinkLabel string `json:"link_label,omitempty"`
}

// Presenter formats records with a fixed time layout and location.
type Presenter struct {
	TimeFormat string
	Location   *time.Location
}

func New(timeFormat string) *Presenter {
	if timeFormat == "" {
		timeFormat = DefaultTimeFormat
	}
	return &Presenter{TimeFormat: timeFormat, Location: time.Local}
}

// Present renders n for a privileged or end-user viewer. now is shown when the
// record carries no timestamp at all.
func (p *Presenter) Present(n *model.Notification, privileged bool, now time.Time) View {
	title := n.Title
	if title == "" {
		title = n.Metadata.FirstString(model.MetaTitle)
	}
	if title == "" {
		title = defaultTitle
	}

	header := title
	if privileged {
		if actor := n.ActorEmail(); actor != "" {
			header = title + " — " + actor
		}
	}

	body := n.Message
	if body == "" {
		body = n.Metadata.FirstString(model.MetaMessage)
	}

	v := View{
		ID:        n.ID.String(),
		Header:    header,
		Body:      body,
		Timestamp: p.timestamp(n, now),
		Unread:    n.Unread(),
	}
	if privileged {
		v.Link, v.LinkLabel = AdminLink(n.Details()), AdminLinkLabel
	} else if link := UserLink(n.Details()); link != "" {
		v.Link, v.LinkLabel = link, UserLinkLabel
	}
	return v
}

// PresentAll renders records in the order given.
func (p *Presenter) PresentAll(records []*model.Notification, privileged bool, now time.Time) []View {
	views := make([]View, 0, len(records))
	for _, n := range records {
		views = append(views, p.Present(n, privileged, now))
	}
	return views
}

func (p *Presenter) timestamp(n *model.Notification, now time.Time) string {
	ts := n.CreatedAt
	if ts.IsZero() {
		ts = now
	}
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	return ts.In(loc).Format(p.TimeFormat)
}

// AdminLink points a privileged viewer at the management page for d. It
// always returns a path; unknown kinds land on the admin index.
func AdminLink(d model.Details) string {
	switch d := d.(type) {
	case model.AppointmentDetails:
		return withQuery(adminAppointmentPath, "id", d.AppointmentID)
	case model.ApplicationDetails:
		return withQuery(adminApplicationPath, "id", d.ApplicationID)
	case model.PaymentDetails:
		return withQuery(adminPaymentPath, "id", d.PaymentID)
	default:
		return adminIndexPath
	}
}

// UserLink points an end user at a public page, or returns "" when there is
// nothing to show them.
func UserLink(d model.Details) string {
	var tracking string
	switch d := d.(type) {
	case model.ApplicationDetails:
		tracking = d.TrackingID
	case model.TrackingDetails:
		tracking = d.TrackingID
	case model.PaymentDetails:
		tracking = d.TrackingID
	case model.AppointmentDetails:
		if d.AppointmentID == "" {
			return ""
		}
		return withQuery(userAppointmentPath, "id", d.AppointmentID)
	}
	if tracking == "" {
		return ""
	}
	return withQuery(userTrackingPath, "tracking", tracking)
}

func withQuery(path, key, value string) string {
	if value == "" {
		return path
	}
	return path + "?" + key + "=" + url.QueryEscape(value)
}
