package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NotificationKind discriminates what a notification points at.
type NotificationKind string

const (
	KindAppointment NotificationKind = "appointment"
	KindApplication NotificationKind = "application"
	KindPayment     NotificationKind = "payment"
	KindTracking    NotificationKind = "tracking"
	KindGeneric     NotificationKind = "generic"
)

// Metadata keys understood by the feed.
const (
	MetaSeen             = "seen"
	MetaType             = "type"
	MetaCategory         = "category"
	MetaScope            = "scope"
	MetaActionRequired   = "action_required"
	MetaUserEmail        = "user_email"
	MetaEmail            = "email"
	MetaPayerEmail       = "payer_email"
	MetaID               = "id"
	MetaTitle            = "title"
	MetaMessage          = "message"
	MetaAppointmentID    = "appointment_id"
	MetaApplicationID    = "application_id"
	MetaPaymentID        = "payment_id"
	MetaTrackingID       = "tracking_id"
	MetaLatestTrackingID = "latest_tracking_id"

	ScopeAdmin = "admin"
)

// Table names on the managed backend.
const (
	TableNotifications = "notifications"
	TableApplications  = "applications"
	TableAppointments  = "appointments"
	TablePayments      = "payments"
	TableUsers         = "users"
)

// Notification is a single feed row scoped to one owner. Only Metadata["seen"]
// ever changes after creation.
type Notification struct {
	ID         uuid.UUID `json:"id" db:"id"`
	OwnerID    uuid.UUID `json:"user_id" db:"user_id" validate:"required"`
	OwnerEmail *string   `json:"user_email,omitempty" db:"user_email"`
	Title      string    `json:"title" db:"title" validate:"required,max=200"`
	Message    string    `json:"message" db:"message" validate:"max=2000"`
	Category   string    `json:"category" db:"category"`
	Importance string    `json:"importance" db:"importance"`
	Link       *string   `json:"link,omitempty" db:"link"`
	Metadata   JSONMap   `json:"metadata" db:"metadata"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`

	// ClientInsertedAt is stamped locally when the row arrives on a live feed.
	ClientInsertedAt time.Time `json:"-" db:"-"`

	details Details
}

// Details is the typed view of a notification's metadata, one case per kind.
type Details interface {
	Kind() NotificationKind
}

type AppointmentDetails struct {
	AppointmentID string
}

type ApplicationDetails struct {
	ApplicationID string
	TrackingID    string
}

type PaymentDetails struct {
	PaymentID     string
	ApplicationID string
	TrackingID    string
}

type TrackingDetails struct {
	TrackingID string
}

// GenericDetails covers admin-generic and unrecognised types.
type GenericDetails struct {
	Type string
}

func (AppointmentDetails) Kind() NotificationKind { return KindAppointment }
func (ApplicationDetails) Kind() NotificationKind { return KindApplication }
func (PaymentDetails) Kind() NotificationKind     { return KindPayment }
func (TrackingDetails) Kind() NotificationKind    { return KindTracking }
func (GenericDetails) Kind() NotificationKind     { return KindGeneric }

// ParseDetails selects the variant from the type discriminator (falling back to
// category), and only when that is unrecognised from which ids are present.
func ParseDetails(meta JSONMap) Details {
	typ := NotificationKind(strings.ToLower(meta.FirstString(MetaType, MetaCategory)))

	switch typ {
	case KindAppointment:
		return appointmentDetails(meta)
	case KindApplication:
		return applicationDetails(meta)
	case KindPayment:
		return paymentDetails(meta)
	case KindTracking:
		return TrackingDetails{TrackingID: meta.String(MetaTrackingID)}
	}

	switch {
	case meta.String(MetaAppointmentID) != "":
		return appointmentDetails(meta)
	case meta.String(MetaApplicationID) != "":
		return applicationDetails(meta)
	case meta.String(MetaPaymentID) != "":
		return paymentDetails(meta)
	case meta.String(MetaTrackingID) != "":
		return TrackingDetails{TrackingID: meta.String(MetaTrackingID)}
	}
	return GenericDetails{Type: string(typ)}
}

func appointmentDetails(meta JSONMap) AppointmentDetails {
	return AppointmentDetails{AppointmentID: meta.FirstString(MetaAppointmentID, MetaID)}
}

func applicationDetails(meta JSONMap) ApplicationDetails {
	return ApplicationDetails{
		ApplicationID: meta.FirstString(MetaApplicationID, MetaID),
		TrackingID:    meta.FirstString(MetaTrackingID, MetaLatestTrackingID),
	}
}

func paymentDetails(meta JSONMap) PaymentDetails {
	return PaymentDetails{
		PaymentID:     meta.FirstString(MetaPaymentID, MetaID),
		ApplicationID: meta.String(MetaApplicationID),
		TrackingID:    meta.String(MetaTrackingID),
	}
}

// Normalize makes Metadata non-nil and derives Details. Repositories and feed
// decoders call it once per row.
func (n *Notification) Normalize() *Notification {
	if n.Metadata == nil {
		n.Metadata = JSONMap{}
	}
	n.details = ParseDetails(n.Metadata)
	return n
}

// Details returns the typed variant selected at construction.
func (n *Notification) Details() Details {
	if n.details == nil {
		n.Normalize()
	}
	return n.details
}

func (n *Notification) Seen() bool {
	return n.Metadata.Truthy(MetaSeen)
}

func (n *Notification) Unread() bool {
	return !n.Seen()
}

// ActorEmail is the email of whoever triggered the notification, if recorded.
func (n *Notification) ActorEmail() string {
	return n.Metadata.FirstString(MetaUserEmail, MetaEmail)
}

func (n *Notification) Scope() string {
	return n.Metadata.String(MetaScope)
}

func (n *Notification) ActionRequired() bool {
	return n.Metadata.Truthy(MetaActionRequired)
}

// SortKey is CreatedAt, or ClientInsertedAt when the row carries no timestamp.
func (n *Notification) SortKey() time.Time {
	if !n.CreatedAt.IsZero() {
		return n.CreatedAt
	}
	return n.ClientInsertedAt
}

// Clone copies the record including its metadata map.
func (n *Notification) Clone() *Notification {
	c := *n
	c.Metadata = n.Metadata.Clone()
	return &c
}

// WithSeen returns a copy whose metadata has seen=true.
func (n *Notification) WithSeen() *Notification {
	c := n.Clone()
	c.Metadata[MetaSeen] = true
	return c
}

// SeenMetadata returns meta with seen=true, leaving meta untouched.
func SeenMetadata(meta JSONMap) JSONMap {
	out := meta.Clone()
	out[MetaSeen] = true
	return out
}

// Row renders the notification the way a change feed carries it.
func (n *Notification) Row() (JSONMap, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification row: %w", err)
	}
	row := JSONMap{}
	if err := json.Unmarshal(b, &row); err != nil {
		return nil, fmt.Errorf("failed to decode notification row: %w", err)
	}
	return row, nil
}

// NotificationFromRow decodes a change-feed row.
func NotificationFromRow(row JSONMap) (*Notification, error) {
	b, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("failed to encode row: %w", err)
	}
	var n Notification
	if err := json.Unmarshal(b, &n); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	if n.ID == uuid.Nil {
		return nil, fmt.Errorf("notification row has no id")
	}
	return n.Normalize(), nil
}
