// Package changefeed models the backend's realtime row-change stream: tagged
// insert/update/delete events delivered through cancellable subscriptions.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jwalitptl/travel-notifications/internal/model"
)

// Kind is the row operation carried by an Event.
type Kind string

const (
	Insert Kind = "INSERT"
	Update Kind = "UPDATE"
	Delete Kind = "DELETE"
)

// Event is one row change. New is set for inserts and updates, Old for deletes.
type Event struct {
	Kind  Kind          `json:"type"`
	Table string        `json:"table"`
	New   model.JSONMap `json:"new,omitempty"`
	Old   model.JSONMap `json:"old,omitempty"`
}

// Row returns the row an event is about.
func (e Event) Row() model.JSONMap {
	if e.Kind == Delete || e.New == nil {
		return e.Old
	}
	return e.New
}

// Filter selects the events a subscription receives. Kinds and Column are
// optional; Column/Value is an equality match on the event row.
type Filter struct {
	Table  string
	Kinds  []Kind
	Column string
	Value  string
}

// OwnerFilter scopes a table to rows where column equals value.
func OwnerFilter(table, column, value string) Filter {
	return Filter{Table: table, Column: column, Value: value}
}

// InsertsOn receives only inserts on table.
func InsertsOn(table string) Filter {
	return Filter{Table: table, Kinds: []Kind{Insert}}
}

func (f Filter) Match(e Event) bool {
	if f.Table != "" && f.Table != e.Table {
		return false
	}
	if len(f.Kinds) > 0 {
		ok := false
		for _, k := range f.Kinds {
			if k == e.Kind {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Column == "" {
		return true
	}
	return e.Row().String(f.Column) == f.Value
}

func (f Filter) String() string {
	var b strings.Builder
	b.WriteString(f.Table)
	if f.Column != "" {
		fmt.Fprintf(&b, ":%s=eq.%s", f.Column, f.Value)
	}
	return b.String()
}

// Subscription is a live, cancellable stream of events. Cancel is synchronous
// and safe to call more than once: when it returns, Done is closed and the
// producer side has been detached. Consumers stop reading once Done is closed.
type Subscription interface {
	Events() <-chan Event
	Done() <-chan struct{}
	Cancel()
}

// Source opens subscriptions.
type Source interface {
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)
}

// Publisher emits events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Encode serializes an event for transports.
func Encode(e Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode change event: %w", err)
	}
	return b, nil
}

// Decode parses an event. The kind is upper-cased so trigger payloads using
// TG_OP and lower-case producers both decode.
func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode change event: %w", err)
	}
	e.Kind = Kind(strings.ToUpper(string(e.Kind)))
	switch e.Kind {
	case Insert, Update, Delete:
	default:
		return Event{}, fmt.Errorf("unknown change kind %q", e.Kind)
	}
	if e.Table == "" {
		return Event{}, fmt.Errorf("change event has no table")
	}
	return e, nil
}
