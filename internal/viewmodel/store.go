package viewmodel

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/travel-notifications/internal/model"
	"github.com/jwalitptl/travel-notifications/pkg/changefeed"
)

// Store is the viewer's local notification list. It is not safe for
// concurrent use; ViewModel guards it with its mutex.
type Store struct {
	records []*model.Notification
}

func NewStore() *Store {
	return &Store{}
}

// ReplaceAll swaps the whole list, as after an initial load.
func (s *Store) ReplaceAll(records []*model.Notification) {
	s.records = make([]*model.Notification, 0, len(records))
	for _, n := range records {
		if n != nil {
			s.records = append(s.records, n)
		}
	}
}

// Insert prepends n. When a record with the same id is already held it is
// kept, since an insert is never newer than what already arrived for that
// row. It reports whether n was added.
func (s *Store) Insert(n *model.Notification) bool {
	if s.index(n.ID) >= 0 {
		return false
	}
	s.records = append([]*model.Notification{n}, s.records...)
	return true
}

// Upsert replaces the record with n's id, or prepends n when there is none.
// Updates that overtake their insert land here and are absorbed as inserts.
func (s *Store) Upsert(n *model.Notification) bool {
	if s.Replace(n) {
		return false
	}
	s.records = append([]*model.Notification{n}, s.records...)
	return true
}

// Replace swaps an existing record and never adds one.
func (s *Store) Replace(n *model.Notification) bool {
	if i := s.index(n.ID); i >= 0 {
		s.records[i] = n
		return true
	}
	return false
}

// Remove drops the record with id; absent ids are a no-op.
func (s *Store) Remove(id uuid.UUID) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	return true
}

func (s *Store) Get(id uuid.UUID) (*model.Notification, bool) {
	if i := s.index(id); i >= 0 {
		return s.records[i], true
	}
	return nil, false
}

func (s *Store) Len() int {
	return len(s.records)
}

// Unread counts records whose seen flag is falsy.
func (s *Store) Unread() int {
	count := 0
	for _, n := range s.records {
		if n.Unread() {
			count++
		}
	}
	return count
}

// Sorted returns the records newest first by SortKey. Ties keep arrival order.
func (s *Store) Sorted() []*model.Notification {
	out := make([]*model.Notification, len(s.records))
	copy(out, s.records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SortKey().After(out[j].SortKey())
	})
	return out
}

// MarkAllSeen flips every unread record and returns the ones it flipped.
func (s *Store) MarkAllSeen() []*model.Notification {
	var flipped []*model.Notification
	for i, n := range s.records {
		if n.Unread() {
			flipped = append(flipped, n)
			s.records[i] = n.WithSeen()
		}
	}
	return flipped
}

func (s *Store) Clear() {
	s.records = nil
}

// Outcome describes what Apply did with an event.
type Outcome struct {
	Kind   changefeed.Kind
	Record *model.Notification
	// Added is true when the event grew the list.
	Added bool
}

// Apply reduces one live event into the store. receivedAt stamps records that
// arrive through the feed.
func (s *Store) Apply(e changefeed.Event, receivedAt time.Time) (Outcome, error) {
	out := Outcome{Kind: e.Kind}

	switch e.Kind {
	case changefeed.Insert, changefeed.Update:
		n, err := model.NotificationFromRow(e.New)
		if err != nil {
			return out, err
		}
		if e.Kind == changefeed.Insert {
			n.ClientInsertedAt = receivedAt
			out.Added = s.Insert(n)
			out.Record, _ = s.Get(n.ID)
			return out, nil
		}

		n.ClientInsertedAt = receivedAt
		if prev, ok := s.Get(n.ID); ok {
			n.ClientInsertedAt = prev.ClientInsertedAt
		}
		out.Added = s.Upsert(n)
		out.Record = n
		return out, nil

	case changefeed.Delete:
		id, err := uuid.Parse(e.Old.String(model.MetaID))
		if err != nil {
			return out, fmt.Errorf("delete event without a valid id: %w", err)
		}
		s.Remove(id)
		return out, nil
	}
	return out, fmt.Errorf("unknown change kind %q", e.Kind)
}

func (s *Store) index(id uuid.UUID) int {
	for i, n := range s.records {
		if n.ID == id {
			return i
		}
	}
	return -1
}
