package registry

import (
	"sort"

	"github.com/heimdex/heimdex-composer/internal/media"
)

// EventType names a registry mutation.
type EventType string

const (
	EventAdded   EventType = "added"
	EventRemoved EventType = "removed"
	EventChanged EventType = "changed"
	EventReady   EventType = "ready"
)

// Event is delivered to subscribers after the registry lock is released.
// Item is a snapshot taken when the mutation happened; for EventRemoved it is
// the item as it was before removal.
type Event struct {
	Type   EventType
	ItemID string
	Kind   media.Kind
	Item   media.Item
}

// Subscribe registers fn for every subsequent event and returns a function
// that removes it.
func (r *Registry) Subscribe(fn func(Event)) func() {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()

	id := r.nextListener
	r.nextListener++
	r.listeners[id] = fn

	return func() {
		r.listenersMu.Lock()
		delete(r.listeners, id)
		r.listenersMu.Unlock()
	}
}

func (r *Registry) emit(events ...Event) {
	if len(events) == 0 {
		return
	}

	r.listenersMu.Lock()
	ids := make([]int, 0, len(r.listeners))
	for id := range r.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), len(ids))
	for i, id := range ids {
		fns[i] = r.listeners[id]
	}
	r.listenersMu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

func newEvent(t EventType, it media.Item) Event {
	return Event{Type: t, ItemID: it.ID, Kind: it.Kind, Item: it.Clone()}
}
