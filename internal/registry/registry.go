// Package registry keeps the items of one project session together with the
// reverse dependency index (base id -> dependent ids) that decides when an
// item may be removed.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

// Registry is safe for concurrent use. Every read returns a deep copy, so
// callers work on snapshots and never observe a half-applied mutation.
type Registry struct {
	mu         sync.RWMutex
	items      map[string]*media.Item
	dependents map[string]map[string]struct{}

	listenersMu  sync.Mutex
	listeners    map[int]func(Event)
	nextListener int

	logger *slog.Logger
}

// Stamp pins the revision of one item a computation read.
type Stamp struct {
	ID       string
	Revision uint64
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		items:      make(map[string]*media.Item),
		dependents: make(map[string]map[string]struct{}),
		listeners:  make(map[int]func(Event)),
		logger:     logger,
	}
}

// Register inserts item and, for a derived item, the reverse edge from its
// base. The base does not have to be registered yet.
func (r *Registry) Register(item media.Item) error {
	if err := checkItem(item); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.items[item.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("register %s: %w", item.ID, media.ErrDuplicateID)
	}

	stored := item.Clone()
	if stored.Revision == 0 {
		stored.Revision = 1
	}
	r.items[stored.ID] = &stored

	if stored.Kind == media.KindDerived {
		deps := r.dependents[stored.BaseID]
		if deps == nil {
			deps = make(map[string]struct{})
			r.dependents[stored.BaseID] = deps
		}
		deps[stored.ID] = struct{}{}
	}
	ev := newEvent(EventAdded, stored)
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Debug("item registered", "item_id", item.ID, "kind", item.Kind.String(), "base_id", item.BaseID)
	}
	r.emit(ev)
	return nil
}

func checkItem(item media.Item) error {
	if item.ID == "" {
		return fmt.Errorf("empty id: %w", media.ErrInvalidItem)
	}

	switch item.Kind {
	case media.KindRaw:
		if item.BaseID != "" {
			return fmt.Errorf("raw resource %s has a base: %w", item.ID, media.ErrInvalidItem)
		}
	case media.KindDerived:
		if item.BaseID == "" {
			return fmt.Errorf("derived item %s has no base: %w", item.ID, media.ErrInvalidItem)
		}
		if err := timeline.Validate(item.Cuts, 0); err != nil {
			return fmt.Errorf("derived item %s: %w", item.ID, err)
		}
	default:
		return fmt.Errorf("item %s has %s: %w", item.ID, item.Kind, media.ErrInvalidItem)
	}
	return nil
}

// Unregister removes id. An item that still has dependents stays resident
// and ErrHasDependents is returned.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	it, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("unregister %s: %w", id, media.ErrNotFound)
	}
	if n := len(r.dependents[id]); n > 0 {
		r.mu.Unlock()
		return fmt.Errorf("unregister %s: %d dependents: %w", id, n, media.ErrHasDependents)
	}

	delete(r.items, id)
	delete(r.dependents, id)
	if it.Kind == media.KindDerived {
		if deps := r.dependents[it.BaseID]; deps != nil {
			delete(deps, id)
			if len(deps) == 0 {
				delete(r.dependents, it.BaseID)
			}
		}
	}
	ev := newEvent(EventRemoved, *it)
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Debug("item unregistered", "item_id", id)
	}
	r.emit(ev)
	return nil
}

// Lookup returns a snapshot of id.
func (r *Registry) Lookup(id string) (media.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	it, ok := r.items[id]
	if !ok {
		return media.Item{}, fmt.Errorf("lookup %s: %w", id, media.ErrNotFound)
	}
	return it.Clone(), nil
}

// DependentsOf returns the sorted ids of the items whose base is id.
func (r *Registry) DependentsOf(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.dependents[id]))
	for dep := range r.dependents[id] {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// CanDispose reports whether nothing depends on id any more.
func (r *Registry) CanDispose(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dependents[id]) == 0
}

// Update applies fn to a copy of id and stores the result with a new
// revision. Identity fields (ID, Kind, BaseID) cannot change.
func (r *Registry) Update(id string, fn func(*media.Item) error) (media.Item, error) {
	r.mu.Lock()
	cur, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return media.Item{}, fmt.Errorf("update %s: %w", id, media.ErrNotFound)
	}

	next := cur.Clone()
	if err := fn(&next); err != nil {
		r.mu.Unlock()
		return media.Item{}, err
	}
	if next.ID != cur.ID || next.Kind != cur.Kind || next.BaseID != cur.BaseID {
		r.mu.Unlock()
		return media.Item{}, fmt.Errorf("update %s: identity fields changed: %w", id, media.ErrInvalidItem)
	}
	next.Revision = cur.Revision + 1
	r.items[id] = &next
	ev := newEvent(EventChanged, next)
	r.mu.Unlock()

	r.emit(ev)
	return next.Clone(), nil
}

// Publish writes readiness results for id, but only if every stamped item is
// still registered at the stamped revision. It does not bump the revision.
func (r *Registry) Publish(id string, stamps []Stamp, fn func(*media.Item)) (media.Item, error) {
	r.mu.Lock()
	if err := r.verifyLocked(stamps); err != nil {
		r.mu.Unlock()
		return media.Item{}, fmt.Errorf("publish %s: %w", id, err)
	}
	cur, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return media.Item{}, fmt.Errorf("publish %s: %w", id, media.ErrStale)
	}

	next := cur.Clone()
	fn(&next)
	next.ID, next.Kind, next.BaseID, next.Revision = cur.ID, cur.Kind, cur.BaseID, cur.Revision
	r.items[id] = &next

	var events []Event
	if next.State == media.StateReady && cur.State != media.StateReady {
		events = append(events, newEvent(EventReady, next))
	}
	r.mu.Unlock()

	r.emit(events...)
	return next.Clone(), nil
}

// SetState records a readiness state outside of a stamped publish, for
// failures detected before a chain could be read.
func (r *Registry) SetState(id string, state media.State, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if it, ok := r.items[id]; ok {
		it.State = state
		it.Error = errMsg
	}
}

// Verify fails with ErrStale if any stamped item changed or disappeared.
func (r *Registry) Verify(stamps []Stamp) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.verifyLocked(stamps)
}

func (r *Registry) verifyLocked(stamps []Stamp) error {
	for _, s := range stamps {
		it, ok := r.items[s.ID]
		if !ok || it.Revision != s.Revision {
			return fmt.Errorf("item %s: %w", s.ID, media.ErrStale)
		}
	}
	return nil
}

// Invalidate marks id and everything that transitively depends on it as
// dirty and not ready. It returns the affected ids, id first.
func (r *Registry) Invalidate(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var affected []string
	seen := make(map[string]bool)
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true

		if it, ok := r.items[cur]; ok {
			it.Dirty = true
			it.State = media.StateNotReady
			it.Error = ""
			affected = append(affected, cur)
		}

		deps := make([]string, 0, len(r.dependents[cur]))
		for dep := range r.dependents[cur] {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		queue = append(queue, deps...)
	}
	return affected
}

// Chain returns the derivation chain of id, starting with id itself and
// ending with its raw resource.
func (r *Registry) Chain(id string) ([]media.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	it, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("chain %s: %w", id, media.ErrNotFound)
	}

	var chain []media.Item
	onChain := make(map[string]bool)
	for {
		if onChain[it.ID] {
			return nil, fmt.Errorf("chain %s: %s revisited: %w", id, it.ID, media.ErrCycleDetected)
		}
		onChain[it.ID] = true
		chain = append(chain, it.Clone())

		switch it.Kind {
		case media.KindRaw:
			return chain, nil
		case media.KindDerived:
			base, ok := r.items[it.BaseID]
			if !ok {
				return nil, fmt.Errorf("chain %s: base %s of %s: %w", id, it.BaseID, it.ID, media.ErrMissingBase)
			}
			it = base
		default:
			return nil, fmt.Errorf("chain %s: %s has %s: %w", id, it.ID, it.Kind, media.ErrInvalidItem)
		}
	}
}

// StampsOf records the revisions of the given snapshots.
func StampsOf(items []media.Item) []Stamp {
	out := make([]Stamp, len(items))
	for i, it := range items {
		out[i] = Stamp{ID: it.ID, Revision: it.Revision}
	}
	return out
}

// List returns snapshots of every item, oldest first.
func (r *Registry) List() []media.Item {
	r.mu.RLock()
	out := make([]media.Item, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, it.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Pending returns the ids of items that are dirty or not ready, in List order.
func (r *Registry) Pending() []string {
	var ids []string
	for _, it := range r.List() {
		if it.Dirty || it.State != media.StateReady {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// FindByPath returns the raw resource registered for path.
func (r *Registry) FindByPath(path string) (media.Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, it := range r.items {
		if it.Kind == media.KindRaw && it.Path == path {
			return it.Clone(), true
		}
	}
	return media.Item{}, false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
