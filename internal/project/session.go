// Package project ties the registry, readiness, composition and the
// persistent store into one editing session.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/heimdex/heimdex-composer/internal/compose"
	"github.com/heimdex/heimdex-composer/internal/logging"
	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/probe"
	"github.com/heimdex/heimdex-composer/internal/readiness"
	"github.com/heimdex/heimdex-composer/internal/registry"
	"github.com/heimdex/heimdex-composer/internal/store"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

const DefaultWorkers = 4

type Options struct {
	// Prober reads metadata of raw resources registered without a duration.
	Prober probe.Prober
	// Repo persists items. Nil keeps the session in memory only.
	Repo    store.Repository
	Workers int
	Logger  *slog.Logger
}

// Session is one open project.
type Session struct {
	reg     *registry.Registry
	coord   *readiness.Coordinator
	builder *compose.Builder
	repo    store.Repository
	workers int
	logger  *slog.Logger

	loading     atomic.Bool
	unsubscribe func()
}

func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}

	reg := registry.New(logging.WithComponent(logger, "registry"))
	s := &Session{
		reg:     reg,
		coord:   readiness.NewCoordinator(reg, opts.Prober, logging.WithComponent(logger, "readiness")),
		builder: compose.NewBuilder(reg, logging.WithComponent(logger, "compose")),
		repo:    opts.Repo,
		workers: workers,
		logger:  logger,
	}
	if s.repo != nil {
		s.unsubscribe = reg.Subscribe(s.onEvent)
	}
	return s
}

// Close stops persisting registry changes.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Load registers every persisted item. Items may reference bases stored
// after them; missing bases surface later as ErrMissingBase.
func (s *Session) Load(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("load items: %w", err)
	}

	s.loading.Store(true)
	defer s.loading.Store(false)

	n := 0
	for _, it := range items {
		if err := s.reg.Register(it); err != nil {
			if errors.Is(err, media.ErrDuplicateID) {
				continue
			}
			return n, fmt.Errorf("load item %s: %w", it.ID, err)
		}
		n++
	}
	s.logger.Info("project loaded", "items", n)
	return n, nil
}

func (s *Session) Registry() *registry.Registry {
	return s.reg
}

func (s *Session) Register(item media.Item) error {
	return s.reg.Register(item)
}

// AddRaw registers the file at path as a raw resource. A file that is
// already registered returns the existing item.
func (s *Session) AddRaw(path, name string) (media.Item, bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return media.Item{}, false, fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return media.Item{}, false, fmt.Errorf("path does not exist: %w", err)
	}
	if info.IsDir() {
		return media.Item{}, false, fmt.Errorf("%s is a directory: %w", absPath, media.ErrInvalidItem)
	}

	if existing, ok := s.reg.FindByPath(absPath); ok {
		return existing, false, nil
	}

	item := media.NewRawResource(absPath, name)
	if err := s.reg.Register(item); err != nil {
		return media.Item{}, false, err
	}
	s.logger.Info("raw resource added", "item_id", item.ID, "path", logging.SanitizePath(absPath))
	return s.mustLookup(item.ID), true, nil
}

// Derive registers a new derived item playing baseID, which must exist.
func (s *Session) Derive(baseID, name string, cuts []timeline.Interval, applied bool) (media.Item, error) {
	if _, err := s.reg.Lookup(baseID); err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return media.Item{}, fmt.Errorf("derive from %s: %w", baseID, media.ErrMissingBase)
		}
		return media.Item{}, err
	}
	if err := timeline.Validate(cuts, 0); err != nil {
		return media.Item{}, err
	}

	item := media.NewDerivedItem(baseID, name, cuts, applied)
	if err := s.reg.Register(item); err != nil {
		return media.Item{}, err
	}
	s.logger.Info("derived item added", "item_id", item.ID, "base_id", baseID, "cuts", len(cuts))
	return s.mustLookup(item.ID), nil
}

// Unregister removes id unless other items still derive from it.
func (s *Session) Unregister(id string) error {
	if err := s.reg.Unregister(id); err != nil {
		return err
	}
	s.builder.Forget(id)
	return nil
}

func (s *Session) Lookup(id string) (media.Item, error) {
	return s.reg.Lookup(id)
}

func (s *Session) DependentsOf(id string) []string {
	return s.reg.DependentsOf(id)
}

func (s *Session) List() []media.Item {
	return s.reg.List()
}

func (s *Session) MakeReady(ctx context.Context, id string) (media.State, error) {
	state, err := s.coord.MakeReady(ctx, id)
	s.syncChain(ctx, id)
	return state, err
}

// Build makes id ready and returns its composition.
func (s *Session) Build(ctx context.Context, id string) (*media.Composition, error) {
	if _, err := s.MakeReady(ctx, id); err != nil {
		return nil, err
	}
	return s.builder.Build(ctx, id)
}

// CutsOnCompositionAxis reports the effective cuts of id on the timeline of
// its base. The base must be ready.
func (s *Session) CutsOnCompositionAxis(id string) ([]timeline.Interval, error) {
	item, err := s.reg.Lookup(id)
	if err != nil {
		return nil, err
	}
	if item.Kind != media.KindDerived {
		return nil, nil
	}
	base, err := s.reg.Lookup(item.BaseID)
	if err != nil {
		return nil, fmt.Errorf("base %s: %w", item.BaseID, media.ErrMissingBase)
	}
	if base.State != media.StateReady {
		return nil, fmt.Errorf("base %s is %s: %w", base.ID, base.State, media.ErrNotReady)
	}
	return compose.CutsOnCompositionAxis(item, base.Metadata.Duration), nil
}

// SetCuts replaces the cut list of a derived item and invalidates it and
// everything derived from it.
func (s *Session) SetCuts(ctx context.Context, id string, cuts []timeline.Interval) (media.Item, error) {
	if err := timeline.Validate(cuts, 0); err != nil {
		return media.Item{}, err
	}
	return s.mutateCuts(ctx, id, func(it *media.Item) {
		it.Cuts = timeline.Clone(cuts)
	})
}

// SetCutsApplied toggles whether the cut list of id affects playback.
func (s *Session) SetCutsApplied(ctx context.Context, id string, applied bool) (media.Item, error) {
	return s.mutateCuts(ctx, id, func(it *media.Item) {
		it.CutsApplied = applied
	})
}

func (s *Session) mutateCuts(ctx context.Context, id string, fn func(*media.Item)) (media.Item, error) {
	_, err := s.reg.Update(id, func(it *media.Item) error {
		if it.Kind != media.KindDerived {
			return fmt.Errorf("%s is a %s item without cuts: %w", id, it.Kind, media.ErrInvalidItem)
		}
		fn(it)
		return nil
	})
	if err != nil {
		return media.Item{}, err
	}

	affected := s.reg.Invalidate(id)
	s.builder.Forget(affected...)
	s.sync(ctx, affected...)

	s.logger.Info("cuts changed", "item_id", id, "invalidated", len(affected))
	return s.reg.Lookup(id)
}

// Pending returns items that still need readiness work, skipping failed
// ones that nothing has invalidated since.
func (s *Session) Pending() []string {
	var ids []string
	for _, id := range s.reg.Pending() {
		it, err := s.reg.Lookup(id)
		if err != nil || it.State == media.StateFailed {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Status counts items per readiness state.
func (s *Session) Status() map[string]int {
	counts := make(map[string]int)
	for _, it := range s.reg.List() {
		counts[it.State.String()]++
	}
	return counts
}

func (s *Session) mustLookup(id string) media.Item {
	it, _ := s.reg.Lookup(id)
	return it
}

func (s *Session) onEvent(ev registry.Event) {
	if s.loading.Load() {
		return
	}
	s.sync(context.Background(), ev.ItemID)
}

// sync writes the current registry state of ids to the store. Reading the
// live item rather than the event snapshot keeps out-of-order events from
// overwriting newer data.
func (s *Session) sync(ctx context.Context, ids ...string) {
	if s.repo == nil {
		return
	}
	for _, id := range ids {
		it, err := s.reg.Lookup(id)
		if errors.Is(err, media.ErrNotFound) {
			if err := s.repo.DeleteItem(ctx, id); err != nil {
				s.logger.Error("failed to delete item from store", "item_id", id, "error", err)
			}
			continue
		}
		if err != nil {
			continue
		}
		if err := s.repo.SaveItem(ctx, it); err != nil {
			s.logger.Error("failed to save item", "item_id", id, "error", err)
		}
	}
}

func (s *Session) syncChain(ctx context.Context, id string) {
	if s.repo == nil {
		return
	}
	chain, err := s.reg.Chain(id)
	if err != nil {
		s.sync(ctx, id)
		return
	}
	ids := make([]string, len(chain))
	for i, it := range chain {
		ids[i] = it.ID
	}
	s.sync(ctx, ids...)
}
