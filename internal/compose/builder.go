// Package compose resolves derivation chains into the ordered list of
// playable segments consumed by playback and export.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/registry"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

type cacheEntry struct {
	comp   *media.Composition
	stamps []registry.Stamp
}

// Builder builds compositions from registry snapshots. Results are only
// returned, and cached, if no item on the chain changed while building.
type Builder struct {
	reg    *registry.Registry
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry

	// beforeVerify runs between building and the final revision check.
	// Tests use it to mutate the registry mid-build.
	beforeVerify func(id string)
}

func NewBuilder(reg *registry.Registry, logger *slog.Logger) *Builder {
	return &Builder{
		reg:    reg,
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
}

// Build returns the composition of id.
func (b *Builder) Build(ctx context.Context, id string) (*media.Composition, error) {
	if comp, ok := b.cached(id); ok {
		return comp, nil
	}

	var stamps []registry.Stamp
	comp, err := b.build(ctx, id, nil, &stamps)
	if err != nil {
		return nil, err
	}

	if b.beforeVerify != nil {
		b.beforeVerify(id)
	}
	if err := b.reg.Verify(stamps); err != nil {
		b.logger.Info("discarding composition built from a changed chain", "item_id", id, "error", err)
		return nil, fmt.Errorf("build %s: %w", id, err)
	}

	b.mu.Lock()
	b.cache[id] = cacheEntry{comp: comp, stamps: stamps}
	b.mu.Unlock()

	b.logger.Debug("composition built",
		"item_id", id,
		"segments", len(comp.Segments),
		"duration", comp.Duration.String(),
		"levels", len(stamps),
	)
	return comp.Clone(), nil
}

func (b *Builder) cached(id string) (*media.Composition, bool) {
	b.mu.Lock()
	entry, ok := b.cache[id]
	b.mu.Unlock()
	if !ok {
		return nil, false
	}
	if err := b.reg.Verify(entry.stamps); err != nil {
		b.Forget(id)
		return nil, false
	}
	return entry.comp.Clone(), true
}

// Forget drops the cached composition of id.
func (b *Builder) Forget(ids ...string) {
	b.mu.Lock()
	for _, id := range ids {
		delete(b.cache, id)
	}
	b.mu.Unlock()
}

func (b *Builder) build(ctx context.Context, id string, stack []string, stamps *[]registry.Stamp) (*media.Composition, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build %s: %w", id, err)
	}
	for _, onStack := range stack {
		if onStack == id {
			return nil, fmt.Errorf("build %s: already on chain %v: %w", id, stack, media.ErrCycleDetected)
		}
	}

	item, err := b.reg.Lookup(id)
	if err != nil {
		return nil, err
	}
	*stamps = append(*stamps, registry.Stamp{ID: item.ID, Revision: item.Revision})
	stack = append(stack, id)

	switch item.Kind {
	case media.KindRaw:
		if item.State != media.StateReady {
			return nil, fmt.Errorf("build %s: raw resource is %s: %w", id, item.State, media.ErrNotReady)
		}
		return wholeResource(item), nil

	case media.KindDerived:
		base, err := b.reg.Lookup(item.BaseID)
		if err != nil {
			if errors.Is(err, media.ErrNotFound) {
				return nil, fmt.Errorf("build %s: base %s: %w", id, item.BaseID, media.ErrMissingBase)
			}
			return nil, err
		}
		return b.buildDerived(ctx, item, base, stack, stamps)

	default:
		return nil, fmt.Errorf("build %s: unexpected %s: %w", id, item.Kind, media.ErrBuildFailure)
	}
}

func (b *Builder) buildDerived(ctx context.Context, item, base media.Item, stack []string, stamps *[]registry.Stamp) (*media.Composition, error) {
	switch base.Kind {
	case media.KindRaw:
		if base.State != media.StateReady {
			return nil, fmt.Errorf("build %s: base %s is %s: %w", item.ID, base.ID, base.State, media.ErrNotReady)
		}
		*stamps = append(*stamps, registry.Stamp{ID: base.ID, Revision: base.Revision})
		return onResource(item, base)

	case media.KindDerived:
		baseComp, err := b.build(ctx, base.ID, stack, stamps)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", item.ID, err)
		}
		if base.State != media.StateReady {
			return nil, fmt.Errorf("build %s: base %s is %s: %w", item.ID, base.ID, base.State, media.ErrNotReady)
		}
		return onComposition(item, baseComp)

	default:
		return nil, fmt.Errorf("build %s: base %s has %s: %w", item.ID, base.ID, base.Kind, media.ErrBuildFailure)
	}
}

func wholeResource(res media.Item) *media.Composition {
	return &media.Composition{
		ItemID:   res.ID,
		Segments: []media.Segment{{ResourceID: res.ID, ResourceDuration: res.Metadata.Duration}},
		Duration: res.Metadata.Duration,
	}
}

// onResource applies item's cuts directly to the raw resource it plays.
func onResource(item, res media.Item) (*media.Composition, error) {
	d := res.Metadata.Duration
	if !item.HasAppliedCuts() {
		comp := wholeResource(res)
		comp.ItemID = item.ID
		return comp, nil
	}
	if err := timeline.Validate(item.Cuts, d); err != nil {
		return nil, fmt.Errorf("build %s: %w", item.ID, err)
	}

	keep, trimmed := timeline.Normalize(item.Cuts, d)
	comp := &media.Composition{
		ItemID:   item.ID,
		Segments: segmentsFromKeep(res.ID, d, keep),
		Duration: trimmed,
	}
	if err := checkComposition(comp, trimmed); err != nil {
		return nil, err
	}
	return comp, nil
}

// onComposition applies item's cuts to the already edited timeline of its
// derived base.
func onComposition(item media.Item, base *media.Composition) (*media.Composition, error) {
	if !item.HasAppliedCuts() {
		comp := base.Clone()
		comp.ItemID = item.ID
		return comp, nil
	}
	if err := timeline.Validate(item.Cuts, base.Duration); err != nil {
		return nil, fmt.Errorf("build %s: %w", item.ID, err)
	}

	keep, trimmed := timeline.Normalize(item.Cuts, base.Duration)
	comp := &media.Composition{
		ItemID:   item.ID,
		Segments: sliceSegments(base.Segments, keep),
		Duration: trimmed,
	}
	if err := checkComposition(comp, trimmed); err != nil {
		return nil, err
	}
	return comp, nil
}
