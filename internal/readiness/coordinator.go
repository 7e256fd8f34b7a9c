// Package readiness brings items into the Ready state by resolving their
// derivation chain base-first and propagating metadata up the chain.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/probe"
	"github.com/heimdex/heimdex-composer/internal/registry"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

var ErrNoProber = errors.New("no prober configured")

type Coordinator struct {
	reg    *registry.Registry
	prober probe.Prober
	logger *slog.Logger
	group  singleflight.Group
}

// NewCoordinator returns a Coordinator. A nil prober is allowed when every
// raw resource is registered with a known duration.
func NewCoordinator(reg *registry.Registry, prober probe.Prober, logger *slog.Logger) *Coordinator {
	return &Coordinator{reg: reg, prober: prober, logger: logger}
}

// MakeReady resolves id and every base below it. A failure of any base
// fails id with an error wrapping ErrNotReady.
func (c *Coordinator) MakeReady(ctx context.Context, id string) (media.State, error) {
	item, err := c.reg.Lookup(id)
	if err != nil {
		return media.StateNotReady, err
	}
	if item.State == media.StateReady && !item.Dirty {
		return media.StateReady, nil
	}

	chain, err := c.reg.Chain(id)
	if err != nil {
		if media.IsConsistencyDefect(err) {
			c.reg.SetState(id, media.StateFailed, err.Error())
			c.logger.Error("derivation chain is inconsistent", "item_id", id, "error", err)
			return media.StateFailed, err
		}
		return media.StateNotReady, err
	}

	for i := len(chain) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return media.StateNotReady, fmt.Errorf("make ready %s: %w", id, err)
		}

		link := chain[i].ID
		state, err := c.step(ctx, link)
		if err == nil {
			continue
		}
		if state != media.StateFailed {
			return state, err
		}
		if i == 0 {
			return media.StateFailed, err
		}

		wrapped := fmt.Errorf("%w: base %s: %w", media.ErrNotReady, link, err)
		for _, above := range chain[:i] {
			c.reg.SetState(above.ID, media.StateFailed, wrapped.Error())
		}
		return media.StateFailed, wrapped
	}
	return media.StateReady, nil
}

// step resolves a single item whose bases are already handled. Concurrent
// callers for the same id share one resolution.
func (c *Coordinator) step(ctx context.Context, id string) (media.State, error) {
	v, err, shared := c.group.Do(id, func() (any, error) {
		return c.resolve(ctx, id)
	})
	if shared {
		c.logger.Debug("joined in-flight readiness", "item_id", id)
	}
	state, _ := v.(media.State)
	return state, err
}

func (c *Coordinator) resolve(ctx context.Context, id string) (media.State, error) {
	chain, err := c.reg.Chain(id)
	if err != nil {
		if media.IsConsistencyDefect(err) {
			c.reg.SetState(id, media.StateFailed, err.Error())
			return media.StateFailed, err
		}
		return media.StateNotReady, err
	}
	item := chain[0]
	if item.State == media.StateReady && !item.Dirty {
		return media.StateReady, nil
	}

	stamps := registry.StampsOf(chain)
	if err := c.transition(id, stamps, media.StateResolvingBase); err != nil {
		return c.stale(id, err)
	}

	var base media.Item
	if item.Kind == media.KindDerived {
		base = chain[1]
		if base.State != media.StateReady {
			return c.fail(id, stamps, fmt.Errorf("base %s is %s: %w", base.ID, base.State, media.ErrNotReady))
		}
	}

	if err := c.transition(id, stamps, media.StatePropagatingMetadata); err != nil {
		return c.stale(id, err)
	}

	var meta media.Metadata
	switch item.Kind {
	case media.KindRaw:
		meta, err = c.rawMetadata(ctx, item)
	case media.KindDerived:
		meta, err = derivedMetadata(item, base)
	default:
		err = fmt.Errorf("item %s has %s: %w", id, item.Kind, media.ErrInvalidItem)
	}
	if err != nil {
		if ctx.Err() != nil {
			c.reg.SetState(id, media.StateNotReady, "")
			return media.StateNotReady, fmt.Errorf("make ready %s: %w", id, ctx.Err())
		}
		return c.fail(id, stamps, err)
	}

	_, err = c.reg.Publish(id, stamps, func(it *media.Item) {
		it.Metadata = meta
		it.State = media.StateReady
		it.Error = ""
		it.Dirty = false
	})
	if err != nil {
		return c.stale(id, err)
	}

	c.logger.Debug("item ready",
		"item_id", id,
		"kind", item.Kind.String(),
		"duration", meta.Duration.String(),
	)
	return media.StateReady, nil
}

func (c *Coordinator) rawMetadata(ctx context.Context, item media.Item) (media.Metadata, error) {
	if item.Metadata.Duration > 0 {
		return item.Metadata, nil
	}
	if c.prober == nil {
		return media.Metadata{}, fmt.Errorf("raw resource %s has no duration: %w", item.ID, ErrNoProber)
	}

	res, err := c.prober.Probe(ctx, item.Path)
	if err != nil {
		return media.Metadata{}, err
	}
	return media.Metadata{
		Duration:  res.Duration,
		Width:     res.Width,
		Height:    res.Height,
		FrameRate: res.FrameRate,
	}, nil
}

func derivedMetadata(item, base media.Item) (media.Metadata, error) {
	meta := media.Metadata{
		Duration:  base.Metadata.Duration,
		Width:     base.Metadata.Width,
		Height:    base.Metadata.Height,
		FrameRate: base.Metadata.FrameRate,
	}
	if !item.HasAppliedCuts() {
		return meta, nil
	}
	if err := timeline.Validate(item.Cuts, base.Metadata.Duration); err != nil {
		return media.Metadata{}, fmt.Errorf("item %s: %w", item.ID, err)
	}
	_, meta.Duration = timeline.Normalize(item.Cuts, base.Metadata.Duration)
	return meta, nil
}

func (c *Coordinator) transition(id string, stamps []registry.Stamp, state media.State) error {
	_, err := c.reg.Publish(id, stamps, func(it *media.Item) {
		it.State = state
	})
	return err
}

func (c *Coordinator) fail(id string, stamps []registry.Stamp, cause error) (media.State, error) {
	_, err := c.reg.Publish(id, stamps, func(it *media.Item) {
		it.State = media.StateFailed
		it.Error = cause.Error()
	})
	if err != nil {
		return c.stale(id, err)
	}

	if media.IsConsistencyDefect(cause) {
		c.logger.Error("readiness failed", "item_id", id, "error", cause)
	} else {
		c.logger.Warn("readiness failed", "item_id", id, "error", cause)
	}
	return media.StateFailed, cause
}

// stale handles a chain that changed while id was being resolved. The item
// goes back to NotReady so the next pass picks it up again.
func (c *Coordinator) stale(id string, err error) (media.State, error) {
	c.reg.SetState(id, media.StateNotReady, "")
	c.logger.Info("readiness discarded, chain changed", "item_id", id, "error", err)
	return media.StateNotReady, err
}
