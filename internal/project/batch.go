package project

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/heimdex/heimdex-composer/internal/media"
)

// BuildResult is the outcome for one item of a batch.
type BuildResult struct {
	ID          string
	Composition *media.Composition
	Err         error
}

// BatchReport collects every result of BuildAll, in request order.
type BatchReport struct {
	Total   int
	Failed  int
	Results []BuildResult
}

// Summary reads like "2 of 5 items failed".
func (r *BatchReport) Summary() string {
	return fmt.Sprintf("%d of %d items failed", r.Failed, r.Total)
}

// Errors maps failed ids to their errors.
func (r *BatchReport) Errors() map[string]error {
	out := make(map[string]error, r.Failed)
	for _, res := range r.Results {
		if res.Err != nil {
			out[res.ID] = res.Err
		}
	}
	return out
}

// BuildAll builds ids in parallel, or every registered item when ids is
// empty. One failure never stops the rest of the batch; shared bases are
// resolved once.
func (s *Session) BuildAll(ctx context.Context, ids []string) *BatchReport {
	if len(ids) == 0 {
		for _, it := range s.reg.List() {
			ids = append(ids, it.ID)
		}
	}

	report := &BatchReport{
		Total:   len(ids),
		Results: make([]BuildResult, len(ids)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, id := range ids {
		g.Go(func() error {
			comp, err := s.Build(gctx, id)
			mu.Lock()
			report.Results[i] = BuildResult{ID: id, Composition: comp, Err: err}
			if err != nil {
				report.Failed++
			}
			mu.Unlock()

			if err != nil {
				if media.IsConsistencyDefect(err) {
					s.logger.Error("build failed", "item_id", id, "error", err)
				} else {
					s.logger.Warn("build failed", "item_id", id, "error", err)
				}
			}
			return nil
		})
	}
	g.Wait()

	s.logger.Info("batch build finished", "total", report.Total, "failed", report.Failed)
	return report
}
