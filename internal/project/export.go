package project

import (
	"context"
	"errors"
	"fmt"

	"github.com/heimdex/heimdex-composer/internal/export"
	"github.com/heimdex/heimdex-composer/internal/media"
)

// ErrInvalidOutputDir wraps every output directory validation failure.
var ErrInvalidOutputDir = errors.New("invalid output dir")

// ExportResult describes a written EDL.
type ExportResult struct {
	Path        string
	Composition *media.Composition
}

// ExportEDL builds id and writes its composition as an EDL in dir, which
// must already exist. An empty title uses the item's name.
func (s *Session) ExportEDL(ctx context.Context, id, title string, frameRate float64, dir string) (*ExportResult, error) {
	if err := export.ValidateOutputDir(dir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOutputDir, err)
	}

	item, err := s.reg.Lookup(id)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = item.Name
	}

	comp, err := s.Build(ctx, id)
	if err != nil {
		return nil, err
	}

	sources := make(map[string]export.Source, len(comp.Segments))
	for _, seg := range comp.Segments {
		if _, ok := sources[seg.ResourceID]; ok {
			continue
		}
		res, err := s.reg.Lookup(seg.ResourceID)
		if err != nil {
			return nil, fmt.Errorf("segment resource %s: %w", seg.ResourceID, err)
		}
		sources[res.ID] = export.Source{Name: res.Name, Path: res.Path}
	}

	edl, err := export.GenerateEDL(comp, sources, title, frameRate)
	if err != nil {
		return nil, err
	}
	path, err := export.WriteEDL(dir, title, edl)
	if err != nil {
		return nil, err
	}

	s.logger.Info("composition exported", "item_id", id, "events", len(comp.Segments), "path", path)
	return &ExportResult{Path: path, Composition: comp}, nil
}
