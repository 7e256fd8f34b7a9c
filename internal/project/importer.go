package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/heimdex/heimdex-composer/internal/logging"
	"github.com/heimdex/heimdex-composer/internal/media"
)

// ImportReport describes one ImportFolder run.
type ImportReport struct {
	Found   int
	Added   []string
	Skipped int
}

// ImportFolder registers every video file under path that is not already
// registered. Hidden directories are skipped.
func (s *Session) ImportFolder(ctx context.Context, path string) (*ImportReport, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory")
	}

	s.logger.Info("starting import", "path", logging.SanitizePath(absPath))

	var files []string
	err = filepath.WalkDir(absPath, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && p != absPath && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if !d.IsDir() && media.IsVideoFile(d.Name()) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report := &ImportReport{Found: len(files)}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if _, ok := s.reg.FindByPath(f); ok {
			report.Skipped++
			continue
		}
		item := media.NewRawResource(f, "")
		if err := s.reg.Register(item); err != nil {
			s.logger.Warn("failed to register file", "path", logging.SanitizePath(f), "error", err)
			report.Skipped++
			continue
		}
		report.Added = append(report.Added, item.ID)
	}

	s.logger.Info("import completed", "found", report.Found, "added", len(report.Added), "skipped", report.Skipped)
	return report, nil
}
