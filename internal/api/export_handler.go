package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-composer/internal/export"
	"github.com/heimdex/heimdex-composer/internal/project"
)

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req export.ExportRequest
		if r.ContentLength != 0 {
			if err := decodeBody(r, &req); err != nil {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
		}

		outputDir := req.OutputDir
		if outputDir == "" && cfg.ExportDir != "" {
			outputDir = cfg.ExportDir
			if err := os.MkdirAll(outputDir, 0755); err != nil {
				WriteError(w, http.StatusInternalServerError, "failed to create export dir", "INTERNAL_ERROR")
				return
			}
		}

		frameRate := req.FrameRate
		if frameRate <= 0 {
			frameRate = cfg.ExportFPS
		}

		res, err := cfg.Session.ExportEDL(r.Context(), id, req.Title, frameRate, outputDir)
		if err != nil {
			if errors.Is(err, project.ErrInvalidOutputDir) {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
			writeDomainError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, export.ExportResponse{
			Status:     "ok",
			Format:     "edl",
			OutputPath: res.Path,
			EventCount: len(res.Composition.Segments),
			Duration:   res.Composition.Duration.Seconds(),
		})
	}
}
