package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-composer/internal/media"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(LoopbackGuard())
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/build", buildHandler(cfg))
		r.Post("/import", importHandler(cfg))
		r.Post("/warmer/pause", warmerHandler(cfg, true))
		r.Post("/warmer/resume", warmerHandler(cfg, false))

		r.Route("/items", func(r chi.Router) {
			r.Get("/", listItemsHandler(cfg))
			r.Post("/raw", addRawHandler(cfg))
			r.Post("/derived", addDerivedHandler(cfg))
			r.Get("/{id}", getItemHandler(cfg))
			r.Delete("/{id}", deleteItemHandler(cfg))
			r.Get("/{id}/dependents", dependentsHandler(cfg))
			r.Put("/{id}/cuts", setCutsHandler(cfg))
			r.Post("/{id}/ready", readyHandler(cfg))
			r.Get("/{id}/composition", compositionHandler(cfg))
			r.Post("/{id}/export", exportHandler(cfg))
		})
	})

	return r
}

// writeDomainError maps registry, readiness and build errors to a status.
func writeDomainError(w http.ResponseWriter, err error) {
	code := media.ErrorCode(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, media.ErrStale):
		status, code = http.StatusConflict, "STALE"
	case code == "NOT_FOUND":
		status = http.StatusNotFound
	case code == "INVALID_INTERVAL", code == "INVALID_ITEM":
		status = http.StatusBadRequest
	case code == "HAS_DEPENDENTS", code == "DUPLICATE_ID":
		status = http.StatusConflict
	case code == "MISSING_BASE", code == "CYCLE_DETECTED", code == "NOT_READY":
		status = http.StatusUnprocessableEntity
	}
	WriteError(w, status, err.Error(), code)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		version := cfg.Version
		if version == "" {
			version = "dev"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		states := cfg.Session.Status()
		pending := cfg.Session.Pending()
		if pending == nil {
			pending = []string{}
		}

		count := 0
		for _, n := range states {
			count += n
		}

		state := "idle"
		switch {
		case states[media.StateResolvingBase.String()] > 0 || states[media.StatePropagatingMetadata.String()] > 0:
			state = "resolving"
		case len(pending) > 0:
			state = "pending"
		case states[media.StateFailed.String()] > 0:
			state = "error"
		}

		warmer := "off"
		if cfg.Warmer != nil {
			switch {
			case cfg.Warmer.IsPaused():
				warmer = "paused"
			case cfg.Warmer.IsRunning():
				warmer = "running"
			default:
				warmer = "stopped"
			}
		}

		WriteJSON(w, http.StatusOK, StatusResponse{
			State:       state,
			ItemsCount:  count,
			States:      states,
			Pending:     pending,
			WarmerState: warmer,
		})
	}
}

func listItemsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items := cfg.Session.List()
		resp := ItemsResponse{Items: make([]ItemResponse, len(items))}
		for i, it := range items {
			resp.Items[i] = ItemToResponse(it)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func addRawHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddRawRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		item, added, err := cfg.Session.AddRaw(req.Path, req.Name)
		if err != nil {
			code := "BAD_REQUEST"
			if errors.Is(err, media.ErrInvalidItem) {
				code = "INVALID_ITEM"
			}
			WriteError(w, http.StatusBadRequest, err.Error(), code)
			return
		}

		status := http.StatusOK
		if added {
			status = http.StatusCreated
		}
		WriteJSON(w, status, AddRawResponse{Item: ItemToResponse(item), Added: added})
	}
}

func addDerivedHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddDerivedRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.BaseID == "" {
			WriteError(w, http.StatusBadRequest, "base_id is required", "BAD_REQUEST")
			return
		}

		item, err := cfg.Session.Derive(req.BaseID, req.Name, cutsFromRequest(req.Cuts), req.CutsApplied)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, ItemToResponse(item))
	}
}

func getItemHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := cfg.Session.Lookup(chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, ItemToResponse(item))
	}
}

func deleteItemHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Session.Unregister(chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func dependentsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := cfg.Session.Lookup(id); err != nil {
			writeDomainError(w, err)
			return
		}
		deps := cfg.Session.DependentsOf(id)
		if deps == nil {
			deps = []string{}
		}
		WriteJSON(w, http.StatusOK, DependentsResponse{ID: id, Dependents: deps})
	}
}

func setCutsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req SetCutsRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Cuts == nil && req.CutsApplied == nil {
			WriteError(w, http.StatusBadRequest, "cuts or cuts_applied is required", "BAD_REQUEST")
			return
		}

		var (
			item media.Item
			err  error
		)
		if req.Cuts != nil {
			item, err = cfg.Session.SetCuts(r.Context(), id, cutsFromRequest(*req.Cuts))
			if err != nil {
				writeDomainError(w, err)
				return
			}
		}
		if req.CutsApplied != nil {
			item, err = cfg.Session.SetCutsApplied(r.Context(), id, *req.CutsApplied)
			if err != nil {
				writeDomainError(w, err)
				return
			}
		}
		WriteJSON(w, http.StatusOK, ItemToResponse(item))
	}
}

func readyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		state, err := cfg.Session.MakeReady(r.Context(), id)
		if errors.Is(err, media.ErrNotFound) {
			writeDomainError(w, err)
			return
		}

		resp := ReadyResponse{ID: id, State: state.String()}
		if err != nil {
			resp.Error = err.Error()
			resp.Code = media.ErrorCode(err)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func compositionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		comp, err := cfg.Session.Build(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := CompositionToResponse(comp)
		if cuts, err := cfg.Session.CutsOnCompositionAxis(id); err == nil && len(cuts) > 0 {
			resp.CutsOnBase = cutsToRequest(cuts)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func buildHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BuildRequest
		if r.ContentLength != 0 {
			if err := decodeBody(r, &req); err != nil {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
		}

		report := cfg.Session.BuildAll(r.Context(), req.IDs)
		WriteJSON(w, http.StatusOK, BatchToResponse(report))
	}
}

type ImportRequest struct {
	Path string `json:"path"`
}

type ImportResponse struct {
	Found   int      `json:"found"`
	Added   []string `json:"added"`
	Skipped int      `json:"skipped"`
}

func importHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImportRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		report, err := cfg.Session.ImportFolder(r.Context(), req.Path)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		added := report.Added
		if added == nil {
			added = []string{}
		}
		WriteJSON(w, http.StatusOK, ImportResponse{Found: report.Found, Added: added, Skipped: report.Skipped})
	}
}

func warmerHandler(cfg ServerConfig, pause bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Warmer == nil {
			WriteError(w, http.StatusConflict, "warmer is not running", "WARMER_DISABLED")
			return
		}
		if pause {
			cfg.Warmer.Pause()
		} else {
			cfg.Warmer.Resume()
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
