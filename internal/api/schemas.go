package api

import (
	"time"

	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/project"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State       string         `json:"state"`
	ItemsCount  int            `json:"items_count"`
	States      map[string]int `json:"states"`
	Pending     []string       `json:"pending"`
	WarmerState string         `json:"warmer_state"`
}

// CutRequest is a cut in decimal seconds.
type CutRequest struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type AddRawRequest struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

type AddDerivedRequest struct {
	BaseID      string       `json:"base_id"`
	Name        string       `json:"name"`
	Cuts        []CutRequest `json:"cuts,omitempty"`
	CutsApplied bool         `json:"cuts_applied"`
}

// SetCutsRequest replaces the cut list when Cuts is present and toggles the
// applied flag when CutsApplied is present.
type SetCutsRequest struct {
	Cuts        *[]CutRequest `json:"cuts,omitempty"`
	CutsApplied *bool         `json:"cuts_applied,omitempty"`
}

type BuildRequest struct {
	IDs []string `json:"ids,omitempty"`
}

type ItemResponse struct {
	ID          string       `json:"id"`
	Kind        string       `json:"kind"`
	Name        string       `json:"name"`
	Path        string       `json:"path,omitempty"`
	BaseID      string       `json:"base_id,omitempty"`
	Cuts        []CutRequest `json:"cuts"`
	CutsApplied bool         `json:"cuts_applied"`
	Duration    float64      `json:"duration"`
	Width       int          `json:"width,omitempty"`
	Height      int          `json:"height,omitempty"`
	FrameRate   float64      `json:"frame_rate,omitempty"`
	State       string       `json:"state"`
	Error       string       `json:"error,omitempty"`
	Dirty       bool         `json:"dirty"`
	CreatedAt   string       `json:"created_at"`
}

type ItemsResponse struct {
	Items []ItemResponse `json:"items"`
}

type AddRawResponse struct {
	Item  ItemResponse `json:"item"`
	Added bool         `json:"added"`
}

type DependentsResponse struct {
	ID         string   `json:"id"`
	Dependents []string `json:"dependents"`
}

type ReadyResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

type SegmentResponse struct {
	ResourceID string  `json:"resource_id"`
	SourceIn   float64 `json:"source_in"`
	SourceOut  float64 `json:"source_out"`
	TrimStart  float64 `json:"trim_start"`
	TrimEnd    float64 `json:"trim_end"`
	Length     float64 `json:"length"`
}

type CompositionResponse struct {
	ItemID   string            `json:"item_id"`
	Duration float64           `json:"duration"`
	Segments []SegmentResponse `json:"segments"`
	// CutsOnBase holds the item's effective cuts on its base's timeline.
	CutsOnBase []CutRequest `json:"cuts_on_base,omitempty"`
}

type BuildItemResponse struct {
	ID       string  `json:"id"`
	Duration float64 `json:"duration,omitempty"`
	Segments int     `json:"segments,omitempty"`
	Error    string  `json:"error,omitempty"`
	Code     string  `json:"code,omitempty"`
}

type BuildResponse struct {
	Total   int                 `json:"total"`
	Failed  int                 `json:"failed"`
	Summary string              `json:"summary"`
	Results []BuildItemResponse `json:"results"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func cutsToRequest(cuts []timeline.Interval) []CutRequest {
	out := make([]CutRequest, len(cuts))
	for i, c := range cuts {
		out[i] = CutRequest{Start: c.Start.Seconds(), End: c.End.Seconds()}
	}
	return out
}

func cutsFromRequest(cuts []CutRequest) []timeline.Interval {
	if len(cuts) == 0 {
		return nil
	}
	out := make([]timeline.Interval, len(cuts))
	for i, c := range cuts {
		out[i] = timeline.IntervalFromSeconds(c.Start, c.End)
	}
	return out
}

func ItemToResponse(it media.Item) ItemResponse {
	return ItemResponse{
		ID:          it.ID,
		Kind:        it.Kind.String(),
		Name:        it.Name,
		Path:        it.Path,
		BaseID:      it.BaseID,
		Cuts:        cutsToRequest(it.Cuts),
		CutsApplied: it.CutsApplied,
		Duration:    it.Metadata.Duration.Seconds(),
		Width:       it.Metadata.Width,
		Height:      it.Metadata.Height,
		FrameRate:   it.Metadata.FrameRate,
		State:       it.State.String(),
		Error:       it.Error,
		Dirty:       it.Dirty,
		CreatedAt:   it.CreatedAt.Format(time.RFC3339),
	}
}

func CompositionToResponse(c *media.Composition) CompositionResponse {
	resp := CompositionResponse{
		ItemID:   c.ItemID,
		Duration: c.Duration.Seconds(),
		Segments: make([]SegmentResponse, len(c.Segments)),
	}
	for i, s := range c.Segments {
		resp.Segments[i] = SegmentResponse{
			ResourceID: s.ResourceID,
			SourceIn:   s.SourceIn().Seconds(),
			SourceOut:  s.SourceOut().Seconds(),
			TrimStart:  s.TrimStart.Seconds(),
			TrimEnd:    s.TrimEnd.Seconds(),
			Length:     s.Length().Seconds(),
		}
	}
	return resp
}

func BatchToResponse(r *project.BatchReport) BuildResponse {
	resp := BuildResponse{
		Total:   r.Total,
		Failed:  r.Failed,
		Summary: r.Summary(),
		Results: make([]BuildItemResponse, len(r.Results)),
	}
	for i, res := range r.Results {
		item := BuildItemResponse{ID: res.ID}
		if res.Err != nil {
			item.Error = res.Err.Error()
			item.Code = media.ErrorCode(res.Err)
		} else if res.Composition != nil {
			item.Duration = res.Composition.Duration.Seconds()
			item.Segments = len(res.Composition.Segments)
		}
		resp.Results[i] = item
	}
	return resp
}
