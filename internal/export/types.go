package export

// Source names the raw file behind a segment.
type Source struct {
	Name string
	Path string
}

type ExportRequest struct {
	Title     string  `json:"title"`
	FrameRate float64 `json:"frame_rate"`
	OutputDir string  `json:"output_dir"`
}

type ExportResponse struct {
	Status     string  `json:"status"`
	Format     string  `json:"format"`
	OutputPath string  `json:"output_path"`
	EventCount int     `json:"event_count"`
	Duration   float64 `json:"duration"`
}
