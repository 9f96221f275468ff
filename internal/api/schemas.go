package api

import (
	"time"

	"github.com/ytmp3/ytmp3/internal/catalog"
	"github.com/ytmp3/ytmp3/internal/deps"
)

type ConvertResponse struct {
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status       string        `json:"status"`
	Version      string        `json:"version"`
	UptimeS      int64         `json:"uptime_s"`
	Dependencies []deps.Status `json:"dependencies"`
}

type ConversionResponse struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Status     string `json:"status"`
	Filename   string `json:"filename,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type ConversionsResponse struct {
	Conversions []ConversionResponse `json:"conversions"`
}

func ConversionToResponse(c *catalog.Conversion) ConversionResponse {
	return ConversionResponse{
		ID:         c.ID,
		URL:        c.URL,
		Status:     c.Status,
		Filename:   c.Filename,
		Error:      c.Error,
		DurationMS: c.DurationMS,
		CreatedAt:  c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  c.UpdatedAt.Format(time.RFC3339),
	}
}

// VideoResponse is one file of the saved media library. URL is percent-encoded
// so it can be used as a player source directly.
type VideoResponse struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

type VideosResponse struct {
	Videos []VideoResponse `json:"videos"`
}
