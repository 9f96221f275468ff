// Package catalog records the history of conversions in SQLite.
package catalog

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Conversion is one POST /api/youtube-to-mp3 attempt that reached the
// conversion tool.
type Conversion struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Status     string    `json:"status"`
	Filename   string    `json:"filename,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewID() string {
	return uuid.NewString()
}

// ClampLimit maps a requested page size onto [1, MaxListLimit], using
// DefaultListLimit for non-positive values.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
