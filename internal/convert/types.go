// Package convert runs yt-dlp as a subprocess to extract a video's audio as
// MP3 and resolves the path of the produced file.
package convert

import "time"

// RunResult is the structured outcome of executing the conversion subprocess.
type RunResult struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }
