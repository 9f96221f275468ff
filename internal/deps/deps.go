// Package deps verifies that the external executables ytmp3 shells out to
// are resolvable on PATH.
package deps

import (
	"fmt"
	"os/exec"

	"github.com/ytmp3/ytmp3/internal/apperr"
)

// Tool is an external executable the service relies on.
type Tool struct {
	// Name is the binary looked up on PATH (or an explicit path).
	Name string
	// Role describes what the tool is used for in reports.
	Role string
}

// Status is the lookup result for one tool.
type Status struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Checker resolves tools on every call. Presence is never cached.
type Checker struct {
	tools    []Tool
	lookPath func(string) (string, error)
}

// NewChecker returns a Checker for the conversion tool and the transcoder,
// checked in that order.
func NewChecker(ytdlp, ffmpeg string) *Checker {
	return &Checker{
		tools: []Tool{
			{Name: ytdlp, Role: "conversion"},
			{Name: ffmpeg, Role: "transcoder"},
		},
		lookPath: exec.LookPath,
	}
}

// Check returns a DependencyMissing error naming the first tool that cannot
// be resolved, or nil when all are present.
func (c *Checker) Check() error {
	for _, t := range c.tools {
		if _, err := c.lookPath(t.Name); err != nil {
			return apperr.Wrap(apperr.ErrDependencyMissing, err,
				fmt.Sprintf("missing dependency: install '%s' on the system.", t.Name))
		}
	}
	return nil
}

// Report resolves every tool and returns one Status per tool, in check order.
func (c *Checker) Report() []Status {
	out := make([]Status, 0, len(c.tools))
	for _, t := range c.tools {
		s := Status{Name: t.Name, Role: t.Role}
		if p, err := c.lookPath(t.Name); err != nil {
			s.Error = err.Error()
		} else {
			s.Available = true
			s.Path = p
		}
		out = append(out, s)
	}
	return out
}

// AllAvailable reports whether every status in report is available.
func AllAvailable(report []Status) bool {
	for _, s := range report {
		if !s.Available {
			return false
		}
	}
	return true
}
