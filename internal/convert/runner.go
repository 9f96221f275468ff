package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ytmp3/ytmp3/internal/apperr"
	"github.com/ytmp3/ytmp3/internal/logging"
)

const (
	maxOutputBytes = 256 * 1024 // tail of each stream kept from yt-dlp

	msgConversionFailed = "conversion failed"
	msgUnidentified     = "output file could not be identified"
	msgNotFound         = "output file not found after conversion"
)

// Converter turns a validated YouTube URL into an MP3 file on disk.
type Converter interface {
	// Convert runs the conversion and returns the path of the produced file.
	// The URL must already have passed youtube.IsYouTubeURL.
	Convert(ctx context.Context, url string) (string, error)
}

// Config holds the runner's configuration.
type Config struct {
	Binary        string        // yt-dlp executable name or path
	OutputDir     string        // managed output directory
	TitleMaxBytes int           // title truncation in the output template
	AudioQuality  string        // passed to --audio-quality; "0" is best
	Timeout       time.Duration // zero = no timeout
	Logger        *slog.Logger
}

// DefaultConfig returns production defaults rooted at outputDir.
func DefaultConfig(outputDir string, logger *slog.Logger) Config {
	return Config{
		Binary:        "yt-dlp",
		OutputDir:     outputDir,
		TitleMaxBytes: 120,
		AudioQuality:  "0",
		Logger:        logger,
	}
}

// SubprocessRunner is the production Converter.
type SubprocessRunner struct {
	cfg Config
}

// NewRunner creates a SubprocessRunner, creating the output directory if absent.
func NewRunner(cfg Config) (*SubprocessRunner, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create output dir: %w", err)
	}

	cfg.Logger.Info("conversion runner initialised",
		"binary", cfg.Binary,
		"output_dir", logging.SanitizePath(cfg.OutputDir),
	)

	return &SubprocessRunner{cfg: cfg}, nil
}

// OutputDir returns the managed output directory.
func (r *SubprocessRunner) OutputDir() string {
	return r.cfg.OutputDir
}

// OutputTemplate returns the yt-dlp output template, e.g.
// /app/downloads/%(title).120B-%(id)s.%(ext)s
func (r *SubprocessRunner) OutputTemplate() string {
	return filepath.Join(r.cfg.OutputDir,
		"%(title)."+strconv.Itoa(r.cfg.TitleMaxBytes)+"B-%(id)s.%(ext)s")
}

// Args returns the yt-dlp argument list for url.
func (r *SubprocessRunner) Args(url string) []string {
	return []string{
		"--no-playlist",
		"--no-warnings",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", r.cfg.AudioQuality,
		"--print", "after_move:filepath",
		"--output", r.OutputTemplate(),
		url,
	}
}

// Convert runs yt-dlp synchronously and returns the verified output path.
func (r *SubprocessRunner) Convert(ctx context.Context, url string) (string, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	result := r.exec(ctx, r.Args(url)...)
	return resolveOutput(result)
}

// resolveOutput maps a finished run to the produced file path.
func resolveOutput(result RunResult) (string, error) {
	if !result.IsSuccess() {
		msg := strings.TrimSpace(result.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(result.Stdout)
		}
		if msg == "" {
			msg = msgConversionFailed
		}
		return "", apperr.New(apperr.ErrConversionFailed, msg)
	}

	path := lastNonBlankLine(result.Stdout)
	if path == "" {
		return "", apperr.New(apperr.ErrConversionFailed, msgUnidentified)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrConversionFailed, err, msgNotFound)
	}
	if !info.Mode().IsRegular() {
		return "", apperr.New(apperr.ErrConversionFailed, msgNotFound)
	}

	return path, nil
}

// lastNonBlankLine returns the last line of s that is not empty after
// trimming, trimmed. yt-dlp prints the requested after_move:filepath value
// last, after any progress or diagnostic lines.
func lastNonBlankLine(s string) string {
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// exec is the core subprocess execution helper. A process that cannot be
// started is reported as exit code -1 with the launch error as stderr.
func (r *SubprocessRunner) exec(ctx context.Context, args ...string) RunResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, r.cfg.Binary, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, limit: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxOutputBytes}

	r.cfg.Logger.Info("executing conversion command", "binary", r.cfg.Binary, "args", args)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			stderrBuf.WriteString(err.Error())
		}
	}

	result := RunResult{
		ExitCode: exitCode,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: elapsed,
	}

	if exitCode != 0 {
		r.cfg.Logger.Warn("conversion command failed",
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(result.Stderr, 512),
		)
	} else {
		r.cfg.Logger.Info("conversion command succeeded",
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	return result
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := make([]byte, lw.limit)
		copy(tail, b[len(b)-lw.limit:])
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
