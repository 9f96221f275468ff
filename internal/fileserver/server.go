// Package fileserver serves converted files from the managed downloads
// directory and the front-end assets.
package fileserver

import (
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ytmp3/ytmp3/internal/apperr"
	"github.com/ytmp3/ytmp3/internal/logging"
	"github.com/ytmp3/ytmp3/internal/web"
)

const msgFileNotFound = "file not found"

// Audio types the converter can produce, checked before the host's mime
// table.
var extraTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".webm": "audio/webm",
	".opus": "audio/ogg",
}

// DownloadService serves files produced by the converter.
type DownloadService interface {
	ServeDownload(w http.ResponseWriter, r *http.Request, name string) error
	List() ([]Entry, error)
}

// Entry is one regular file in the managed directory.
type Entry struct {
	Name     string
	Size     int64
	Modified time.Time
}

type Server struct {
	dir    string
	logger *slog.Logger
	served func()
}

// NewServer returns a Server rooted at dir. served, when non-nil, is called
// after each 200 or 206 response carrying file bytes.
func NewServer(dir string, logger *slog.Logger, served func()) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{dir: dir, logger: logger, served: served}
}

func (s *Server) Dir() string {
	return s.dir
}

// Resolve maps a client-supplied name onto a regular file directly inside
// the managed directory. Only the final path element is used, so names such
// as "../../etc/passwd" resolve to "passwd" inside the directory.
func (s *Server) Resolve(name string) (string, os.FileInfo, error) {
	base := filepath.Base(filepath.FromSlash(strings.ReplaceAll(name, `\`, "/")))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", nil, apperr.New(apperr.ErrNotFound, msgFileNotFound)
	}

	path := filepath.Join(s.dir, base)
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.ErrNotFound, err, msgFileNotFound)
	}
	if !info.Mode().IsRegular() {
		return "", nil, apperr.New(apperr.ErrNotFound, msgFileNotFound)
	}
	return path, info, nil
}

// List returns the regular files directly inside the managed directory,
// sorted by name. Dotfiles and yt-dlp's in-progress .part files are skipped.
func (s *Server) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read downloads dir: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".part") {
			continue
		}
		_, info, err := s.Resolve(name)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Name: name, Size: info.Size(), Modified: info.ModTime()})
	}

	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries, nil
}

// ServeDownload streams the named file as an attachment. Range requests are
// honoured. A missing file is reported as an apperr.ErrNotFound error and
// nothing is written.
func (s *Server) ServeDownload(w http.ResponseWriter, r *http.Request, name string) error {
	path, info, err := s.Resolve(name)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return apperr.Wrap(apperr.ErrNotFound, err, msgFileNotFound)
	}
	defer file.Close()

	base := info.Name()
	w.Header().Set("Content-Type", ContentType(base))
	w.Header().Set("Content-Disposition", attachment(base))

	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	http.ServeContent(sw, r, base, info.ModTime(), file)

	s.logger.Debug("download served", "file", base, "size", info.Size(), "status", sw.status)
	if s.served != nil && (sw.status == http.StatusOK || sw.status == http.StatusPartialContent) {
		s.served()
	}
	return nil
}

// statusWriter records the status ServeContent chose (200, 206, 304, 416...).
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// ContentType guesses the MIME type from the file extension, falling back to
// application/octet-stream.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := extraTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func attachment(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}

// StaticFS returns the front-end file system: dir when set, otherwise the
// embedded assets.
func StaticFS(dir string) (fs.FS, error) {
	if dir == "" {
		return web.Assets(), nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: dir, Err: fs.ErrInvalid}
	}
	return os.DirFS(dir), nil
}

// StaticHandler serves fsys, answering "/" with index.html.
func StaticHandler(fsys fs.FS) http.Handler {
	return http.FileServerFS(fsys)
}
