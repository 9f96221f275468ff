package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ytmp3/ytmp3/internal/apperr"
	"github.com/ytmp3/ytmp3/internal/catalog"
	"github.com/ytmp3/ytmp3/internal/deps"
	"github.com/ytmp3/ytmp3/internal/fileserver"
	"github.com/ytmp3/ytmp3/internal/logging"
	"github.com/ytmp3/ytmp3/internal/metrics"
	"github.com/ytmp3/ytmp3/internal/web"
	"github.com/ytmp3/ytmp3/internal/youtube"
)

const (
	ConvertPath   = "/api/youtube-to-mp3"
	DownloadsPath = "/downloads/"

	defaultMaxBodyBytes = 64 << 10

	msgInvalidJSON   = "Invalid JSON."
	msgURLRequired   = "YouTube URL is required."
	msgInvalidURL    = "Please provide a valid YouTube URL."
	msgRouteNotFound = "route not found"
)

var errConversionAborted = errors.New("conversion aborted")

func NewRouter(cfg ServerConfig) *chi.Mux {
	cfg = withDefaults(cfg)
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.GetHead)

	r.Get("/health", healthHandler(cfg))
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Post(ConvertPath, convertHandler(cfg))
	r.Get("/api/conversions", listConversionsHandler(cfg))
	r.Get("/api/videos", listVideosHandler(cfg))

	r.Get(DownloadsPath+"*", downloadHandler(cfg))

	r.Get("/", cfg.Static.ServeHTTP)
	fallback := fallbackHandler(cfg)
	r.NotFound(fallback)
	r.MethodNotAllowed(fallback)

	return r
}

func withDefaults(cfg ServerConfig) ServerConfig {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.History == nil {
		cfg.History = catalog.Disabled{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Static == nil {
		cfg.Static = fileserver.StaticHandler(web.Assets())
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	return cfg
}

// fallbackHandler hands unmatched GET and HEAD requests to the static front
// end. Anything else is an unknown route.
func fallbackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			cfg.Static.ServeHTTP(w, r)
			return
		}
		WriteError(w, http.StatusNotFound, msgRouteNotFound)
	}
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var report []deps.Status
		if cfg.Checker != nil {
			report = cfg.Checker.Report()
		}

		status := "ok"
		if cfg.Checker == nil || !deps.AllAvailable(report) {
			status = "degraded"
		}

		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:       status,
			Version:      cfg.Version,
			UptimeS:      int64(time.Since(cfg.StartTime).Seconds()),
			Dependencies: report,
		})
	}
}

func convertHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(r, cfg.Logger)

		rawURL, err := decodeConvertRequest(w, r, cfg.MaxBodyBytes)
		rawURL = strings.TrimSpace(rawURL)
		if err == nil {
			err = validateURL(rawURL)
		}
		if err != nil {
			cfg.Metrics.ObserveOutcome(metrics.OutcomeInvalidRequest)
			logger.Info("conversion request rejected", "reason", err.Error())
			WriteAppError(w, err)
			return
		}

		if err := cfg.Checker.Check(); err != nil {
			cfg.Metrics.ObserveOutcome(metrics.OutcomeDependencyMissing)
			logger.Error("conversion dependency missing", "error", err)
			WriteAppError(w, err)
			return
		}

		// The subprocess outlives a client that disconnects mid-conversion.
		ctx := context.WithoutCancel(r.Context())
		record := cfg.History.Start(ctx, rawURL)

		logger.Info("conversion started", "url", rawURL, "conversion_id", record.ID)
		path, err := runConversion(ctx, cfg, record, rawURL)
		if err != nil {
			logger.Error("conversion failed",
				"url", rawURL,
				"conversion_id", record.ID,
				"error", err,
			)
			if apperr.KindOf(err) == apperr.ErrInternal {
				err = apperr.Wrap(apperr.ErrConversionFailed, err, err.Error())
			}
			WriteAppError(w, err)
			return
		}

		filename := filepath.Base(path)
		logger.Info("conversion completed",
			"conversion_id", record.ID,
			"file", filename,
		)

		WriteJSON(w, http.StatusOK, ConvertResponse{
			Filename:    filename,
			DownloadURL: DownloadsPath + filename,
		})
	}
}

// runConversion invokes the converter and settles the in-flight gauge, the
// outcome counter and the history record, also when Convert panics.
func runConversion(ctx context.Context, cfg ServerConfig, record *catalog.Conversion, rawURL string) (path string, err error) {
	done := cfg.Metrics.TrackConversion()
	returned := false
	defer func() {
		done()
		switch {
		case !returned:
			cfg.History.Fail(ctx, record, errConversionAborted)
			cfg.Metrics.ObserveOutcome(metrics.OutcomeFailed)
		case err != nil:
			cfg.History.Fail(ctx, record, err)
			cfg.Metrics.ObserveOutcome(metrics.OutcomeFailed)
		default:
			cfg.History.Complete(ctx, record, filepath.Base(path))
			cfg.Metrics.ObserveOutcome(metrics.OutcomeSuccess)
		}
	}()

	path, err = cfg.Converter.Convert(ctx, rawURL)
	returned = true
	return path, err
}

// decodeConvertRequest reads the "url" member of the JSON object body. An
// empty body counts as {}. A url that is present but not a string yields a
// non-empty value that fails validation.
func decodeConvertRequest(w http.ResponseWriter, r *http.Request, maxBytes int64) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		return "", apperr.Wrap(apperr.ErrMalformedRequest, err, msgInvalidJSON)
	}
	if len(body) == 0 {
		return "", nil
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", apperr.Wrap(apperr.ErrMalformedRequest, err, msgInvalidJSON)
	}

	raw, ok := payload["url"]
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(string(raw)) == "null" {
		return string(raw), nil
	}
	return s, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return apperr.New(apperr.ErrValidation, msgURLRequired)
	}
	if !youtube.IsYouTubeURL(raw) {
		return apperr.New(apperr.ErrValidation, msgInvalidURL)
	}
	return nil
}

func downloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, DownloadsPath)
		if err := cfg.Downloads.ServeDownload(w, r, name); err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				requestLogger(r, cfg.Logger).Error("download failed", "file", name, "error", err)
			}
			WriteAppError(w, err)
		}
	}
}

func listConversionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "limit must be an integer")
				return
			}
			limit = n
		}

		conversions, err := cfg.History.Recent(r.Context(), catalog.ClampLimit(limit))
		if err != nil {
			requestLogger(r, cfg.Logger).Error("failed to list conversions", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to list conversions")
			return
		}

		resp := ConversionsResponse{Conversions: make([]ConversionResponse, 0, len(conversions))}
		for _, c := range conversions {
			resp.Conversions = append(resp.Conversions, ConversionToResponse(c))
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func listVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := cfg.Downloads.List()
		if err != nil {
			requestLogger(r, cfg.Logger).Error("failed to list videos", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to list videos")
			return
		}

		resp := VideosResponse{Videos: make([]VideoResponse, 0, len(entries))}
		for _, e := range entries {
			resp.Videos = append(resp.Videos, VideoResponse{
				Name:     e.Name,
				URL:      DownloadsPath + url.PathEscape(e.Name),
				Size:     e.Size,
				Modified: e.Modified.UTC().Format(time.RFC3339),
			})
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
