package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/ytmp3/ytmp3/internal/apperr"
	"github.com/ytmp3/ytmp3/internal/catalog"
	"github.com/ytmp3/ytmp3/internal/deps"
	"github.com/ytmp3/ytmp3/internal/fileserver"
	"github.com/ytmp3/ytmp3/internal/metrics"
)

type fakeConverter struct {
	mu     sync.Mutex
	calls  []string
	path   string
	err    error
	ctxErr error
	panics bool
}

func (f *fakeConverter) Convert(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	f.ctxErr = ctx.Err()
	if f.panics {
		panic("yt-dlp wrapper exploded")
	}
	return f.path, f.err
}

type fakeChecker struct {
	err    error
	report []deps.Status
}

func (f *fakeChecker) Check() error          { return f.err }
func (f *fakeChecker) Report() []deps.Status { return f.report }

type fakeHistory struct {
	mu        sync.Mutex
	started   []string
	completed []string
	failed    []string
	recent    []*catalog.Conversion
	limit     int
}

func (h *fakeHistory) Start(_ context.Context, url string) *catalog.Conversion {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, url)
	return &catalog.Conversion{ID: "conv-1", URL: url, Status: catalog.StatusRunning}
}

func (h *fakeHistory) Complete(_ context.Context, _ *catalog.Conversion, filename string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed = append(h.completed, filename)
}

func (h *fakeHistory) Fail(_ context.Context, _ *catalog.Conversion, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, err.Error())
}

func (h *fakeHistory) Recent(_ context.Context, limit int) ([]*catalog.Conversion, error) {
	h.limit = limit
	return h.recent, nil
}

type testEnv struct {
	router    http.Handler
	converter *fakeConverter
	checker   *fakeChecker
	history   *fakeHistory
	metrics   *metrics.Metrics
	dir       string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		converter: &fakeConverter{},
		checker:   &fakeChecker{},
		history:   &fakeHistory{},
		metrics:   metrics.New(),
		dir:       dir,
	}
	env.router = NewRouter(ServerConfig{
		Converter: env.converter,
		Checker:   env.checker,
		History:   env.history,
		Metrics:   env.metrics,
		Downloads: fileserver.NewServer(dir, nil, env.metrics.DownloadServed),
		Static: fileserver.StaticHandler(fstest.MapFS{
			"index.html": {Data: []byte("<html>front end</html>")},
			"app.js":     {Data: []byte("// app")},
		}),
		Version: "test",
	})
	return env
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSONBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Equal(t, strconv.Itoa(rec.Body.Len()), rec.Header().Get("Content-Length"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestConvert_RejectedRequestsNeverConvert(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", "{url:", "Invalid JSON."},
		{"trailing garbage", `{"url":"https://youtu.be/x"} extra`, "Invalid JSON."},
		{"json array", `["https://youtu.be/x"]`, "Invalid JSON."},
		{"whitespace body", "   ", "Invalid JSON."},
		{"empty body", "", "YouTube URL is required."},
		{"empty object", "{}", "YouTube URL is required."},
		{"blank url", `{"url":"   "}`, "YouTube URL is required."},
		{"non-youtube host", `{"url":"https://example.com/watch?v=abc"}`, "Please provide a valid YouTube URL."},
		{"bad scheme", `{"url":"ftp://youtube.com/watch?v=abc"}`, "Please provide a valid YouTube URL."},
		{"not a string", `{"url":123}`, "Please provide a valid YouTube URL."},
		{"null url", `{"url":null}`, "Please provide a valid YouTube URL."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(http.MethodPost, ConvertPath, tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, tt.want, decodeJSONBody(t, rec)["error"])
			require.Empty(t, env.converter.calls)
			require.Empty(t, env.history.started)
		})
	}
}

func TestConvert_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t)

	body := `{"url":"https://youtu.be/` + strings.Repeat("a", defaultMaxBodyBytes) + `"}`
	rec := env.do(http.MethodPost, ConvertPath, body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid JSON.", decodeJSONBody(t, rec)["error"])
	require.Empty(t, env.converter.calls)
}

func TestConvert_DependencyMissing(t *testing.T) {
	env := newTestEnv(t)
	env.checker.err = apperr.New(apperr.ErrDependencyMissing, "missing dependency: install 'ffmpeg' on the system.")

	rec := env.do(http.MethodPost, ConvertPath, `{"url":"https://youtu.be/abc"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "missing dependency: install 'ffmpeg' on the system.", decodeJSONBody(t, rec)["error"])
	require.Empty(t, env.converter.calls)
}

func TestConvert_ConversionFailed(t *testing.T) {
	env := newTestEnv(t)
	env.converter.err = apperr.New(apperr.ErrConversionFailed, "ERROR: video unavailable")

	rec := env.do(http.MethodPost, ConvertPath, `{"url":"https://youtu.be/gone"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "ERROR: video unavailable", decodeJSONBody(t, rec)["error"])
	require.Equal(t, []string{"ERROR: video unavailable"}, env.history.failed)
}

func TestConvert_UnkindedErrorStillReportsMessage(t *testing.T) {
	env := newTestEnv(t)
	env.converter.err = errors.New("boom")

	rec := env.do(http.MethodPost, ConvertPath, `{"url":"https://youtu.be/abc"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "boom", decodeJSONBody(t, rec)["error"])
}

func TestConvert_Success(t *testing.T) {
	env := newTestEnv(t)
	env.converter.path = "/app/downloads/Song Title-abc123.mp3"

	rec := env.do(http.MethodPost, ConvertPath, `{"url":"  https://www.youtube.com/watch?v=abc123  "}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSONBody(t, rec)
	require.Equal(t, "Song Title-abc123.mp3", body["filename"])
	require.Equal(t, "/downloads/Song Title-abc123.mp3", body["download_url"])

	require.Equal(t, []string{"https://www.youtube.com/watch?v=abc123"}, env.converter.calls)
	require.Equal(t, []string{"Song Title-abc123.mp3"}, env.history.completed)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestConvert_PanicSettlesGaugeAndHistory(t *testing.T) {
	env := newTestEnv(t)
	env.converter.panics = true

	rec := env.do(http.MethodPost, ConvertPath, `{"url":"https://youtu.be/abc"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "internal server error", decodeJSONBody(t, rec)["error"])

	require.Equal(t, []string{"conversion aborted"}, env.history.failed)
	require.Empty(t, env.history.completed)

	body := env.do(http.MethodGet, "/metrics", "").Body.String()
	require.Contains(t, body, "ytmp3_conversions_in_flight 0")
	require.Contains(t, body, `ytmp3_conversions_total{outcome="failed"} 1`)
}

func TestConvert_DetachedFromRequestCancellation(t *testing.T) {
	env := newTestEnv(t)
	env.converter.path = "/tmp/x.mp3"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, ConvertPath, strings.NewReader(`{"url":"https://youtu.be/abc"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Len(t, env.converter.calls, 1)
	require.NoError(t, env.converter.ctxErr)
}

func TestUnknownRoutes(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/other"},
		{http.MethodPost, "/"},
		{http.MethodPost, "/downloads/x.mp3"},
		{http.MethodPut, ConvertPath},
		{http.MethodDelete, "/health"},
	} {
		rec := env.do(tc.method, tc.path, "{}")
		require.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
		require.Equal(t, "route not found", decodeJSONBody(t, rec)["error"])
	}
}

func TestStaticFallback(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "front end")

	rec = env.do(http.MethodGet, "/app.js", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/missing.css", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, ConvertPath, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, env.converter.calls)
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "Song Title-abc123.mp3"), []byte("ID3data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "passwd"), []byte("inside"), 0o644))

	rec := env.do(http.MethodGet, "/downloads/Song%20Title-abc123.mp3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ID3data", rec.Body.String())
	require.Equal(t, `attachment; filename="Song Title-abc123.mp3"`, rec.Header().Get("Content-Disposition"))

	rec = env.do(http.MethodGet, "/downloads/../../etc/passwd", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "inside", rec.Body.String())

	rec = env.do(http.MethodGet, "/downloads/..%2F..%2Fetc%2Fpasswd", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "inside", rec.Body.String())

	rec = env.do(http.MethodHead, "/downloads/passwd", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDownload_NotFound(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/downloads/missing.mp3", "/downloads/", "/downloads/../../etc/passwd"} {
		rec := env.do(http.MethodGet, path, "")
		require.Equal(t, http.StatusNotFound, rec.Code, path)
		require.Equal(t, "file not found", decodeJSONBody(t, rec)["error"], path)
	}
}

func TestListVideos(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/videos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"videos":[]}`, rec.Body.String())

	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "Song Title-abc123.mp3"), []byte("ID3data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "b-def.mp3.part"), []byte("x"), 0o644))

	rec = env.do(http.MethodGet, "/api/videos", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VideosResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Videos, 1)
	require.Equal(t, "Song Title-abc123.mp3", resp.Videos[0].Name)
	require.Equal(t, "/downloads/Song%20Title-abc123.mp3", resp.Videos[0].URL)
	require.Equal(t, int64(7), resp.Videos[0].Size)

	rec = env.do(http.MethodGet, resp.Videos[0].URL, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.checker.report = []deps.Status{
		{Name: "yt-dlp", Role: "conversion", Available: true, Path: "/usr/bin/yt-dlp"},
		{Name: "ffmpeg", Role: "transcoder", Available: true, Path: "/usr/bin/ffmpeg"},
	}

	rec := env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSONBody(t, rec)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "test", body["version"])
	require.Len(t, body["dependencies"], 2)

	env.checker.report[1].Available = false
	rec = env.do(http.MethodGet, "/health", "")
	require.Equal(t, "degraded", decodeJSONBody(t, rec)["status"])
}

func TestListConversions(t *testing.T) {
	env := newTestEnv(t)
	env.history.recent = []*catalog.Conversion{
		{ID: "b", URL: "https://youtu.be/b", Status: catalog.StatusFailed, Error: "ERROR: gone"},
		{ID: "a", URL: "https://youtu.be/a", Status: catalog.StatusCompleted, Filename: "a.mp3"},
	}

	rec := env.do(http.MethodGet, "/api/conversions?limit=500", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, catalog.MaxListLimit, env.history.limit)

	var resp ConversionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Conversions, 2)
	require.Equal(t, "b", resp.Conversions[0].ID)
	require.Equal(t, "a.mp3", resp.Conversions[1].Filename)

	env.do(http.MethodGet, "/api/conversions", "")
	require.Equal(t, catalog.DefaultListLimit, env.history.limit)

	rec = env.do(http.MethodGet, "/api/conversions?limit=abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListConversions_HistoryDisabled(t *testing.T) {
	router := NewRouter(ServerConfig{
		Converter: &fakeConverter{},
		Checker:   &fakeChecker{},
		Downloads: fileserver.NewServer(t.TempDir(), nil, nil),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"conversions":[]}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodPost, ConvertPath, `{}`)

	rec := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `ytmp3_conversions_total{outcome="invalid_request"} 1`)
}
