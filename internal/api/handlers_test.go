package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/bot"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/browser"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/guard"
)

// stubPage is a page with nothing on it: no challenges, no queued items.
// A run against it authenticates, finds an empty queue, and completes.
type stubPage struct {
	url string
}

var _ browser.Page = (*stubPage)(nil)

func (p *stubPage) Goto(url string) error                       { p.url = url; return nil }
func (p *stubPage) Reload() error                               { return nil }
func (p *stubPage) URL() string                                 { return p.url }
func (p *stubPage) Title() (string, error)                      { return "Dreamstime", nil }
func (p *stubPage) Content() (string, error)                    { return "<html></html>", nil }
func (p *stubPage) Evaluate(string) (interface{}, error)        { return "complete", nil }
func (p *stubPage) WaitForSelector(string, time.Duration) error { return nil }
func (p *stubPage) Click(string) error                          { return nil }
func (p *stubPage) Fill(string, string) error                   { return nil }
func (p *stubPage) TypeSlowly(string, string, time.Duration) error {
	return nil
}
func (p *stubPage) Count(string) int                          { return 0 }
func (p *stubPage) Visible(string) bool                       { return false }
func (p *stubPage) InnerText(string) (string, error)          { return "", io.EOF }
func (p *stubPage) InputValue(string) (string, error)         { return "", io.EOF }
func (p *stubPage) SelectOption(string, string) error         { return nil }
func (p *stubPage) DispatchEvent(string, string) error        { return nil }
func (p *stubPage) SetFieldValueWithEvents(string, string) error {
	return nil
}
func (p *stubPage) Screenshot(string) ([]byte, error) { return nil, io.EOF }
func (p *stubPage) Focus(string) error                { return nil }
func (p *stubPage) KeyDown(string) error              { return nil }
func (p *stubPage) KeyUp(string) error                { return nil }
func (p *stubPage) Close() error                      { return nil }

type stubSession struct {
	page browser.Page
}

func (s *stubSession) Name() string { return "cookies" }
func (s *stubSession) Acquire(ctx context.Context) (browser.Page, func(), error) {
	return s.page, func() {}, nil
}
func (s *stubSession) Authenticate(ctx context.Context, p browser.Page) error {
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testFactory builds bots that run against an empty stub portal. The wait
// unit controls how long such a run takes.
func testFactory(unit time.Duration) BotFactory {
	logger := discardLogger()
	return func(runID string, opts bot.Options) (*bot.Bot, error) {
		g := guard.New(bot.UploadURL, logger)
		b := bot.New(opts, &stubSession{page: &stubPage{}}, g, nil, bot.NewRecorder(logger), logger)
		b.SetWaitUnit(unit)
		return b, nil
	}
}

func newTestHandlers(apiKey string, requireKey bool) *Handlers {
	runner := NewRunner(testFactory(time.Millisecond), nil, discardLogger())
	return NewHandlers(runner, nil, apiKey, requireKey, discardLogger())
}

func waitForStatus(t *testing.T, runner *Runner, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runner.Status().Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("runner never reached status %q (last %q)", want, runner.Status().Status)
}

func TestStartRunLifecycle(t *testing.T) {
	h := newTestHandlers("", false)
	router := h.Routes()

	req := httptest.NewRequest(http.MethodPost, "/start", bytes.NewBufferString(`{"repeatCount":"7","template":"template2"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StartRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RunID)
	// Numeric strings coerce; invalid values would have kept defaults.
	assert.Equal(t, 7, resp.Options.RepeatCount)

	waitForStatus(t, h.runner, StatusCompleted)

	status := httptest.NewRecorder()
	router.ServeHTTP(status, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, status.Code)

	var snap StatusSnapshot
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &snap))
	assert.False(t, snap.Running)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.NotEmpty(t, snap.Progress)
}

func TestStartRunEmptyBodyUsesDefaults(t *testing.T) {
	h := newTestHandlers("", false)
	router := h.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/start", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StartRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, bot.DefaultOptions().RepeatCount, resp.Options.RepeatCount)

	waitForStatus(t, h.runner, StatusCompleted)
}

func TestStartRejectsConcurrentRuns(t *testing.T) {
	// A one-second wait unit keeps the first run busy long enough to collide.
	runner := NewRunner(testFactory(time.Second), nil, discardLogger())

	_, err := runner.Start(bot.DefaultOptions())
	require.NoError(t, err)

	_, err = runner.Start(bot.DefaultOptions())
	require.ErrorIs(t, err, ErrRunActive)

	require.NoError(t, runner.Stop())
	waitForStatus(t, runner, StatusCompleted)

	// With the slot free a new run is accepted again.
	_, err = runner.Start(bot.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, runner.Stop())
	waitForStatus(t, runner, StatusCompleted)
}

func TestStopWithoutActiveRun(t *testing.T) {
	h := newTestHandlers("", false)
	router := h.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stop", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No active run")
}

func TestStatusIdleBeforeFirstRun(t *testing.T) {
	h := newTestHandlers("", false)
	router := h.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap StatusSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, StatusIdle, snap.Status)
	assert.False(t, snap.Running)
	assert.Empty(t, snap.Progress)
}

func TestHealth(t *testing.T) {
	h := newTestHandlers("", false)
	router := h.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestAPIKeyGate(t *testing.T) {
	h := newTestHandlers("secret", true)
	router := h.Routes()

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"missing key", "", "", http.StatusUnauthorized, "API key required"},
		{"wrong key", "nope", "", http.StatusForbidden, "Invalid API key"},
		{"header key", "secret", "", http.StatusOK, ""},
		{"query key", "", "secret", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/status"
			if tt.query != "" {
				target += "?api_key=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestBarePathsSkipKeyCheck(t *testing.T) {
	h := newTestHandlers("secret", true)
	router := h.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListRunsWithoutStore(t *testing.T) {
	h := newTestHandlers("", false)
	router := h.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetRunWithoutStore(t *testing.T) {
	h := newTestHandlers("", false)
	router := h.Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
