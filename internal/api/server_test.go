package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	scanapp "github.com/khanhnv2901/webrecon/internal/application/scan"
	"github.com/khanhnv2901/webrecon/internal/domain/scan"
	"github.com/khanhnv2901/webrecon/internal/infrastructure/memory"
	"github.com/khanhnv2901/webrecon/internal/metrics"
	sharedErrors "github.com/khanhnv2901/webrecon/internal/shared/errors"
)

type fakeScans struct {
	mu        sync.Mutex
	tasks     map[string]scan.Task
	startErr  error
	cancelled []string
}

func newFakeScans(tasks ...scan.Task) *fakeScans {
	f := &fakeScans{tasks: make(map[string]scan.Task)}
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeScans) Start(_ context.Context, target, kind string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	k, err := scan.ParseKind(kind)
	if err != nil {
		return "", err
	}
	task := scan.NewTask(target, k, time.Now())
	f.mu.Lock()
	f.tasks[task.ID] = task
	f.mu.Unlock()
	return task.ID, nil
}

func (f *fakeScans) Status(_ context.Context, id string) (scan.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return scan.Task{}, fmt.Errorf("task %s: %w", id, sharedErrors.ErrNotFound)
	}
	return task, nil
}

func (f *fakeScans) Report(ctx context.Context, id string) (scan.Report, error) {
	task, err := f.Status(ctx, id)
	if err != nil {
		return scan.Report{}, err
	}
	return scan.NewReport(task), nil
}

func (f *fakeScans) List(context.Context) []scan.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]scan.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out
}

func (f *fakeScans) Cancel(ctx context.Context, id string) error {
	if _, err := f.Status(ctx, id); err != nil {
		return err
	}
	f.mu.Lock()
	f.cancelled = append(f.cancelled, id)
	f.mu.Unlock()
	return nil
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = zaptest.NewLogger(t)
	}
	srv := NewServer(cfg)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusCreated, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
}

func TestWriteErrorSanitizesServerErrors(t *testing.T) {
	s := NewServer(Config{Logger: zaptest.NewLogger(t)})
	defer s.Close()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rr := httptest.NewRecorder()
	s.writeError(rr, req, http.StatusInternalServerError, errors.New("open /var/lib/secret.db: permission denied"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "internal server error")
	assert.NotContains(t, rr.Body.String(), "secret.db")

	rr = httptest.NewRecorder()
	s.writeError(rr, req, http.StatusBadRequest, errors.New("bad input"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "bad input")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", sharedErrors.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", sharedErrors.ErrNotFound), http.StatusNotFound},
		{scanapp.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestWriteStreamChunk(t *testing.T) {
	s := &Server{}
	rr := httptest.NewRecorder()
	assert.True(t, s.writeStreamChunk(rr, []byte("hello")))
	assert.Equal(t, "hello", rr.Body.String())
	assert.False(t, s.writeStreamChunk(&failingWriter{}, []byte("fail")))
}

func TestStartScan(t *testing.T) {
	scans := newFakeScans()
	ts := newTestServer(t, Config{Scans: scans})

	resp, err := http.Post(ts.URL+"/api/v1/scans", "application/json",
		strings.NewReader(`{"target":"https://example.com","kind":"headers"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var accepted ScanAccepted
	decodeBody(t, resp, &accepted)
	require.NotEmpty(t, accepted.ID)
	assert.Equal(t, "/api/v1/scans/"+accepted.ID, resp.Header.Get("Location"))

	resp, err = http.Get(ts.URL + "/api/v1/scans/" + accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var task scan.Task
	decodeBody(t, resp, &task)
	assert.Equal(t, accepted.ID, task.ID)
	assert.Equal(t, scan.StatusPending, task.Status)
}

func TestStartScanErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		want     int
		wantBody string
	}{
		{"malformed json", `{"target":`, nil, http.StatusBadRequest, "invalid JSON body"},
		{"unknown kind", `{"target":"https://example.com","kind":"deep"}`, nil, http.StatusBadRequest, "deep"},
		{"invalid target", `{"target":"ftp://x.com","kind":"full"}`, fmt.Errorf("%w: target must be http", sharedErrors.ErrInvalidInput), http.StatusBadRequest, "target must be http"},
		{"shutting down", `{"target":"https://example.com","kind":"full"}`, scanapp.ErrClosed, http.StatusServiceUnavailable, "Service Unavailable"},
		{"store failure", `{"target":"https://example.com","kind":"full"}`, errors.New("insert task: boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scans := newFakeScans()
			scans.startErr = tt.startErr
			ts := newTestServer(t, Config{Scans: scans})

			resp, err := http.Post(ts.URL+"/api/v1/scans", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
			var body map[string]string
			decodeBody(t, resp, &body)
			assert.Contains(t, body["error"], tt.wantBody)
			assert.NotContains(t, body["error"], "boom")
		})
	}
}

func TestUnknownScanIsNotFound(t *testing.T) {
	ts := newTestServer(t, Config{Scans: newFakeScans()})

	for _, path := range []string{"/api/v1/scans/nope", "/api/v1/scans/nope/report"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/scans/nope", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelScan(t *testing.T) {
	task := scan.NewTask("https://example.com", scan.KindFull, time.Now())
	scans := newFakeScans(task)
	ts := newTestServer(t, Config{Scans: scans})

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/scans/"+task.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{task.ID}, scans.cancelled)
}

func TestListScans(t *testing.T) {
	now := time.Now()
	pending := scan.NewTask("https://a.example.com", scan.KindFull, now)
	done := scan.NewTask("https://b.example.com", scan.KindSSL, now)
	require.NoError(t, done.Start(now))
	require.NoError(t, done.Complete(now, ""))
	ts := newTestServer(t, Config{Scans: newFakeScans(pending, done)})

	resp, err := http.Get(ts.URL + "/api/v1/scans")
	require.NoError(t, err)
	var all []scan.Task
	decodeBody(t, resp, &all)
	assert.Len(t, all, 2)

	resp, err = http.Get(ts.URL + "/api/v1/scans?status=completed")
	require.NoError(t, err)
	var completed []scan.Task
	decodeBody(t, resp, &completed)
	require.Len(t, completed, 1)
	assert.Equal(t, done.ID, completed[0].ID)

	resp, err = http.Get(ts.URL + "/api/v1/scans?limit=1")
	require.NoError(t, err)
	var limited []scan.Task
	decodeBody(t, resp, &limited)
	assert.Len(t, limited, 1)

	resp, err = http.Get(ts.URL + "/api/v1/scans?status=sleeping")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, Config{Scans: newFakeScans()})

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/v1/scans", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAuthToken(t *testing.T) {
	m := metrics.New(false)
	ts := newTestServer(t, Config{Scans: newFakeScans(), AuthToken: "s3cret", Metrics: m.Handler()})

	resp, err := http.Get(ts.URL + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/health", nil)
	req.Header.Set("X-Auth-Token", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "metrics are served without the token")
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Config{Scans: newFakeScans(), RateLimit: 1, RateBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Get(ts.URL + "/api/v1/health")
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, Config{Scans: newFakeScans(), CORSOrigins: []string{"https://ui.example.com"}})

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/scans", nil)
	req.Header.Set("Origin", "https://ui.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://ui.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestScanStream(t *testing.T) {
	tasks := memory.NewTaskStore()
	ts := newTestServer(t, Config{Scans: newFakeScans(), Feed: tasks})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/scans-stream", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// the handler subscribes after flushing the headers, so keep inserting
	// until an event arrives
	go func() {
		for ctx.Err() == nil {
			_ = tasks.Insert(scan.NewTask("https://example.com", scan.KindHeaders, time.Now()))
			time.Sleep(20 * time.Millisecond)
		}
	}()

	reader := bufio.NewReader(resp.Body)
	event, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: task\n", event)
	data, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(data, "data: "))

	var task scan.Task
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(data, "data: ")), &task))
	assert.Equal(t, scan.StatusPending, task.Status)
	assert.Equal(t, "https://example.com", task.Target)
}

type failingWriter struct{}

func (f *failingWriter) Header() http.Header { return http.Header{} }
func (f *failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("write failed")
}
func (f *failingWriter) WriteHeader(statusCode int) {}
