package scan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/khanhnv2901/webrecon/internal/checker"
	domain "github.com/khanhnv2901/webrecon/internal/domain/scan"
	"github.com/khanhnv2901/webrecon/internal/infrastructure/memory"
	"github.com/khanhnv2901/webrecon/internal/probe"
	sharedErrors "github.com/khanhnv2901/webrecon/internal/shared/errors"
)

func newTestOrchestrator(t *testing.T, overrides ...func(*Dependencies)) *Orchestrator {
	t.Helper()
	logger := zaptest.NewLogger(t)
	client := checker.NewHTTPClient(checker.ClientConfig{Timeout: 5 * time.Second, FollowRedirects: true})
	probeClient := checker.NewHTTPClient(checker.ClientConfig{Timeout: 5 * time.Second})
	engine := probe.NewEngine(probe.Config{Client: probeClient, Logger: logger})

	deps := Dependencies{
		Tasks:         memory.NewTaskStore(memory.WithLogger(logger)),
		Reports:       memory.NewReportStore(),
		Headers:       checker.NewHeaderAuditor(client, logger),
		Certificates:  checker.NewCertificateAuditor(client, logger),
		Fingerprinter: checker.NewTechnologyFingerprinter(client, logger),
		Engine:        engine,
		Legacy:        probe.NewLegacyScanner(engine),
		Logger:        logger,
	}
	for _, override := range overrides {
		override(&deps)
	}
	o := NewOrchestrator(deps)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o
}

func waitForTerminal(t *testing.T, o *Orchestrator, id string) domain.Task {
	t.Helper()
	var task domain.Task
	require.Eventually(t, func() bool {
		var err error
		task, err = o.Status(context.Background(), id)
		require.NoError(t, err)
		return task.Status.IsTerminal()
	}, 60*time.Second, 20*time.Millisecond)
	return task
}

// waitForReport polls until the sealed report reflects the terminal task.
func waitForReport(t *testing.T, o *Orchestrator, id string) domain.Report {
	t.Helper()
	var report domain.Report
	require.Eventually(t, func() bool {
		var err error
		report, err = o.Report(context.Background(), id)
		return err == nil && report.Task.Status.IsTerminal()
	}, 60*time.Second, 20*time.Millisecond)
	return report
}

// newCleanServer serves a hardened page at "/" only and answers 429 once
// three requests have been served.
func newCleanServer(t *testing.T) *httptest.Server {
	t.Helper()
	limiter := rate.NewLimiter(rate.Every(time.Hour), 3)
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'")
		if !limiter.Allow() {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><body><h1>Welcome</h1></body></html>`))
	}))
	t.Cleanup(server.Close)
	return server
}

// newBlockingServer holds every request until the client goes away.
func newBlockingServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStart_RejectsInvalidTarget(t *testing.T) {
	o := newTestOrchestrator(t)

	for _, target := range []string{"ftp://x.com", "example.com", "", "http://"} {
		id, err := o.Start(context.Background(), target, "full")
		assert.ErrorIs(t, err, sharedErrors.ErrInvalidInput, target)
		assert.Empty(t, id)
	}
	assert.Empty(t, o.List(context.Background()))
}

func TestStart_RejectsUnknownKind(t *testing.T) {
	o := newTestOrchestrator(t)

	id, err := o.Start(context.Background(), "http://example.com", "bogus-kind")
	require.ErrorIs(t, err, sharedErrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "bogus-kind")
	assert.Empty(t, id)
	assert.Empty(t, o.List(context.Background()))
}

func TestUnknownIDIsNotFound(t *testing.T) {
	o := newTestOrchestrator(t)

	_, err := o.Status(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, sharedErrors.ErrNotFound)
	_, err = o.Report(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, sharedErrors.ErrNotFound)
	assert.ErrorIs(t, o.Cancel(context.Background(), "does-not-exist"), sharedErrors.ErrNotFound)
}

func TestHeadersScan_NoSecurityHeaders(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain"))
	}))
	defer server.Close()
	o := newTestOrchestrator(t)

	id, err := o.Start(context.Background(), server.URL, "headers")
	require.NoError(t, err)

	task := waitForTerminal(t, o, id)
	assert.Equal(t, domain.StatusCompleted, task.Status)
	assert.Empty(t, task.Error)

	report := waitForReport(t, o, id)
	require.GreaterOrEqual(t, len(report.Headers), checker.ChecklistSize)
	for _, check := range report.Headers[:checker.ChecklistSize] {
		assert.False(t, check.IsPresent, check.HeaderName)
		assert.False(t, check.IsSecure, check.HeaderName)
	}
	assert.Nil(t, report.Certificate)
	assert.Empty(t, report.Findings)
}

func TestSSLScan_PlainHTTPTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain"))
	}))
	defer server.Close()
	o := newTestOrchestrator(t)

	id, err := o.Start(context.Background(), server.URL, "ssl")
	require.NoError(t, err)

	task := waitForTerminal(t, o, id)
	assert.Equal(t, domain.StatusCompleted, task.Status)

	report := waitForReport(t, o, id)
	require.NotNil(t, report.Certificate)
	assert.Equal(t, domain.GradeF, report.Certificate.Grade)
	assert.Equal(t, []string{checker.NoHTTPSNote}, report.Certificate.Vulnerabilities)
}

func TestVulnerabilityScan_CleanTarget(t *testing.T) {
	server := newCleanServer(t)
	o := newTestOrchestrator(t)

	id, err := o.Start(context.Background(), server.URL, "vulnerability")
	require.NoError(t, err)

	task := waitForTerminal(t, o, id)
	assert.Equal(t, domain.StatusCompleted, task.Status)
	assert.Empty(t, task.Error)

	report := waitForReport(t, o, id)
	require.Len(t, report.Findings, 2)
	categories := make([]any, 0, len(report.Findings))
	for _, f := range report.Findings {
		assert.Equal(t, domain.SeverityInfo, f.Severity)
		assert.Equal(t, id, f.TaskID)
		categories = append(categories, f.RawEvidence["owasp"])
	}
	assert.ElementsMatch(t, []any{"A07:2021", "A09:2021"}, categories)
}

func TestUnimplementedKinds(t *testing.T) {
	for _, kind := range []string{"quick", "port"} {
		t.Run(kind, func(t *testing.T) {
			o := newTestOrchestrator(t)

			id, err := o.Start(context.Background(), "http://example.com", kind)
			require.NoError(t, err)

			task := waitForTerminal(t, o, id)
			assert.Equal(t, domain.StatusFailed, task.Status)
			assert.Contains(t, task.Error, kind+": unimplemented")

			report := waitForReport(t, o, id)
			assert.False(t, report.HasOutput())
		})
	}
}

func TestStatusIsMonotonicAndTimestampsOrdered(t *testing.T) {
	tasks := memory.NewTaskStore()
	updates, unsubscribe := tasks.Subscribe()
	defer unsubscribe()

	o := newTestOrchestrator(t, func(d *Dependencies) {
		d.Tasks = tasks
		d.Headers = fakeHeaders{checks: []domain.SecurityHeaderCheck{{HeaderName: "x-frame-options"}}}
	})

	id, err := o.Start(context.Background(), "https://example.com", "headers")
	require.NoError(t, err)

	rank := map[domain.Status]int{
		domain.StatusPending:   0,
		domain.StatusRunning:   1,
		domain.StatusCompleted: 2,
		domain.StatusFailed:    2,
	}
	last := -1
	var final domain.Task
	timeout := time.After(10 * time.Second)
	for final.ID == "" {
		select {
		case snapshot := <-updates:
			if snapshot.ID != id {
				continue
			}
			require.GreaterOrEqual(t, rank[snapshot.Status], last)
			last = rank[snapshot.Status]
			if snapshot.Status.IsTerminal() {
				final = snapshot
			}
		case <-timeout:
			t.Fatal("scan did not finish")
		}
	}

	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.CompletedAt)
	assert.False(t, final.StartedAt.Before(final.CreatedAt))
	assert.False(t, final.CompletedAt.Before(*final.StartedAt))

	again, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, final.Status, again.Status)
	assert.Equal(t, final.CompletedAt, again.CompletedAt)
}

func TestFullScan_PartialFailureStillCompletes(t *testing.T) {
	o := newTestOrchestrator(t, func(d *Dependencies) {
		d.Headers = fakeHeaders{checks: []domain.SecurityHeaderCheck{{HeaderName: "x-frame-options"}}}
		d.Certificates = fakeCertificates{err: errors.New("handshake failed")}
		d.Fingerprinter = fakeFingerprinter{err: errors.New("connection refused")}
		d.Engine = fakeEngine{}
		d.Legacy = fakeEngine{}
	})

	id, err := o.Start(context.Background(), "https://example.com", "full")
	require.NoError(t, err)

	task := waitForTerminal(t, o, id)
	assert.Equal(t, domain.StatusCompleted, task.Status)
	assert.Equal(t, "ssl: handshake failed; technology: connection refused", task.Error)
}

func TestFullScan_AllStagesFail(t *testing.T) {
	o := newTestOrchestrator(t, func(d *Dependencies) {
		d.Headers = fakeHeaders{err: errors.New("timeout")}
		d.Fingerprinter = fakeFingerprinter{err: errors.New("timeout")}
		d.Engine = fakeEngine{}
		d.Legacy = fakeEngine{}
	})

	id, err := o.Start(context.Background(), "http://example.com", "full")
	require.NoError(t, err)

	task := waitForTerminal(t, o, id)
	assert.Equal(t, domain.StatusFailed, task.Status)
	assert.Equal(t, "headers: timeout; technology: timeout", task.Error)

	report := waitForReport(t, o, id)
	assert.Nil(t, report.Certificate, "plain http targets skip the certificate stage")
}

func TestStagePanicBecomesStageError(t *testing.T) {
	o := newTestOrchestrator(t, func(d *Dependencies) {
		d.Headers = fakeHeaders{panicMsg: "boom"}
	})

	id, err := o.Start(context.Background(), "https://example.com", "headers")
	require.NoError(t, err)

	task := waitForTerminal(t, o, id)
	assert.Equal(t, domain.StatusFailed, task.Status)
	assert.Equal(t, "headers: panic: boom", task.Error)
}

func TestCancel(t *testing.T) {
	server := newBlockingServer(t)
	o := newTestOrchestrator(t)

	id, err := o.Start(context.Background(), server.URL, "headers")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, _ := o.Status(context.Background(), id)
		return task.Status == domain.StatusRunning
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, o.Cancel(context.Background(), id))

	task := waitForTerminal(t, o, id)
	assert.Equal(t, domain.StatusFailed, task.Status)
	assert.Contains(t, task.Error, "headers:")
	assert.Contains(t, task.Error, context.Canceled.Error())

	assert.NoError(t, o.Cancel(context.Background(), id), "cancelling a finished scan is a no-op")
}

func TestScanDeadline(t *testing.T) {
	server := newBlockingServer(t)
	o := newTestOrchestrator(t, func(d *Dependencies) {
		d.ScanDeadline = 100 * time.Millisecond
	})

	id, err := o.Start(context.Background(), server.URL, "headers")
	require.NoError(t, err)

	task := waitForTerminal(t, o, id)
	assert.Equal(t, domain.StatusFailed, task.Status)
	assert.Contains(t, task.Error, context.DeadlineExceeded.Error())
}

func TestShutdown(t *testing.T) {
	server := newBlockingServer(t)
	o := newTestOrchestrator(t)

	id, err := o.Start(context.Background(), server.URL, "headers")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	task, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, task.Status)

	_, err = o.Start(context.Background(), server.URL, "headers")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestArchiveReceivesSealedReport(t *testing.T) {
	archive := newFakeArchive()
	o := newTestOrchestrator(t, func(d *Dependencies) {
		d.Headers = fakeHeaders{checks: []domain.SecurityHeaderCheck{{HeaderName: "x-frame-options"}}}
		d.Archive = archive
	})

	id, err := o.Start(context.Background(), "https://example.com", "headers")
	require.NoError(t, err)

	select {
	case report := <-archive.saved:
		assert.Equal(t, id, report.Task.ID)
		assert.Equal(t, domain.StatusCompleted, report.Task.Status)
		assert.NotNil(t, report.Task.CompletedAt)
		assert.Len(t, report.Headers, 1)
	case <-time.After(10 * time.Second):
		t.Fatal("archive was not called")
	}

	err = o.deps.Reports.Commit(id, func(r *domain.Report) {})
	assert.ErrorIs(t, err, sharedErrors.ErrReportSealed)
}

func TestRestore(t *testing.T) {
	o := newTestOrchestrator(t)

	task := domain.NewTask("https://example.com", domain.KindHeaders, time.Now())
	require.NoError(t, task.Start(time.Now()))
	require.NoError(t, task.Complete(time.Now(), ""))
	report := domain.NewReport(task)
	report.Headers = []domain.SecurityHeaderCheck{{HeaderName: "x-frame-options"}}

	require.NoError(t, o.Restore(report))

	got, err := o.Report(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, report.Headers, got.Headers)
	assert.ErrorIs(t, o.Restore(report), sharedErrors.ErrAlreadyExists)

	pending := domain.NewReport(domain.NewTask("https://example.com", domain.KindHeaders, time.Now()))
	assert.ErrorIs(t, o.Restore(pending), sharedErrors.ErrInvalidInput)
}

func TestRestore_FailedTaskInsertLeavesNoReport(t *testing.T) {
	reports := memory.NewReportStore()
	o := newTestOrchestrator(t, func(d *Dependencies) {
		d.Tasks = rejectingTaskStore{TaskStore: memory.NewTaskStore()}
		d.Reports = reports
	})

	task := domain.NewTask("https://example.com", domain.KindHeaders, time.Now())
	require.NoError(t, task.Start(time.Now()))
	require.NoError(t, task.Complete(time.Now(), ""))

	err := o.Restore(domain.NewReport(task))
	require.ErrorIs(t, err, sharedErrors.ErrAlreadyExists)

	_, err = reports.Get(task.ID)
	assert.ErrorIs(t, err, sharedErrors.ErrNotFound)
}

func TestTerminalStatusImpliesSealedReport(t *testing.T) {
	tasks := memory.NewTaskStore()
	updates, unsubscribe := tasks.Subscribe()
	defer unsubscribe()

	o := newTestOrchestrator(t, func(d *Dependencies) {
		d.Tasks = tasks
		d.Headers = fakeHeaders{checks: []domain.SecurityHeaderCheck{{HeaderName: "x-frame-options"}}}
	})

	id, err := o.Start(context.Background(), "https://example.com", "headers")
	require.NoError(t, err)

	timeout := time.After(10 * time.Second)
	for {
		select {
		case task := <-updates:
			if task.ID != id || !task.Status.IsTerminal() {
				continue
			}
			report, err := o.Report(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, task.Status, report.Task.Status)
			assert.Equal(t, task.CompletedAt, report.Task.CompletedAt)
			assert.ErrorIs(t, o.deps.Reports.Commit(id, func(*domain.Report) {}), sharedErrors.ErrReportSealed)
			return
		case <-timeout:
			t.Fatal("scan did not finish")
		}
	}
}

func TestStatusFallsBackToArchiveAfterPrune(t *testing.T) {
	tasks := memory.NewTaskStore(memory.WithMaxTasks(1))
	archive := newFakeArchive()
	o := newTestOrchestrator(t, func(d *Dependencies) {
		d.Tasks = tasks
		d.Archive = archive
		d.Headers = fakeHeaders{checks: []domain.SecurityHeaderCheck{{HeaderName: "x-frame-options"}}}
	})

	first, err := o.Start(context.Background(), "https://example.com", "headers")
	require.NoError(t, err)
	<-archive.saved
	waitForTerminal(t, o, first)

	second, err := o.Start(context.Background(), "https://example.org", "headers")
	require.NoError(t, err)
	<-archive.saved

	require.Eventually(t, func() bool {
		_, err := tasks.Get(first)
		return errors.Is(err, sharedErrors.ErrNotFound)
	}, 10*time.Second, 10*time.Millisecond)

	task, err := o.Status(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, task.Status)

	report, err := o.Report(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, first, report.Task.ID)
	assert.Len(t, report.Headers, 1)

	task, err = o.Status(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, task.Status)

	_, err = o.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, sharedErrors.ErrNotFound)
}

// rejectingTaskStore fails every insert as a duplicate.
type rejectingTaskStore struct {
	*memory.TaskStore
}

func (rejectingTaskStore) Insert(task domain.Task) error {
	return fmt.Errorf("task %s: %w", task.ID, sharedErrors.ErrAlreadyExists)
}

type fakeHeaders struct {
	checks   []domain.SecurityHeaderCheck
	err      error
	panicMsg string
}

func (f fakeHeaders) Audit(context.Context, string) ([]domain.SecurityHeaderCheck, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.checks, f.err
}

type fakeCertificates struct {
	assessment *domain.CertificateAssessment
	err        error
}

func (f fakeCertificates) Audit(context.Context, string) (*domain.CertificateAssessment, error) {
	return f.assessment, f.err
}

type fakeFingerprinter struct {
	techs []domain.DetectedTechnology
	err   error
}

func (f fakeFingerprinter) Detect(context.Context, string) ([]domain.DetectedTechnology, error) {
	return f.techs, f.err
}

// fakeEngine satisfies both ProbeEngine and LegacyScanner with no findings.
type fakeEngine struct{}

func (fakeEngine) ScanAll(context.Context, string, string) ([]domain.Finding, error) { return nil, nil }

func (fakeEngine) Scan(context.Context, string, string) ([]domain.Finding, error) { return nil, nil }

type fakeArchive struct {
	mu      sync.Mutex
	reports map[string]domain.Report
	saved   chan domain.Report
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{reports: make(map[string]domain.Report), saved: make(chan domain.Report, 8)}
}

func (a *fakeArchive) Save(_ context.Context, report domain.Report) error {
	a.mu.Lock()
	a.reports[report.Task.ID] = report
	a.mu.Unlock()
	a.saved <- report
	return nil
}

func (a *fakeArchive) FindByID(_ context.Context, id string) (domain.Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	report, ok := a.reports[id]
	if !ok {
		return domain.Report{}, sharedErrors.ErrNotFound
	}
	return report, nil
}

func (a *fakeArchive) FindAll(context.Context) ([]domain.Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tasks := make([]domain.Task, 0, len(a.reports))
	for _, r := range a.reports {
		tasks = append(tasks, r.Task)
	}
	return tasks, nil
}

func (a *fakeArchive) Exists(_ context.Context, id string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.reports[id]
	return ok, nil
}
