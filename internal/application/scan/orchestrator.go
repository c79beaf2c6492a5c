package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/khanhnv2901/webrecon/internal/checker"
	domain "github.com/khanhnv2901/webrecon/internal/domain/scan"
	"github.com/khanhnv2901/webrecon/internal/probe"
	"github.com/khanhnv2901/webrecon/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/webrecon/internal/shared/errors"
)

// ErrClosed is returned by Start after Shutdown has begun.
var ErrClosed = errors.New("orchestrator is shut down")

// Stage names, in the order their outcomes are reported.
const (
	StageHeaders       = "headers"
	StageCertificate   = "ssl"
	StageVulnerability = "vulnerability"
	StageTechnology    = "technology"
)

const archiveTimeout = 5 * time.Second

type TaskStore interface {
	Insert(task domain.Task) error
	Update(id string, fn func(*domain.Task) error) (domain.Task, error)
	Get(id string) (domain.Task, error)
	List(limit int) []domain.Task
	Prune() []string
}

type ReportStore interface {
	Create(task domain.Task) error
	Restore(report domain.Report) error
	Get(id string) (domain.Report, error)
	Commit(id string, apply func(*domain.Report)) error
	Seal(task domain.Task) (domain.Report, error)
	Delete(ids ...string)
}

type HeaderAuditor interface {
	Audit(ctx context.Context, target string) ([]domain.SecurityHeaderCheck, error)
}

type CertificateAuditor interface {
	Audit(ctx context.Context, target string) (*domain.CertificateAssessment, error)
}

type Fingerprinter interface {
	Detect(ctx context.Context, target string) ([]domain.DetectedTechnology, error)
}

type ProbeEngine interface {
	ScanAll(ctx context.Context, target, taskID string) ([]domain.Finding, error)
}

type LegacyScanner interface {
	Scan(ctx context.Context, target, taskID string) ([]domain.Finding, error)
}

// Recorder receives scan lifecycle metrics.
type Recorder interface {
	ScanStarted(kind string)
	ScanFinished(kind, status string)
	ObserveStage(stage string, elapsed time.Duration, err error)
	FindingRecorded(severity string)
}

type nopRecorder struct{}

func (nopRecorder) ScanStarted(string)                        {}
func (nopRecorder) ScanFinished(string, string)               {}
func (nopRecorder) ObserveStage(string, time.Duration, error) {}
func (nopRecorder) FindingRecorded(string)                    {}

// Dependencies are injected into NewOrchestrator. Archive and Metrics are optional.
type Dependencies struct {
	Tasks         TaskStore
	Reports       ReportStore
	Headers       HeaderAuditor
	Certificates  CertificateAuditor
	Fingerprinter Fingerprinter
	Engine        ProbeEngine
	Legacy        LegacyScanner
	Archive       domain.Archive
	Metrics       Recorder
	Logger        *zap.Logger
	// ScanDeadline bounds each scan; zero means constants.DefaultScanDeadline.
	ScanDeadline time.Duration
	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// Orchestrator starts scans, runs their stages and finalizes their status.
type Orchestrator struct {
	deps Dependencies

	root       context.Context
	rootCancel context.CancelFunc

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
	running sync.WaitGroup
}

func NewOrchestrator(deps Dependencies) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if deps.ScanDeadline <= 0 {
		deps.ScanDeadline = constants.DefaultScanDeadline
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	root, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:       deps,
		root:       root,
		rootCancel: cancel,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Start validates the request, records a pending task and runs the scan in
// the background. The returned id can be polled immediately.
func (o *Orchestrator) Start(ctx context.Context, target, kind string) (string, error) {
	if _, err := checker.ValidateScanTarget(target); err != nil {
		return "", err
	}
	k, err := domain.ParseKind(kind)
	if err != nil {
		return "", err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return "", ErrClosed
	}

	task := domain.NewTask(target, k, o.deps.Now())
	if err := o.deps.Tasks.Insert(task); err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(o.root, o.deps.ScanDeadline)
	o.cancels[task.ID] = cancel
	o.running.Add(1)
	o.deps.Metrics.ScanStarted(k.String())
	o.deps.Logger.Info("scan accepted",
		zap.String("task_id", task.ID),
		zap.String("target", target),
		zap.String("kind", k.String()))

	go o.run(scanCtx, task)
	return task.ID, nil
}

// Status returns the task. Finished tasks pruned from memory are served from
// the archive when one is configured.
func (o *Orchestrator) Status(ctx context.Context, id string) (domain.Task, error) {
	task, err := o.deps.Tasks.Get(id)
	if err == nil || !errors.Is(err, sharedErrors.ErrNotFound) {
		return task, err
	}
	report, archErr := o.fromArchive(ctx, id)
	if archErr != nil {
		return domain.Task{}, err
	}
	return report.Task, nil
}

// Report returns ErrNotFound until the scan body has created the report.
// Like Status, it falls back to the archive for pruned scans.
func (o *Orchestrator) Report(ctx context.Context, id string) (domain.Report, error) {
	report, err := o.deps.Reports.Get(id)
	if err == nil || !errors.Is(err, sharedErrors.ErrNotFound) {
		return report, err
	}
	archived, archErr := o.fromArchive(ctx, id)
	if archErr != nil {
		return domain.Report{}, err
	}
	return archived, nil
}

func (o *Orchestrator) fromArchive(ctx context.Context, id string) (domain.Report, error) {
	if o.deps.Archive == nil {
		return domain.Report{}, sharedErrors.ErrNotFound
	}
	report, err := o.deps.Archive.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, sharedErrors.ErrNotFound) {
			o.deps.Logger.Warn("archive lookup failed", zap.String("task_id", id), zap.Error(err))
		}
		return domain.Report{}, err
	}
	return report, nil
}

// List returns every known task, newest first.
func (o *Orchestrator) List(ctx context.Context) []domain.Task {
	return o.deps.Tasks.List(0)
}

// Cancel aborts a running scan. Stages observe the cancellation as errors and
// the task is finalized by the normal rule. Terminal tasks are left alone.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	task, err := o.deps.Tasks.Get(id)
	if err != nil {
		return err
	}
	if task.Status.IsTerminal() {
		return nil
	}
	o.mu.Lock()
	cancel, ok := o.cancels[id]
	o.mu.Unlock()
	if ok {
		o.deps.Logger.Info("scan cancelled", zap.String("task_id", id))
		cancel()
	}
	return nil
}

// Restore loads a finalized scan, typically from the archive, into the stores.
func (o *Orchestrator) Restore(report domain.Report) error {
	if !report.Task.Status.IsTerminal() {
		return fmt.Errorf("%w: only finalized scans can be restored (status %s)",
			sharedErrors.ErrInvalidInput, report.Task.Status)
	}
	if err := o.deps.Reports.Restore(report); err != nil {
		return err
	}
	if err := o.deps.Tasks.Insert(report.Task); err != nil {
		o.deps.Reports.Delete(report.Task.ID)
		return err
	}
	return nil
}

// Shutdown cancels every in-flight scan and waits for them to finalize.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.rootCancel()

	done := make(chan struct{})
	go func() {
		o.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stageOutcome is one entry of the finalization accumulator.
type stageOutcome struct {
	stage    string
	err      error
	produced bool
}

func (o *Orchestrator) run(ctx context.Context, task domain.Task) {
	defer o.running.Done()
	defer o.forget(task.ID)

	logger := o.deps.Logger.With(zap.String("task_id", task.ID), zap.String("kind", task.Kind.String()))

	running, err := o.deps.Tasks.Update(task.ID, func(t *domain.Task) error {
		return t.Start(o.deps.Now())
	})
	if err != nil {
		logger.Error("failed to start scan", zap.Error(err))
		o.fail(task.ID, logger, err)
		return
	}
	if err := o.deps.Reports.Create(running); err != nil {
		logger.Error("failed to create report", zap.Error(err))
		o.fail(task.ID, logger, err)
		return
	}

	outcomes := o.dispatch(ctx, running, logger)
	o.finalize(running, outcomes, logger)
}

func (o *Orchestrator) forget(id string) {
	o.mu.Lock()
	if cancel, ok := o.cancels[id]; ok {
		cancel()
		delete(o.cancels, id)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) dispatch(ctx context.Context, task domain.Task, logger *zap.Logger) []stageOutcome {
	switch task.Kind {
	case domain.KindHeaders:
		return []stageOutcome{o.runStage(ctx, task, StageHeaders, logger, o.auditHeaders)}
	case domain.KindSSL:
		return []stageOutcome{o.runStage(ctx, task, StageCertificate, logger, o.auditCertificate)}
	case domain.KindVulnerability:
		return []stageOutcome{o.runStage(ctx, task, StageVulnerability, logger, o.probeVulnerabilities)}
	case domain.KindFull:
		return o.runFull(ctx, task, logger)
	default:
		return []stageOutcome{{
			stage: task.Kind.String(),
			err:   fmt.Errorf("%w: scan kind %s", sharedErrors.ErrUnimplemented, task.Kind),
		}}
	}
}

type stageFunc func(ctx context.Context, task domain.Task) (bool, error)

func (o *Orchestrator) runFull(ctx context.Context, task domain.Task, logger *zap.Logger) []stageOutcome {
	type namedStage struct {
		name string
		fn   stageFunc
	}
	stages := []namedStage{{StageHeaders, o.auditHeaders}}
	if info, err := checker.ValidateScanTarget(task.Target); err == nil && info.IsEncrypted() {
		stages = append(stages, namedStage{StageCertificate, o.auditCertificate})
	}
	stages = append(stages,
		namedStage{StageVulnerability, o.probeVulnerabilities},
		namedStage{StageTechnology, o.detectTechnologies},
	)

	outcomes := make([]stageOutcome, len(stages))
	var wg conc.WaitGroup
	for i, s := range stages {
		wg.Go(func() {
			outcomes[i] = o.runStage(ctx, task, s.name, logger, s.fn)
		})
	}
	wg.Wait()
	return outcomes
}

// runStage times one stage and turns a panic into a stage error.
func (o *Orchestrator) runStage(ctx context.Context, task domain.Task, stage string, logger *zap.Logger, fn stageFunc) (out stageOutcome) {
	out.stage = stage
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("panic: %v", r)
		}
		elapsed := time.Since(start)
		o.deps.Metrics.ObserveStage(stage, elapsed, out.err)
		if out.err != nil {
			logger.Warn("stage failed", zap.String("stage", stage), zap.Duration("elapsed", elapsed), zap.Error(out.err))
			return
		}
		logger.Debug("stage finished", zap.String("stage", stage), zap.Duration("elapsed", elapsed))
	}()
	out.produced, out.err = fn(ctx, task)
	return out
}

func (o *Orchestrator) auditHeaders(ctx context.Context, task domain.Task) (bool, error) {
	checks, err := o.deps.Headers.Audit(ctx, task.Target)
	if err != nil {
		return false, err
	}
	if err := o.deps.Reports.Commit(task.ID, func(r *domain.Report) {
		r.Headers = checks
	}); err != nil {
		return false, err
	}
	return len(checks) > 0, nil
}

func (o *Orchestrator) auditCertificate(ctx context.Context, task domain.Task) (bool, error) {
	assessment, err := o.deps.Certificates.Audit(ctx, task.Target)
	if err != nil {
		return false, err
	}
	if err := o.deps.Reports.Commit(task.ID, func(r *domain.Report) {
		r.Certificate = assessment
	}); err != nil {
		return false, err
	}
	return assessment != nil, nil
}

func (o *Orchestrator) detectTechnologies(ctx context.Context, task domain.Task) (bool, error) {
	techs, err := o.deps.Fingerprinter.Detect(ctx, task.Target)
	if err != nil {
		return false, err
	}
	if err := o.deps.Reports.Commit(task.ID, func(r *domain.Report) {
		r.Technologies = append(r.Technologies, techs...)
	}); err != nil {
		return false, err
	}
	return len(techs) > 0, nil
}

// probeVulnerabilities runs the engine and the legacy set side by side and
// commits their merged findings. A cancelled context still commits whatever
// was gathered, then reports the cancellation.
func (o *Orchestrator) probeVulnerabilities(ctx context.Context, task domain.Task) (bool, error) {
	var (
		engineFindings, legacyFindings []domain.Finding
		engineErr, legacyErr           error
		wg                             conc.WaitGroup
	)
	wg.Go(func() {
		engineFindings, engineErr = o.deps.Engine.ScanAll(ctx, task.Target, task.ID)
	})
	wg.Go(func() {
		legacyFindings, legacyErr = o.deps.Legacy.Scan(ctx, task.Target, task.ID)
	})
	wg.Wait()

	findings := probe.Aggregate(engineFindings, legacyFindings)
	if err := o.deps.Reports.Commit(task.ID, func(r *domain.Report) {
		r.Findings = append(r.Findings, findings...)
	}); err != nil {
		return false, err
	}
	for _, f := range findings {
		o.deps.Metrics.FindingRecorded(f.Severity.String())
	}
	return len(findings) > 0, errors.Join(engineErr, legacyErr)
}

// finalize derives the terminal status from the accumulated outcomes, seals
// the report and hands it to the archive.
func (o *Orchestrator) finalize(task domain.Task, outcomes []stageOutcome, logger *zap.Logger) {
	produced := false
	var failures []string
	for _, out := range outcomes {
		produced = produced || out.produced
		if out.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %s", out.stage, out.err))
		}
	}
	reason := strings.Join(failures, "; ")

	// The report is sealed before the terminal task is committed, so a
	// terminal status always comes with a matching report snapshot.
	var (
		report  domain.Report
		sealErr error
	)
	final, err := o.deps.Tasks.Update(task.ID, func(t *domain.Task) error {
		var transition error
		if produced {
			transition = t.Complete(o.deps.Now(), reason)
		} else {
			transition = t.Fail(o.deps.Now(), reason)
		}
		if transition != nil {
			return transition
		}
		report, sealErr = o.deps.Reports.Seal(*t)
		return nil
	})
	if err != nil {
		logger.Error("failed to finalize scan", zap.Error(err))
		return
	}
	o.deps.Metrics.ScanFinished(final.Kind.String(), final.Status.String())
	logger.Info("scan finished", zap.String("status", final.Status.String()), zap.String("error", final.Error))

	if sealErr != nil {
		logger.Error("failed to seal report", zap.Error(sealErr))
		return
	}
	o.archive(report, logger)
	o.prune(logger)
}

// fail terminates a scan whose body never got going.
func (o *Orchestrator) fail(id string, logger *zap.Logger, cause error) {
	final, err := o.deps.Tasks.Update(id, func(t *domain.Task) error {
		return t.Fail(o.deps.Now(), cause.Error())
	})
	if err != nil {
		logger.Error("failed to mark scan failed", zap.Error(err))
		return
	}
	o.deps.Metrics.ScanFinished(final.Kind.String(), final.Status.String())
}

func (o *Orchestrator) archive(report domain.Report, logger *zap.Logger) {
	if o.deps.Archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := o.deps.Archive.Save(ctx, report); err != nil {
		logger.Warn("failed to archive report", zap.Error(err))
	}
}

func (o *Orchestrator) prune(logger *zap.Logger) {
	removed := o.deps.Tasks.Prune()
	if len(removed) == 0 {
		return
	}
	o.deps.Reports.Delete(removed...)
	logger.Debug("pruned finished scans", zap.Int("count", len(removed)))
}
