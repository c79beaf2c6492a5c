// Package probe runs the OWASP Top 10 probe batteries and the legacy probe
// set against a single target, and merges their findings.
package probe

import (
	"context"
	"maps"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/khanhnv2901/webrecon/internal/checker"
	"github.com/khanhnv2901/webrecon/internal/domain/scan"
	"github.com/khanhnv2901/webrecon/internal/shared/constants"
)

// Category is an OWASP Top 10 (2021) category.
type Category struct {
	Code string
	Name string
}

var (
	A01 = Category{"A01:2021", "Broken Access Control"}
	A02 = Category{"A02:2021", "Cryptographic Failures"}
	A03 = Category{"A03:2021", "Injection"}
	A04 = Category{"A04:2021", "Insecure Design"}
	A05 = Category{"A05:2021", "Security Misconfiguration"}
	A06 = Category{"A06:2021", "Vulnerable and Outdated Components"}
	A07 = Category{"A07:2021", "Identification and Authentication Failures"}
	A08 = Category{"A08:2021", "Software and Data Integrity Failures"}
	A09 = Category{"A09:2021", "Security Logging and Monitoring Failures"}
	A10 = Category{"A10:2021", "Server-Side Request Forgery"}
)

// legacyCategory labels requests issued by the legacy probe set.
const legacyCategory = "legacy"

// RequestObserver is notified after every probe request.
type RequestObserver interface {
	ObserveProbeRequest(category string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveProbeRequest(string, error) {}

// Config configures an Engine.
type Config struct {
	// Client overrides the default probe client (no redirects, invalid
	// certificates accepted, ProbeTimeout).
	Client *http.Client
	// RequestsPerSecond paces probe requests; zero or less means unlimited.
	RequestsPerSecond float64
	Burst             int
	Logger            *zap.Logger
	Observer          RequestObserver
}

// Engine issues single-shot heuristic probes. It is safe for concurrent use.
type Engine struct {
	client   *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
	observer RequestObserver
}

func NewEngine(cfg Config) *Engine {
	client := cfg.Client
	if client == nil {
		client = checker.NewHTTPClient(checker.ClientConfig{Timeout: constants.ProbeTimeout})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var observer RequestObserver = nopObserver{}
	if cfg.Observer != nil {
		observer = cfg.Observer
	}
	return &Engine{
		client:   client,
		limiter:  newLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:   logger,
		observer: observer,
	}
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// ScanAll runs A01 through A10 in order and concatenates their findings.
// When ctx ends early the findings gathered so far are returned with ctx.Err().
func (e *Engine) ScanAll(ctx context.Context, target, taskID string) ([]scan.Finding, error) {
	batteries := []struct {
		category Category
		run      func(context.Context, string, string) []scan.Finding
	}{
		{A01, e.ScanAccessControl},
		{A02, e.ScanCryptographicFailures},
		{A03, e.ScanInjection},
		{A04, e.ScanInsecureDesign},
		{A05, e.ScanMisconfiguration},
		{A06, e.ScanOutdatedComponents},
		{A07, e.ScanAuthentication},
		{A08, e.ScanIntegrity},
		{A09, e.ScanLoggingFailures},
		{A10, e.ScanSSRF},
	}

	var findings []scan.Finding
	for _, b := range batteries {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		found := b.run(ctx, target, taskID)
		e.logger.Debug("probe battery finished",
			zap.String("task_id", taskID),
			zap.String("owasp", b.category.Code),
			zap.Int("findings", len(found)))
		findings = append(findings, found...)
	}
	return findings, ctx.Err()
}

// fetch paces and issues one probe request. Failed requests are skipped.
func (e *Engine) fetch(ctx context.Context, category, target string) (*checker.Page, bool) {
	return e.fetchWithHeaders(ctx, category, target, nil)
}

func (e *Engine) fetchWithHeaders(ctx context.Context, category, target string, headers http.Header) (*checker.Page, bool) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, false
	}
	page, err := checker.FetchWithHeaders(ctx, e.client, target, headers)
	e.observer.ObserveProbeRequest(category, err)
	if err != nil {
		e.logger.Debug("probe request failed", zap.String("url", target), zap.Error(err))
		return nil, false
	}
	return page, true
}

// hit is the battery-local description of one finding.
type hit struct {
	severity    scan.Severity
	title       string
	description string
	url         string
	payload     string
	extra       map[string]any
}

func (c Category) finding(taskID string, h hit) scan.Finding {
	evidence := map[string]any{
		"owasp":    c.Code,
		"category": c.Name,
		"url":      h.url,
		"payload":  h.payload,
	}
	maps.Copy(evidence, h.extra)
	return scan.NewFinding(taskID, scan.FindingVulnerability, h.severity, h.title, h.description, evidence)
}
