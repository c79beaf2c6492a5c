package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/khanhnv2901/webrecon/internal/checker"
	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

const (
	reflectionMarker = `"><wr-probe-7f3a>`
	legacyOrigin     = "https://origin.webrecon.invalid"
)

// LegacyScanner is the older single-request probe set that runs alongside
// the engine. Its findings overlap with the engine's and are merged by
// Aggregate.
type LegacyScanner struct {
	engine *Engine
}

// NewLegacyScanner shares the engine's client, pacing and observer.
func NewLegacyScanner(engine *Engine) *LegacyScanner {
	return &LegacyScanner{engine: engine}
}

func (l *LegacyScanner) Scan(ctx context.Context, target, taskID string) ([]scan.Finding, error) {
	var findings []scan.Finding
	e := l.engine

	url := checker.WithQuery(target, "search", reflectionMarker)
	if page, ok := e.fetch(ctx, legacyCategory, url); ok && strings.Contains(page.Body, reflectionMarker) {
		findings = append(findings, A03.finding(taskID, hit{
			severity:    scan.SeverityHigh,
			title:       "Reflected XSS: unencoded search parameter",
			description: "A markup marker in the search parameter came back unencoded.",
			url:         url,
			payload:     reflectionMarker,
			extra:       legacyEvidence(),
		}))
	}

	url = checker.WithQuery(target, "id", "1'")
	if page, ok := e.fetch(ctx, legacyCategory, url); ok && containsAny(strings.ToLower(page.Body), sqlErrorSignatures) {
		findings = append(findings, A03.finding(taskID, hit{
			severity:    scan.SeverityCritical,
			title:       "SQL injection: error-based",
			description: "A single quote in the id parameter produced a database error.",
			url:         url,
			payload:     "1'",
			extra:       legacyEvidence(),
		}))
	}

	page, ok := e.fetchWithHeaders(ctx, legacyCategory, target, http.Header{"Origin": []string{legacyOrigin}})
	if !ok {
		return findings, ctx.Err()
	}

	if report := checker.AnalyzeCORS(page.Header, legacyOrigin); report != nil {
		severity, title := scan.SeverityLow, "Permissive CORS policy"
		if report.Risky() {
			severity, title = scan.SeverityHigh, "CORS allows credentials from any origin"
		}
		findings = append(findings, A05.finding(taskID, hit{
			severity:    severity,
			title:       title,
			description: strings.Join(report.Issues, "; "),
			url:         target,
			payload:     "Origin: " + legacyOrigin,
			extra:       legacyEvidence("allow_origin", report.AllowOrigin, "allow_credentials", report.AllowCredentials),
		}))
	}

	if page.Header.Get("X-Frame-Options") == "" &&
		!strings.Contains(strings.ToLower(page.Header.Get("Content-Security-Policy")), "frame-ancestors") {
		findings = append(findings, A05.finding(taskID, hit{
			severity:    scan.SeverityMedium,
			title:       "Missing clickjacking protection",
			description: "Neither X-Frame-Options nor CSP frame-ancestors restricts framing.",
			url:         target,
			extra:       legacyEvidence(),
		}))
	}

	for _, cookie := range checker.AnalyzeCookies(page.Cookies) {
		if !cookie.MissingSecure && !cookie.MissingHTTPOnly {
			continue
		}
		findings = append(findings, A05.finding(taskID, hit{
			severity:    scan.SeverityLow,
			title:       fmt.Sprintf("Insecure cookie flags: %s", cookie.Name),
			description: "The cookie is missing the Secure or HttpOnly attribute.",
			url:         target,
			extra: legacyEvidence("cookie_name", cookie.Name,
				"missing_secure", cookie.MissingSecure, "missing_http_only", cookie.MissingHTTPOnly),
		}))
	}

	for _, lib := range checker.DetectVulnerableLibraries(page.Body) {
		findings = append(findings, A06.finding(taskID, hit{
			severity:    lib.Severity,
			title:       fmt.Sprintf("Vulnerable JavaScript library: %s %s", lib.Name, lib.DetectedVersion),
			description: lib.Description + ". " + lib.Recommendation + ".",
			url:         target,
			extra:       legacyEvidence("vulnerability_ids", lib.VulnerabilityIDs),
		}))
	}

	return findings, ctx.Err()
}

// legacyEvidence tags evidence with its source plus key/value pairs.
func legacyEvidence(kv ...any) map[string]any {
	out := map[string]any{"source": legacyCategory}
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			out[key] = kv[i+1]
		}
	}
	return out
}
