package probe

import (
	"context"
	"fmt"
	"net/http"
	neturl "net/url"
	"regexp"
	"strings"

	"github.com/khanhnv2901/webrecon/internal/checker"
	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

type secretPattern struct {
	name    string
	pattern *regexp.Regexp
}

var secretPatterns = []secretPattern{
	{"API key", regexp.MustCompile(`(?i)api[_-]?key['"]?\s*[:=]\s*['"]([a-zA-Z0-9_\-]{20,})`)},
	{"Secret key", regexp.MustCompile(`(?i)secret[_-]?key['"]?\s*[:=]\s*['"]([a-zA-Z0-9_\-]{20,})`)},
	{"Access token", regexp.MustCompile(`(?i)access[_-]?token['"]?\s*[:=]\s*['"]([a-zA-Z0-9_\-]{20,})`)},
	{"Password", regexp.MustCompile(`(?i)password['"]?\s*[:=]\s*['"]([^'"]{3,})`)},
	{"AWS access key", regexp.MustCompile(`(?i)aws[_-]?access[_-]?key[_-]?id['"]?\s*[:=]\s*['"]([A-Z0-9]{20})`)},
	{"Private key", regexp.MustCompile(`(?i)private[_-]?key['"]?\s*[:=]`)},
	{"PEM private key", regexp.MustCompile(`-----BEGIN (RSA |DSA )?PRIVATE KEY-----`)},
}

// ScanCryptographicFailures checks transport encryption, the plain-HTTP
// redirect, secrets embedded in the page and password autocompletion.
func (e *Engine) ScanCryptographicFailures(ctx context.Context, target, taskID string) []scan.Finding {
	var findings []scan.Finding

	info, err := checker.ValidateScanTarget(target)
	if err == nil && !info.IsEncrypted() {
		findings = append(findings, A02.finding(taskID, hit{
			severity:    scan.SeverityHigh,
			title:       "Unencrypted HTTP transport",
			description: "The target is served over plain HTTP. Serve it over HTTPS and redirect HTTP requests.",
			url:         target,
		}))
	} else if err == nil {
		if f, ok := e.checkHTTPRedirect(ctx, target, taskID); ok {
			findings = append(findings, f)
		}
	}

	page, ok := e.fetch(ctx, A02.Code, target)
	if !ok {
		return findings
	}

	for _, sp := range secretPatterns {
		match := sp.pattern.FindString(page.Body)
		if match == "" {
			continue
		}
		findings = append(findings, A02.finding(taskID, hit{
			severity:    scan.SeverityCritical,
			title:       fmt.Sprintf("%s exposed in page source", sp.name),
			description: "Sensitive material is embedded in the HTML delivered to clients. Move it server-side and rotate it.",
			url:         target,
			extra:       map[string]any{"match": redact(match)},
		}))
	}

	if analysis := checker.AnalyzePage(page.Body); analysis.PasswordAutocompleteOpen > 0 {
		findings = append(findings, A02.finding(taskID, hit{
			severity:    scan.SeverityLow,
			title:       "Password field allows autocomplete",
			description: `A password input lacks autocomplete="off"; browsers may store the credential.`,
			url:         target,
			extra:       map[string]any{"fields": analysis.PasswordAutocompleteOpen},
		}))
	}

	return findings
}

// checkHTTPRedirect requests the http form of an https target. A 2xx, or a
// 3xx pointing anywhere but https, means HTTP is served. A 4xx without a
// Location also counts, unless the target names an explicit port: a TLS-only
// port answers plain HTTP with 400. 5xx and transport errors are inconclusive.
func (e *Engine) checkHTTPRedirect(ctx context.Context, target, taskID string) (scan.Finding, bool) {
	url := checker.HTTPForm(target)
	page, ok := e.fetch(ctx, A02.Code, url)
	if !ok {
		return scan.Finding{}, false
	}
	location := page.Header.Get("Location")
	switch {
	case page.IsSuccess():
	case page.StatusCode >= http.StatusMultipleChoices && page.StatusCode < http.StatusBadRequest &&
		!strings.HasPrefix(strings.ToLower(location), "https://"):
	case page.StatusCode >= http.StatusBadRequest && page.StatusCode < http.StatusInternalServerError &&
		location == "" && !hasExplicitPort(url):
	default:
		return scan.Finding{}, false
	}
	return A02.finding(taskID, hit{
		severity:    scan.SeverityMedium,
		title:       "HTTP not redirected to HTTPS",
		description: "The plain HTTP endpoint does not redirect to HTTPS. Redirect all HTTP traffic and enable HSTS.",
		url:         url,
		extra:       map[string]any{"status": page.StatusCode, "location": location},
	}), true
}

func hasExplicitPort(raw string) bool {
	u, err := neturl.Parse(raw)
	return err == nil && u.Port() != ""
}

func redact(s string) string {
	const keep = 12
	if len(s) <= keep {
		return s
	}
	return s[:keep] + "..."
}
