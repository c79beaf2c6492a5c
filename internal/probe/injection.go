package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/khanhnv2901/webrecon/internal/checker"
	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

type payload struct {
	value string
	label string
}

var sqlPayloads = []payload{
	{"' OR '1'='1", "basic OR injection"},
	{"' OR '1'='1' --", "OR injection with comment"},
	{"1' OR '1' = '1", "numeric OR injection"},
	{"admin'--", "admin bypass"},
	{"' UNION SELECT NULL--", "UNION injection"},
	{"' AND 1=0 UNION ALL SELECT 'admin', '81dc9bdb52d04dc20036dbd8313ed055'", "UNION hash injection"},
	{"1' AND SLEEP(5)--", "time-based blind injection"},
}

// sqlErrorSignatures are matched against the lower-cased body.
var sqlErrorSignatures = []string{
	"sql syntax", "mysql", "postgresql", "sqlite", "syntax error",
	"odbc", "jdbc", "oracle", "warning: mysql", "unclosed quotation",
	"quoted string not properly terminated", "sqlexception",
}

var xssPayloads = []payload{
	{"<script>alert('XSS')</script>", "script tag"},
	{"<img src=x onerror=alert('XSS')>", "image onerror"},
	{"javascript:alert('XSS')", "javascript URL"},
	{"<svg onload=alert('XSS')>", "SVG onload"},
	{"<iframe src=javascript:alert('XSS')>", "iframe javascript URL"},
	{"'><script>alert(String.fromCharCode(88,83,83))</script>", "attribute breakout"},
}

var commandPayloads = []payload{
	{";ls", "semicolon"},
	{"| ls", "pipe"},
	{"$(ls)", "command substitution"},
	{"`ls`", "backticks"},
	{"&& ls", "AND list"},
	{"|| ls", "OR list"},
}

// commandMarkers are artefacts of a directory listing or id output.
var commandMarkers = []string{"/bin/", "/usr/", "/etc/", "uid=", "drwx"}

var ldapPayloads = []payload{
	{"*", "wildcard"},
	{"admin*)(uid=*", "filter injection"},
	{"*)(uid=*))(|(uid=*", "filter breakout"},
}

// ScanInjection probes SQL, XSS, OS command and LDAP injection. Each
// sub-category stops at its first match.
func (e *Engine) ScanInjection(ctx context.Context, target, taskID string) []scan.Finding {
	var findings []scan.Finding

	for _, p := range sqlPayloads {
		url := checker.WithQuery(target, "id", p.value)
		page, ok := e.fetch(ctx, A03.Code, url)
		if !ok {
			continue
		}
		if containsAny(strings.ToLower(page.Body), sqlErrorSignatures) {
			findings = append(findings, A03.finding(taskID, hit{
				severity:    scan.SeverityCritical,
				title:       fmt.Sprintf("SQL injection: %s", p.label),
				description: "An injected quote produced a database error. Use parameterized queries.",
				url:         url,
				payload:     p.value,
			}))
			break
		}
	}

	for _, p := range xssPayloads {
		url := checker.WithQuery(target, "q", p.value)
		page, ok := e.fetch(ctx, A03.Code, url)
		if !ok {
			continue
		}
		if strings.Contains(page.Body, p.value) || strings.Contains(page.Body, strings.ReplaceAll(p.value, "'", `"`)) {
			findings = append(findings, A03.finding(taskID, hit{
				severity:    scan.SeverityHigh,
				title:       fmt.Sprintf("Reflected XSS: %s", p.label),
				description: "Input is reflected into the HTML without encoding. Encode output and set a Content-Security-Policy.",
				url:         url,
				payload:     p.value,
			}))
			break
		}
	}

	for _, p := range commandPayloads {
		url := checker.WithQuery(target, "cmd", p.value)
		page, ok := e.fetch(ctx, A03.Code, url)
		if !ok {
			continue
		}
		if containsAny(page.Body, commandMarkers) {
			findings = append(findings, A03.finding(taskID, hit{
				severity:    scan.SeverityCritical,
				title:       fmt.Sprintf("OS command injection: %s", p.label),
				description: "Shell metacharacters in the cmd parameter produced command output. Never pass input to a shell.",
				url:         url,
				payload:     p.value,
			}))
			break
		}
	}

	for _, p := range ldapPayloads {
		url := checker.WithQuery(target, "user", p.value)
		page, ok := e.fetch(ctx, A03.Code, url)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(page.Body), "ldap") || page.StatusCode == http.StatusInternalServerError {
			findings = append(findings, A03.finding(taskID, hit{
				severity:    scan.SeverityHigh,
				title:       fmt.Sprintf("Potential LDAP injection: %s", p.label),
				description: "An LDAP filter payload caused an LDAP error or a server error. Escape filter input.",
				url:         url,
				payload:     p.value,
				extra:       map[string]any{"status": page.StatusCode},
			}))
			break
		}
	}

	return findings
}
