package probe

import (
	"context"
	"net/url"
	"strings"

	"github.com/khanhnv2901/webrecon/internal/checker"
	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

var errorPaths = []string{
	"/nonexistent-page-12345",
	"/?id=99999999",
	"/" + url.PathEscape("<script>alert(1)</script>"),
}

// errorLeakMarkers are matched against the lower-cased body.
var errorLeakMarkers = []string{
	"stack trace", "traceback (most recent call last)", "exception",
	"sql syntax", "sqlstate", "ora-", "odbc", "at line", "on line", "fatal error",
}

// ScanLoggingFailures provokes error pages and looks for leaked internals,
// then adds a monitoring reminder.
func (e *Engine) ScanLoggingFailures(ctx context.Context, target, taskID string) []scan.Finding {
	var findings []scan.Finding

	for _, path := range errorPaths {
		u := checker.JoinPath(target, path)
		page, ok := e.fetch(ctx, A09.Code, u)
		if !ok {
			continue
		}
		if containsAny(strings.ToLower(page.Body), errorLeakMarkers) {
			findings = append(findings, A09.finding(taskID, hit{
				severity:    scan.SeverityMedium,
				title:       "Error page leaks internal details",
				description: "An error response exposes stack traces or query details. Serve generic error pages and log details server-side.",
				url:         u,
				payload:     path,
				extra:       map[string]any{"status": page.StatusCode},
			}))
			break
		}
	}

	findings = append(findings, A09.finding(taskID, hit{
		severity:    scan.SeverityInfo,
		title:       "Review security logging and monitoring",
		description: "Confirm that failed logins, access to sensitive resources and validation failures are logged and alerted on.",
		url:         target,
		extra:       map[string]any{"note": "manual verification required"},
	}))

	return findings
}
