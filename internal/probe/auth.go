package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/khanhnv2901/webrecon/internal/checker"
	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

var loginPaths = []string{"/login", "/signin", "/auth", "/user/login"}

// csrfMarkers are matched case-sensitively against a login page body.
var csrfMarkers = []string{"csrf", "token", "_token"}

// ScanAuthentication inspects login forms and session cookies, and always
// adds a reminder to test default credentials.
func (e *Engine) ScanAuthentication(ctx context.Context, target, taskID string) []scan.Finding {
	var findings []scan.Finding

	for _, path := range loginPaths {
		url := checker.JoinPath(target, path)
		page, ok := e.fetch(ctx, A07.Code, url)
		if !ok || !page.IsSuccess() || !strings.Contains(strings.ToLower(page.Body), "password") {
			continue
		}
		if !containsAny(page.Body, csrfMarkers) {
			findings = append(findings, A07.finding(taskID, hit{
				severity:    scan.SeverityHigh,
				title:       "Login form without CSRF protection",
				description: "The login form carries no anti-CSRF token. Add a per-session token and verify it server-side.",
				url:         url,
				payload:     path,
			}))
		}
		if !strings.Contains(page.Body, "minimum") {
			findings = append(findings, A07.finding(taskID, hit{
				severity:    scan.SeverityMedium,
				title:       "No password policy shown",
				description: "The login page states no password requirements. Enforce and display a password policy.",
				url:         url,
				payload:     path,
			}))
		}
	}

	if page, ok := e.fetch(ctx, A07.Code, target); ok {
		for _, cookie := range checker.AnalyzeCookies(page.Cookies) {
			if !cookie.IsSession {
				continue
			}
			if cookie.MissingSecure {
				findings = append(findings, A07.finding(taskID, hit{
					severity:    scan.SeverityHigh,
					title:       fmt.Sprintf("Session cookie without Secure flag: %s", cookie.Name),
					description: "The session cookie may be sent over plain HTTP. Set the Secure flag.",
					url:         target,
					extra:       map[string]any{"cookie_name": cookie.Name, "missing_flags": []string{"Secure"}},
				}))
			}
			if cookie.MissingHTTPOnly {
				findings = append(findings, A07.finding(taskID, hit{
					severity:    scan.SeverityHigh,
					title:       fmt.Sprintf("Session cookie without HttpOnly flag: %s", cookie.Name),
					description: "The session cookie is readable from JavaScript. Set the HttpOnly flag.",
					url:         target,
					extra:       map[string]any{"cookie_name": cookie.Name, "missing_flags": []string{"HttpOnly"}},
				}))
			}
		}
	}

	findings = append(findings, A07.finding(taskID, hit{
		severity:    scan.SeverityInfo,
		title:       "Test for default credentials",
		description: "Manually verify that common default credentials such as admin/admin are rejected.",
		url:         target,
		extra:       map[string]any{"note": "manual testing required"},
	}))

	return findings
}
