package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/khanhnv2901/webrecon/internal/checker"
	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

var adminPaths = []string{
	"/admin", "/administrator", "/admin.php", "/admin/", "/wp-admin", "/adminpanel",
	"/cpanel", "/controlpanel", "/dashboard", "/manage", "/manager", "/backend",
}

var idorParams = []string{"id", "user_id", "doc_id", "file_id"}

var idorMarkers = []string{"email", "username", "user"}

var traversalPayloads = []string{
	"../../../etc/passwd",
	`..\..\..\windows\system32\config\sam`,
	"....//....//....//etc/passwd",
}

var traversalMarkers = []string{"root:", "[boot loader]"}

// ScanAccessControl probes exposed admin paths, IDOR-prone parameters and
// path traversal through a file parameter.
func (e *Engine) ScanAccessControl(ctx context.Context, target, taskID string) []scan.Finding {
	var findings []scan.Finding

	for _, path := range adminPaths {
		url := checker.JoinPath(target, path)
		page, ok := e.fetch(ctx, A01.Code, url)
		if !ok {
			continue
		}
		switch page.StatusCode {
		case http.StatusOK:
			findings = append(findings, A01.finding(taskID, hit{
				severity:    scan.SeverityHigh,
				title:       fmt.Sprintf("Admin interface accessible: %s", path),
				description: "An administrative path answered without authentication. Restrict it by network or require authentication.",
				url:         url,
				payload:     path,
				extra:       map[string]any{"status": page.StatusCode},
			}))
		case http.StatusForbidden:
			findings = append(findings, A01.finding(taskID, hit{
				severity:    scan.SeverityMedium,
				title:       fmt.Sprintf("Admin interface discovered: %s", path),
				description: "An administrative path exists but is forbidden. Its presence still discloses the attack surface.",
				url:         url,
				payload:     path,
				extra:       map[string]any{"status": page.StatusCode},
			}))
		}
	}

	for _, param := range idorParams {
		url := checker.WithQuery(target, param, "1")
		page, ok := e.fetch(ctx, A01.Code, url)
		if !ok || !page.IsSuccess() {
			continue
		}
		if containsAny(strings.ToLower(page.Body), idorMarkers) {
			findings = append(findings, A01.finding(taskID, hit{
				severity:    scan.SeverityHigh,
				title:       fmt.Sprintf("Potential IDOR via %s parameter", param),
				description: "A direct object reference returned user data. Enforce object-level authorization on every lookup.",
				url:         url,
				payload:     param + "=1",
			}))
			break
		}
	}

	for _, payload := range traversalPayloads {
		url := checker.WithQuery(target, "file", payload)
		page, ok := e.fetch(ctx, A01.Code, url)
		if !ok {
			continue
		}
		if containsAny(page.Body, traversalMarkers) {
			findings = append(findings, A01.finding(taskID, hit{
				severity:    scan.SeverityCritical,
				title:       "Path traversal",
				description: "A traversal payload in the file parameter returned system file contents. Canonicalize paths and confine them to an allow-listed directory.",
				url:         url,
				payload:     payload,
			}))
			break
		}
	}

	return findings
}

func containsAny(haystack string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(haystack, m) {
			return true
		}
	}
	return false
}
