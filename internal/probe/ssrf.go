package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/khanhnv2901/webrecon/internal/checker"
	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

var ssrfParams = []string{"url", "uri", "path", "dest", "redirect", "fetch", "file", "document"}

var ssrfPayloads = []payload{
	{"http://localhost", "localhost"},
	{"http://127.0.0.1", "loopback IP"},
	{"http://169.254.169.254", "AWS metadata"},
	{"http://metadata.google.internal", "GCP metadata"},
	{"http://[::1]", "IPv6 loopback"},
	{"file:///etc/passwd", "file scheme"},
}

// ssrfIndicators are matched against the lower-cased body.
var ssrfIndicators = []string{"root:", "localhost", "127.0.0.1", "ami-id", "instance-id", "kube-env"}

var redirectPayloads = []string{"https://evil.com", "//evil.com", `/\evil.com`}

// ScanSSRF probes URL-taking parameters for server-side fetches of internal
// resources, and the redirect parameter for open redirects.
func (e *Engine) ScanSSRF(ctx context.Context, target, taskID string) []scan.Finding {
	var findings []scan.Finding

	for _, param := range ssrfParams {
		for _, p := range ssrfPayloads {
			url := checker.WithQuery(target, param, p.value)
			page, ok := e.fetch(ctx, A10.Code, url)
			if !ok {
				continue
			}
			if containsAny(strings.ToLower(page.Body), ssrfIndicators) {
				findings = append(findings, A10.finding(taskID, hit{
					severity:    scan.SeverityCritical,
					title:       fmt.Sprintf("Server-side request forgery: %s", p.label),
					description: "The server appears to fetch attacker-supplied URLs. Allow-list destinations and block internal ranges.",
					url:         url,
					payload:     p.value,
					extra:       map[string]any{"parameter": param},
				}))
				break
			}
		}
	}

	for _, p := range redirectPayloads {
		url := checker.WithQuery(target, "redirect", p)
		page, ok := e.fetch(ctx, A10.Code, url)
		if !ok {
			continue
		}
		if location := page.Header.Get("Location"); strings.Contains(location, "evil.com") {
			findings = append(findings, A10.finding(taskID, hit{
				severity:    scan.SeverityMedium,
				title:       "Open redirect",
				description: "The redirect parameter sends users to arbitrary hosts. Validate redirect targets against an allow-list.",
				url:         url,
				payload:     p,
				extra:       map[string]any{"redirect_to": location},
			}))
			break
		}
	}

	return findings
}
