package probe

import (
	"context"
	"strings"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

// burstRequests is the number of back-to-back requests used to detect
// missing rate limiting.
const burstRequests = 10

var enumerationMessages = []string{"User not found", "Invalid username"}

// ScanInsecureDesign checks for missing rate limiting and user enumeration.
func (e *Engine) ScanInsecureDesign(ctx context.Context, target, taskID string) []scan.Finding {
	var findings []scan.Finding

	page, ok := e.fetch(ctx, A04.Code, target)
	if !ok {
		return nil
	}

	succeeded := 0
	for range burstRequests {
		if burst, ok := e.fetch(ctx, A04.Code, target); ok && burst.IsSuccess() {
			succeeded++
		}
	}
	if succeeded == burstRequests {
		findings = append(findings, A04.finding(taskID, hit{
			severity:    scan.SeverityMedium,
			title:       "No rate limiting",
			description: "Rapid repeated requests were all served. Rate-limit clients to slow brute force and abuse.",
			url:         target,
			extra:       map[string]any{"test_requests": burstRequests},
		}))
	}

	for _, msg := range enumerationMessages {
		if strings.Contains(page.Body, msg) {
			findings = append(findings, A04.finding(taskID, hit{
				severity:    scan.SeverityMedium,
				title:       "User enumeration",
				description: "The response distinguishes unknown users from bad passwords. Return one generic message.",
				url:         target,
				extra:       map[string]any{"message": msg},
			}))
			break
		}
	}

	return findings
}
