package probe

import (
	"context"
	"fmt"

	"github.com/khanhnv2901/webrecon/internal/checker"
	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

// ScanIntegrity checks resources loaded over HTTP, external resources
// without Subresource Integrity and serialized objects in cookies.
func (e *Engine) ScanIntegrity(ctx context.Context, target, taskID string) []scan.Finding {
	page, ok := e.fetch(ctx, A08.Code, target)
	if !ok {
		return nil
	}

	var findings []scan.Finding
	analysis := checker.AnalyzePage(page.Body)

	if insecure := analysis.InsecureResources(); len(insecure) > 0 {
		findings = append(findings, A08.finding(taskID, hit{
			severity:    scan.SeverityHigh,
			title:       "Scripts or styles loaded over HTTP",
			description: "Resources fetched over plain HTTP can be tampered with in transit. Load them over HTTPS.",
			url:         target,
			extra:       map[string]any{"resources": checker.ResourceURLs(insecure)},
		}))
	}

	if missing := analysis.MissingIntegrity(); len(missing) > 0 {
		findings = append(findings, A08.finding(taskID, hit{
			severity:    scan.SeverityMedium,
			title:       "External resources without Subresource Integrity",
			description: "External scripts or stylesheets have no integrity hash. Add integrity and crossorigin attributes.",
			url:         target,
			extra:       map[string]any{"resources": checker.ResourceURLs(missing)},
		}))
	}

	for _, cookie := range checker.AnalyzeCookies(page.Cookies) {
		if cookie.SerializedMarker == "" {
			continue
		}
		findings = append(findings, A08.finding(taskID, hit{
			severity:    scan.SeverityHigh,
			title:       fmt.Sprintf("Serialized data in cookie: %s", cookie.Name),
			description: "The cookie appears to hold a serialized object. Deserializing client data enables object injection.",
			url:         target,
			extra:       map[string]any{"cookie_name": cookie.Name, "marker": cookie.SerializedMarker},
		}))
	}

	return findings
}
