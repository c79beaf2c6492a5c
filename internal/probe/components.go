package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

type outdatedSignature struct {
	marker   string
	library  string
	severity scan.Severity
	issue    string
}

// outdatedSignatures are matched against the lower-cased body.
var outdatedSignatures = []outdatedSignature{
	{"jquery-1.", "jQuery 1.x", scan.SeverityHigh, "known XSS issues (CVE-2015-9251)"},
	{"jquery-2.", "jQuery 2.x", scan.SeverityMedium, "known security issues"},
	{"angular.js/1.0", "AngularJS 1.0", scan.SeverityHigh, "end of life"},
	{"angular.js/1.2", "AngularJS 1.2", scan.SeverityHigh, "end of life"},
	{"bootstrap/3.", "Bootstrap 3", scan.SeverityMedium, "no longer receives security updates"},
	{"wp-content/plugins/", "WordPress plugins", scan.SeverityMedium, "plugin versions need review"},
	{"lodash@4.17.1", "Lodash 4.17.1", scan.SeverityHigh, "prototype pollution"},
	{"moment.js/2.19.", "Moment.js 2.19.x", scan.SeverityLow, "unmaintained"},
}

// ScanOutdatedComponents matches known outdated library paths and a
// versioned Server header.
func (e *Engine) ScanOutdatedComponents(ctx context.Context, target, taskID string) []scan.Finding {
	page, ok := e.fetch(ctx, A06.Code, target)
	if !ok {
		return nil
	}

	var findings []scan.Finding
	body := strings.ToLower(page.Body)
	for _, sig := range outdatedSignatures {
		if !strings.Contains(body, sig.marker) {
			continue
		}
		findings = append(findings, A06.finding(taskID, hit{
			severity:    sig.severity,
			title:       fmt.Sprintf("Outdated component: %s", sig.library),
			description: fmt.Sprintf("%s detected: %s. Upgrade to a maintained release.", sig.library, sig.issue),
			url:         target,
			extra:       map[string]any{"library": sig.library, "pattern": sig.marker},
		}))
	}

	if server := page.Header.Get("Server"); strings.Contains(server, "/") {
		findings = append(findings, A06.finding(taskID, hit{
			severity:    scan.SeverityLow,
			title:       "Server version disclosed",
			description: fmt.Sprintf("The Server header reveals %q. Hide version numbers.", server),
			url:         target,
			extra:       map[string]any{"server": server},
		}))
	}

	return findings
}
