package probe

import (
	"context"
	"fmt"

	"github.com/khanhnv2901/webrecon/internal/checker"
	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

type sensitiveFile struct {
	path        string
	severity    scan.Severity
	description string
}

var sensitiveFiles = []sensitiveFile{
	{"/.git/config", scan.SeverityCritical, "Git configuration"},
	{"/.env", scan.SeverityCritical, "environment file"},
	{"/config.php", scan.SeverityHigh, "PHP configuration"},
	{"/wp-config.php", scan.SeverityHigh, "WordPress configuration"},
	{"/.htaccess", scan.SeverityMedium, "Apache configuration"},
	{"/phpinfo.php", scan.SeverityHigh, "PHP info page"},
	{"/web.config", scan.SeverityHigh, "IIS configuration"},
	{"/backup.sql", scan.SeverityCritical, "database backup"},
	{"/database.sql", scan.SeverityCritical, "database dump"},
	{"/.DS_Store", scan.SeverityLow, "macOS metadata file"},
	{"/robots.txt", scan.SeverityInfo, "robots file"},
	{"/sitemap.xml", scan.SeverityInfo, "sitemap"},
}

var listingDirectories = []string{"/uploads", "/images", "/static", "/assets", "/backup", "/tmp"}

var listingMarkers = []string{"Index of", "Directory listing", "Parent Directory"}

// ScanMisconfiguration looks for exposed files, directory listings and
// missing protective headers.
func (e *Engine) ScanMisconfiguration(ctx context.Context, target, taskID string) []scan.Finding {
	var findings []scan.Finding

	for _, file := range sensitiveFiles {
		url := checker.JoinPath(target, file.path)
		page, ok := e.fetch(ctx, A05.Code, url)
		if !ok || !page.IsSuccess() {
			continue
		}
		findings = append(findings, A05.finding(taskID, hit{
			severity:    file.severity,
			title:       fmt.Sprintf("Sensitive file accessible: %s", file.path),
			description: fmt.Sprintf("The %s (%s) is publicly readable.", file.description, file.path),
			url:         url,
			payload:     file.path,
			extra:       map[string]any{"status": page.StatusCode},
		}))
	}

	for _, dir := range listingDirectories {
		url := checker.JoinPath(target, dir)
		page, ok := e.fetch(ctx, A05.Code, url)
		if !ok {
			continue
		}
		if containsAny(page.Body, listingMarkers) {
			findings = append(findings, A05.finding(taskID, hit{
				severity:    scan.SeverityMedium,
				title:       fmt.Sprintf("Directory listing enabled: %s", dir),
				description: "The server lists directory contents, disclosing file names. Disable autoindex.",
				url:         url,
				payload:     dir,
			}))
		}
	}

	page, ok := e.fetch(ctx, A05.Code, target)
	if !ok {
		return findings
	}
	hasHSTS := page.Header.Get("Strict-Transport-Security") != ""
	hasXFO := page.Header.Get("X-Frame-Options") != ""
	hasCSP := page.Header.Get("Content-Security-Policy") != ""

	if !hasHSTS {
		findings = append(findings, A05.finding(taskID, hit{
			severity:    scan.SeverityMedium,
			title:       "Missing Strict-Transport-Security header",
			description: "Without HSTS browsers may fall back to plain HTTP.",
			url:         target,
			extra:       map[string]any{"header": "Strict-Transport-Security"},
		}))
	}
	if !hasXFO && !hasCSP {
		findings = append(findings, A05.finding(taskID, hit{
			severity:    scan.SeverityMedium,
			title:       "Missing clickjacking protection",
			description: "Neither X-Frame-Options nor a Content-Security-Policy restricts framing.",
			url:         target,
			extra:       map[string]any{"header": "X-Frame-Options / Content-Security-Policy"},
		}))
	}
	if !hasCSP {
		findings = append(findings, A05.finding(taskID, hit{
			severity:    scan.SeverityLow,
			title:       "Missing Content-Security-Policy header",
			description: "A Content-Security-Policy limits the impact of XSS and data injection.",
			url:         target,
			extra:       map[string]any{"header": "Content-Security-Policy"},
		}))
	}

	return findings
}
