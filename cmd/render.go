package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/khanhnv2901/webrecon/internal/application/exchange"
	"github.com/khanhnv2901/webrecon/internal/checker"
	"github.com/khanhnv2901/webrecon/internal/domain/scan"
	sharedErrors "github.com/khanhnv2901/webrecon/internal/shared/errors"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func validateOutput(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case outputText, outputJSON, outputYAML:
		return f, nil
	case "yml":
		return outputYAML, nil
	}
	return "", fmt.Errorf("%w: unknown output format %q (want text, json or yaml)", sharedErrors.ErrInvalidInput, format)
}

func renderReport(w io.Writer, report scan.Report, format string) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(exchange.FromReport(report)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return renderReportText(w, report)
	}
}

func renderReportText(w io.Writer, report scan.Report) error {
	task := report.Task
	fmt.Fprintf(w, "%s %s\n", colorBold("Scan"), task.ID)
	fmt.Fprintf(w, "  Target:   %s\n", task.Target)
	fmt.Fprintf(w, "  Kind:     %s\n", task.Kind)
	fmt.Fprintf(w, "  Status:   %s\n", formatStatusWithColor(task.Status.String()))
	if d := taskDuration(task); d > 0 {
		fmt.Fprintf(w, "  Duration: %s\n", d.Round(time.Millisecond))
	}
	if task.Error != "" {
		fmt.Fprintf(w, "  Errors:   %s\n", colorWarn(task.Error))
	}

	if len(report.Headers) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorBold("Security headers"))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  HEADER\tPRESENT\tSECURE\tRECOMMENDATION")
		for _, h := range report.Headers {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", h.HeaderName, yesNo(h.IsPresent), yesNo(h.IsSecure), h.Recommendation)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if c := report.Certificate; c != nil {
		fmt.Fprintf(w, "\n%s\n", colorBold("Transport security"))
		fmt.Fprintf(w, "  Grade:    %s\n", formatGradeWithColor(c.Grade))
		if c.Subject != "" {
			fmt.Fprintf(w, "  Subject:  %s\n", c.Subject)
			fmt.Fprintf(w, "  Issuer:   %s\n", c.Issuer)
		}
		if c.ValidTo != nil {
			fmt.Fprintf(w, "  Expires:  %s\n", c.ValidTo.Format(time.RFC3339))
		}
		if len(c.TLSVersions) > 0 {
			fmt.Fprintf(w, "  Versions: %s\n", strings.Join(c.TLSVersions, ", "))
		}
		for _, v := range c.Vulnerabilities {
			fmt.Fprintf(w, "  - %s\n", v)
		}
		// the stored grade is the coarse HTTPS check; the profile grade weighs
		// the negotiated version and cipher suite
		if c.Grade != scan.GradeF && len(c.CipherSuites) > 0 {
			fmt.Fprintf(w, "  Profile:  %s\n", formatGradeWithColor(checker.GradeTLSProfile(c.TLSVersions, c.CipherSuites)))
			for _, v := range checker.ProfileVulnerabilities(c.TLSVersions, c.CipherSuites) {
				fmt.Fprintf(w, "  - %s\n", v)
			}
		}
	}

	if len(report.Technologies) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorBold("Technologies"))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  NAME\tVERSION\tCATEGORY\tCONFIDENCE")
		for _, tech := range report.Technologies {
			version := tech.Version
			if version == "" {
				version = "-"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%d%%\n", tech.Name, version, tech.Category, tech.Confidence)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	findings := sortedFindings(report.Findings)
	fmt.Fprintf(w, "\n%s (%d)\n", colorBold("Findings"), len(findings))
	for _, f := range findings {
		fmt.Fprintf(w, "  [%s] %s\n", formatSeverityWithColor(f.Severity), f.Title)
		if f.Description != "" {
			fmt.Fprintf(w, "      %s\n", f.Description)
		}
	}
	if summary := severitySummary(findings); summary != "" {
		fmt.Fprintf(w, "\n  %s\n", summary)
	}
	return nil
}

// sortedFindings orders findings by descending severity, keeping discovery
// order within a severity.
func sortedFindings(findings []scan.Finding) []scan.Finding {
	out := append([]scan.Finding(nil), findings...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}

func severitySummary(findings []scan.Finding) string {
	if len(findings) == 0 {
		return ""
	}
	counts := make(map[scan.Severity]int)
	for _, f := range findings {
		counts[f.Severity.OrDefault()]++
	}
	order := []scan.Severity{scan.SeverityCritical, scan.SeverityHigh, scan.SeverityMedium, scan.SeverityLow, scan.SeverityInfo}
	parts := make([]string, 0, len(order))
	for _, sev := range order {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", strings.ToUpper(sev.String()), n))
		}
	}
	return strings.Join(parts, " ")
}

func taskDuration(task scan.Task) time.Duration {
	if task.StartedAt == nil || task.CompletedAt == nil {
		return 0
	}
	return task.CompletedAt.Sub(*task.StartedAt)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
