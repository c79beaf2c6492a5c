package cmd

import (
	"testing"

	"github.com/fatih/color"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

func disableColor(t *testing.T) {
	t.Helper()
	original := color.NoColor
	color.NoColor = true
	t.Cleanup(func() {
		color.NoColor = original
	})
}

func TestFormatStatusWithColor(t *testing.T) {
	disableColor(t)

	tests := []struct {
		name   string
		status string
		want   string
	}{
		{name: "completed", status: "completed", want: "completed"},
		{name: "running", status: "running", want: "running"},
		{name: "failure", status: "FAILED", want: "FAILED"},
		{name: "unknown", status: "queued", want: "queued"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatStatusWithColor(tt.status); got != tt.want {
				t.Fatalf("formatStatusWithColor(%q) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestFormatSeverityWithColor(t *testing.T) {
	disableColor(t)

	tests := []struct {
		sev  scan.Severity
		want string
	}{
		{scan.SeverityCritical, "CRITICAL"},
		{scan.SeverityHigh, "HIGH"},
		{scan.SeverityMedium, "MEDIUM"},
		{scan.SeverityLow, "LOW"},
		{scan.SeverityInfo, "INFO"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		if got := formatSeverityWithColor(tt.sev); got != tt.want {
			t.Errorf("formatSeverityWithColor(%q) = %q, want %q", tt.sev, got, tt.want)
		}
	}
}

func TestFormatGradeWithColor(t *testing.T) {
	disableColor(t)

	if got := formatGradeWithColor(scan.GradeAPlus); got != "A+" {
		t.Fatalf("unexpected grade %q", got)
	}
	if got := formatGradeWithColor(scan.GradeF); got != "F" {
		t.Fatalf("unexpected grade %q", got)
	}
}
