package cmd

import (
	"strings"

	"github.com/fatih/color"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
	colorFatal   = color.New(color.FgRed, color.Bold).SprintFunc()
)

func formatStatusWithColor(status string) string {
	switch strings.ToLower(status) {
	case "completed", "ok", "pass":
		return colorSuccess(status)
	case "running", "pending":
		return colorInfo(status)
	case "failed", "error":
		return colorError(status)
	default:
		return status
	}
}

func formatSeverityWithColor(sev scan.Severity) string {
	label := strings.ToUpper(sev.String())
	switch sev.OrDefault() {
	case scan.SeverityCritical:
		return colorFatal(label)
	case scan.SeverityHigh:
		return colorError(label)
	case scan.SeverityMedium:
		return colorWarn(label)
	case scan.SeverityLow:
		return colorInfo(label)
	default:
		return label
	}
}

func formatGradeWithColor(grade scan.Grade) string {
	switch grade {
	case scan.GradeAPlus, scan.GradeA:
		return colorSuccess(string(grade))
	case scan.GradeB, scan.GradeC:
		return colorWarn(string(grade))
	default:
		return colorError(string(grade))
	}
}
