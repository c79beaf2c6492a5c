package scan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	sharedErrors "github.com/khanhnv2901/webrecon/internal/shared/errors"
)

// Severity is the ordered impact level of a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank orders severities from 5 (critical) down to 1 (info).
// Empty and unknown severities rank as info.
func (s Severity) Rank() int {
	switch s.normalized() {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	default:
		return 1
	}
}

// OrDefault returns info for an empty severity.
func (s Severity) OrDefault() Severity {
	if s == "" {
		return SeverityInfo
	}
	return s
}

func (s Severity) normalized() Severity {
	return Severity(strings.ToLower(string(s)))
}

func (s Severity) String() string { return string(s.OrDefault()) }

// ParseSeverity maps a stored string onto a Severity; empty input yields info.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s))).OrDefault()
	switch sev {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return sev, nil
	}
	return "", fmt.Errorf("%w: unknown severity %q", sharedErrors.ErrInvalidInput, s)
}

// FindingKind classifies where a finding came from.
type FindingKind string

const (
	FindingPort          FindingKind = "port"
	FindingVulnerability FindingKind = "vulnerability"
	FindingSSL           FindingKind = "ssl"
	FindingHeader        FindingKind = "header"
	FindingTechnology    FindingKind = "technology"
)

// ParseFindingKind maps a stored string onto a FindingKind.
func ParseFindingKind(s string) (FindingKind, error) {
	switch k := FindingKind(strings.ToLower(strings.TrimSpace(s))); k {
	case FindingPort, FindingVulnerability, FindingSSL, FindingHeader, FindingTechnology:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown finding kind %q", sharedErrors.ErrInvalidInput, s)
}

// Finding is a single reported security observation. Findings are never
// modified after creation.
type Finding struct {
	ID          string         `json:"id"`
	TaskID      string         `json:"task_id"`
	Kind        FindingKind    `json:"kind"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	RawEvidence map[string]any `json:"raw_evidence,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewFinding builds a finding with a fresh identifier.
func NewFinding(taskID string, kind FindingKind, severity Severity, title, description string, evidence map[string]any) Finding {
	return Finding{
		ID:          uuid.New().String(),
		TaskID:      taskID,
		Kind:        kind,
		Severity:    severity.OrDefault(),
		Title:       title,
		Description: description,
		RawEvidence: evidence,
		CreatedAt:   time.Now().UTC(),
	}
}
