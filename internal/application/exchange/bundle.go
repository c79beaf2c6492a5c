// Package exchange moves finalized scans in and out of the archive as
// portable JSON or YAML bundles.
package exchange

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
	sharedErrors "github.com/khanhnv2901/webrecon/internal/shared/errors"
)

// BundleVersion is written into every exported bundle.
const BundleVersion = 1

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml and yml in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: unknown bundle format %q", sharedErrors.ErrInvalidInput, s)
}

// FormatForPath picks the format from a file extension, defaulting to JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Bundle is the exchange document.
type Bundle struct {
	Version    int      `json:"version" yaml:"version"`
	ExportedAt string   `json:"exported_at" yaml:"exported_at"`
	Scans      []Record `json:"scans" yaml:"scans"`
}

// Record is one finalized scan: its task plus everything the stages reported.
type Record struct {
	Task         TaskRecord         `json:"task" yaml:"task"`
	Headers      []HeaderRecord     `json:"headers,omitempty" yaml:"headers,omitempty"`
	Certificate  *CertificateRecord `json:"certificate,omitempty" yaml:"certificate,omitempty"`
	Technologies []TechRecord       `json:"technologies,omitempty" yaml:"technologies,omitempty"`
	Findings     []FindingRecord    `json:"findings,omitempty" yaml:"findings,omitempty"`
}

type TaskRecord struct {
	ID          string `json:"id" yaml:"id"`
	Target      string `json:"target" yaml:"target"`
	Kind        string `json:"kind" yaml:"kind"`
	Status      string `json:"status" yaml:"status"`
	CreatedAt   string `json:"created_at" yaml:"created_at"`
	StartedAt   string `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

type HeaderRecord struct {
	Name           string `json:"header_name" yaml:"header_name"`
	Value          string `json:"observed_value,omitempty" yaml:"observed_value,omitempty"`
	Present        bool   `json:"is_present" yaml:"is_present"`
	Secure         bool   `json:"is_secure" yaml:"is_secure"`
	Recommendation string `json:"recommendation" yaml:"recommendation"`
}

type CertificateRecord struct {
	Subject         string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	Issuer          string   `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	ValidFrom       string   `json:"valid_from,omitempty" yaml:"valid_from,omitempty"`
	ValidTo         string   `json:"valid_to,omitempty" yaml:"valid_to,omitempty"`
	TLSVersions     []string `json:"tls_versions,omitempty" yaml:"tls_versions,omitempty"`
	CipherSuites    []string `json:"cipher_suites,omitempty" yaml:"cipher_suites,omitempty"`
	Vulnerabilities []string `json:"vulnerabilities" yaml:"vulnerabilities"`
	Grade           string   `json:"grade" yaml:"grade"`
}

type TechRecord struct {
	Name       string `json:"name" yaml:"name"`
	Version    string `json:"version,omitempty" yaml:"version,omitempty"`
	Category   string `json:"category" yaml:"category"`
	Confidence int    `json:"confidence" yaml:"confidence"`
}

type FindingRecord struct {
	ID          string         `json:"id" yaml:"id"`
	TaskID      string         `json:"task_id" yaml:"task_id"`
	Kind        string         `json:"kind" yaml:"kind"`
	Severity    string         `json:"severity" yaml:"severity"`
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	RawEvidence map[string]any `json:"raw_evidence,omitempty" yaml:"raw_evidence,omitempty"`
	CreatedAt   string         `json:"created_at" yaml:"created_at"`
}

// Encode writes the bundle in the given format.
func Encode(w io.Writer, bundle Bundle, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(bundle); err != nil {
			return fmt.Errorf("%w: encode yaml bundle: %v", sharedErrors.ErrSerializationFailed, err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(bundle); err != nil {
			return fmt.Errorf("%w: encode json bundle: %v", sharedErrors.ErrSerializationFailed, err)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown bundle format %q", sharedErrors.ErrInvalidInput, format)
}

// Decode reads a bundle and rejects versions newer than this build understands.
func Decode(r io.Reader, format Format) (Bundle, error) {
	var bundle Bundle
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&bundle); err != nil {
			return Bundle{}, fmt.Errorf("%w: decode yaml bundle: %v", sharedErrors.ErrDeserializationFailed, err)
		}
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&bundle); err != nil {
			return Bundle{}, fmt.Errorf("%w: decode json bundle: %v", sharedErrors.ErrDeserializationFailed, err)
		}
	default:
		return Bundle{}, fmt.Errorf("%w: unknown bundle format %q", sharedErrors.ErrInvalidInput, format)
	}
	if bundle.Version > BundleVersion {
		return Bundle{}, fmt.Errorf("%w: bundle version %d is newer than supported version %d",
			sharedErrors.ErrInvalidInput, bundle.Version, BundleVersion)
	}
	return bundle, nil
}

// FromReport converts a finalized report into its exchange record.
func FromReport(report scan.Report) Record {
	task := report.Task
	rec := Record{
		Task: TaskRecord{
			ID:          task.ID,
			Target:      task.Target,
			Kind:        task.Kind.String(),
			Status:      task.Status.String(),
			CreatedAt:   formatTime(task.CreatedAt),
			StartedAt:   formatTimePtr(task.StartedAt),
			CompletedAt: formatTimePtr(task.CompletedAt),
			Error:       task.Error,
		},
	}
	for _, h := range report.Headers {
		rec.Headers = append(rec.Headers, HeaderRecord{
			Name:           h.HeaderName,
			Value:          h.ObservedValue,
			Present:        h.IsPresent,
			Secure:         h.IsSecure,
			Recommendation: h.Recommendation,
		})
	}
	if c := report.Certificate; c != nil {
		rec.Certificate = &CertificateRecord{
			Subject:         c.Subject,
			Issuer:          c.Issuer,
			ValidFrom:       formatTimePtr(c.ValidFrom),
			ValidTo:         formatTimePtr(c.ValidTo),
			TLSVersions:     c.TLSVersions,
			CipherSuites:    c.CipherSuites,
			Vulnerabilities: c.Vulnerabilities,
			Grade:           string(c.Grade),
		}
	}
	for _, t := range report.Technologies {
		rec.Technologies = append(rec.Technologies, TechRecord{
			Name:       t.Name,
			Version:    t.Version,
			Category:   string(t.Category),
			Confidence: t.Confidence,
		})
	}
	for _, f := range report.Findings {
		rec.Findings = append(rec.Findings, FindingRecord{
			ID:          f.ID,
			TaskID:      f.TaskID,
			Kind:        string(f.Kind),
			Severity:    f.Severity.String(),
			Title:       f.Title,
			Description: f.Description,
			RawEvidence: f.RawEvidence,
			CreatedAt:   formatTime(f.CreatedAt),
		})
	}
	return rec
}

// ToReport validates a record and converts it back into a finalized report.
func (rec Record) ToReport() (scan.Report, error) {
	task, err := rec.Task.toTask()
	if err != nil {
		return scan.Report{}, err
	}

	report := scan.NewReport(task)
	for _, h := range rec.Headers {
		report.Headers = append(report.Headers, scan.SecurityHeaderCheck{
			HeaderName:     strings.ToLower(h.Name),
			ObservedValue:  h.Value,
			IsPresent:      h.Present,
			IsSecure:       h.Secure,
			Recommendation: h.Recommendation,
		})
	}
	if c := rec.Certificate; c != nil {
		validFrom, err := parseTimePtr(c.ValidFrom)
		if err != nil {
			return scan.Report{}, fieldError(task.ID, "certificate.valid_from", err)
		}
		validTo, err := parseTimePtr(c.ValidTo)
		if err != nil {
			return scan.Report{}, fieldError(task.ID, "certificate.valid_to", err)
		}
		vulnerabilities := c.Vulnerabilities
		if vulnerabilities == nil {
			vulnerabilities = []string{}
		}
		report.Certificate = &scan.CertificateAssessment{
			Subject:         c.Subject,
			Issuer:          c.Issuer,
			ValidFrom:       validFrom,
			ValidTo:         validTo,
			TLSVersions:     c.TLSVersions,
			CipherSuites:    c.CipherSuites,
			Vulnerabilities: vulnerabilities,
			Grade:           scan.Grade(strings.ToUpper(c.Grade)),
		}
	}
	for _, t := range rec.Technologies {
		report.Technologies = append(report.Technologies, scan.DetectedTechnology{
			Name:       t.Name,
			Version:    t.Version,
			Category:   scan.TechCategory(strings.ToLower(t.Category)),
			Confidence: t.Confidence,
		})
	}
	for _, f := range rec.Findings {
		kind, err := scan.ParseFindingKind(f.Kind)
		if err != nil {
			return scan.Report{}, err
		}
		severity, err := scan.ParseSeverity(f.Severity)
		if err != nil {
			return scan.Report{}, err
		}
		createdAt, err := parseTime(f.CreatedAt)
		if err != nil {
			return scan.Report{}, fieldError(task.ID, "finding.created_at", err)
		}
		if f.TaskID != "" && f.TaskID != task.ID {
			return scan.Report{}, fmt.Errorf("%w: finding %s belongs to task %s, not %s",
				sharedErrors.ErrInvalidInput, f.ID, f.TaskID, task.ID)
		}
		report.Findings = append(report.Findings, scan.Finding{
			ID:          f.ID,
			TaskID:      task.ID,
			Kind:        kind,
			Severity:    severity,
			Title:       f.Title,
			Description: f.Description,
			RawEvidence: f.RawEvidence,
			CreatedAt:   createdAt,
		})
	}
	return report, nil
}

func (t TaskRecord) toTask() (scan.Task, error) {
	if strings.TrimSpace(t.ID) == "" {
		return scan.Task{}, fmt.Errorf("%w: task without id", sharedErrors.ErrInvalidInput)
	}
	kind, err := scan.ParseKind(t.Kind)
	if err != nil {
		return scan.Task{}, err
	}
	status, err := scan.ParseStatus(t.Status)
	if err != nil {
		return scan.Task{}, err
	}
	if !status.IsTerminal() {
		return scan.Task{}, fmt.Errorf("%w: task %s is %s, only finalized scans can be imported",
			sharedErrors.ErrInvalidInput, t.ID, status)
	}
	createdAt, err := parseTime(t.CreatedAt)
	if err != nil {
		return scan.Task{}, fieldError(t.ID, "created_at", err)
	}
	startedAt, err := parseTimePtr(t.StartedAt)
	if err != nil {
		return scan.Task{}, fieldError(t.ID, "started_at", err)
	}
	completedAt, err := parseTimePtr(t.CompletedAt)
	if err != nil {
		return scan.Task{}, fieldError(t.ID, "completed_at", err)
	}
	if completedAt == nil {
		return scan.Task{}, fmt.Errorf("%w: task %s has no completed_at", sharedErrors.ErrInvalidInput, t.ID)
	}
	return scan.Task{
		ID:          t.ID,
		Target:      t.Target,
		Kind:        kind,
		Status:      status,
		CreatedAt:   createdAt,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Error:       t.Error,
	}, nil
}

func fieldError(id, field string, err error) error {
	return fmt.Errorf("%w: task %s: %s: %v", sharedErrors.ErrInvalidInput, id, field, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
