package bolt

import (
	"fmt"
	"time"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

// reportDTO is the stored form of a finalized report
type reportDTO struct {
	Task         taskDTO         `json:"task"`
	Headers      []headerDTO     `json:"headers"`
	Certificate  *certificateDTO `json:"certificate,omitempty"`
	Technologies []technologyDTO `json:"technologies"`
	Findings     []findingDTO    `json:"findings"`
}

type taskDTO struct {
	ID          string `json:"id"`
	Target      string `json:"target"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	Error       string `json:"error,omitempty"`
}

type headerDTO struct {
	Name           string `json:"name"`
	Value          string `json:"value,omitempty"`
	Present        bool   `json:"present"`
	Secure         bool   `json:"secure"`
	Recommendation string `json:"recommendation"`
}

type certificateDTO struct {
	Subject         string   `json:"subject,omitempty"`
	Issuer          string   `json:"issuer,omitempty"`
	ValidFrom       string   `json:"valid_from,omitempty"`
	ValidTo         string   `json:"valid_to,omitempty"`
	TLSVersions     []string `json:"tls_versions,omitempty"`
	CipherSuites    []string `json:"cipher_suites,omitempty"`
	Vulnerabilities []string `json:"vulnerabilities"`
	Grade           string   `json:"grade"`
}

type technologyDTO struct {
	Name       string `json:"name"`
	Version    string `json:"version,omitempty"`
	Category   string `json:"category"`
	Confidence int    `json:"confidence"`
}

type findingDTO struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Severity    string         `json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Evidence    map[string]any `json:"evidence,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

func toDTO(report scan.Report) reportDTO {
	task := report.Task
	dto := reportDTO{
		Task: taskDTO{
			ID:          task.ID,
			Target:      task.Target,
			Kind:        task.Kind.String(),
			Status:      task.Status.String(),
			CreatedAt:   formatTime(task.CreatedAt),
			StartedAt:   formatTimePtr(task.StartedAt),
			CompletedAt: formatTimePtr(task.CompletedAt),
			Error:       task.Error,
		},
		Headers:      make([]headerDTO, 0, len(report.Headers)),
		Technologies: make([]technologyDTO, 0, len(report.Technologies)),
		Findings:     make([]findingDTO, 0, len(report.Findings)),
	}

	for _, h := range report.Headers {
		dto.Headers = append(dto.Headers, headerDTO{
			Name:           h.HeaderName,
			Value:          h.ObservedValue,
			Present:        h.IsPresent,
			Secure:         h.IsSecure,
			Recommendation: h.Recommendation,
		})
	}

	if c := report.Certificate; c != nil {
		dto.Certificate = &certificateDTO{
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
		dto.Technologies = append(dto.Technologies, technologyDTO{
			Name:       t.Name,
			Version:    t.Version,
			Category:   string(t.Category),
			Confidence: t.Confidence,
		})
	}

	for _, f := range report.Findings {
		dto.Findings = append(dto.Findings, findingDTO{
			ID:          f.ID,
			Kind:        string(f.Kind),
			Severity:    f.Severity.String(),
			Title:       f.Title,
			Description: f.Description,
			Evidence:    f.RawEvidence,
			CreatedAt:   formatTime(f.CreatedAt),
		})
	}

	return dto
}

func fromDTO(dto reportDTO) (scan.Report, error) {
	task, err := taskFromDTO(dto.Task)
	if err != nil {
		return scan.Report{}, err
	}

	report := scan.NewReport(task)
	for _, h := range dto.Headers {
		report.Headers = append(report.Headers, scan.SecurityHeaderCheck{
			HeaderName:     h.Name,
			ObservedValue:  h.Value,
			IsPresent:      h.Present,
			IsSecure:       h.Secure,
			Recommendation: h.Recommendation,
		})
	}

	if c := dto.Certificate; c != nil {
		validFrom, err := parseTimePtr(c.ValidFrom)
		if err != nil {
			return scan.Report{}, fmt.Errorf("failed to parse valid from time: %w", err)
		}
		validTo, err := parseTimePtr(c.ValidTo)
		if err != nil {
			return scan.Report{}, fmt.Errorf("failed to parse valid to time: %w", err)
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
			Grade:           scan.Grade(c.Grade),
		}
	}

	for _, t := range dto.Technologies {
		report.Technologies = append(report.Technologies, scan.DetectedTechnology{
			Name:       t.Name,
			Version:    t.Version,
			Category:   scan.TechCategory(t.Category),
			Confidence: t.Confidence,
		})
	}

	for _, f := range dto.Findings {
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
			return scan.Report{}, fmt.Errorf("failed to parse finding created at time: %w", err)
		}
		report.Findings = append(report.Findings, scan.Finding{
			ID:          f.ID,
			TaskID:      task.ID,
			Kind:        kind,
			Severity:    severity,
			Title:       f.Title,
			Description: f.Description,
			RawEvidence: f.Evidence,
			CreatedAt:   createdAt,
		})
	}

	return report, nil
}

func taskFromDTO(dto taskDTO) (scan.Task, error) {
	kind, err := scan.ParseKind(dto.Kind)
	if err != nil {
		return scan.Task{}, err
	}
	status, err := scan.ParseStatus(dto.Status)
	if err != nil {
		return scan.Task{}, err
	}
	createdAt, err := parseTime(dto.CreatedAt)
	if err != nil {
		return scan.Task{}, fmt.Errorf("failed to parse created at time: %w", err)
	}
	startedAt, err := parseTimePtr(dto.StartedAt)
	if err != nil {
		return scan.Task{}, fmt.Errorf("failed to parse started at time: %w", err)
	}
	completedAt, err := parseTimePtr(dto.CompletedAt)
	if err != nil {
		return scan.Task{}, fmt.Errorf("failed to parse completed at time: %w", err)
	}
	return scan.Task{
		ID:          dto.ID,
		Target:      dto.Target,
		Kind:        kind,
		Status:      status,
		CreatedAt:   createdAt,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Error:       dto.Error,
	}, nil
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
