package scan

import (
	"maps"
	"time"
)

// SecurityHeaderCheck is the verdict for one response header.
type SecurityHeaderCheck struct {
	HeaderName     string `json:"header_name"`
	ObservedValue  string `json:"observed_value,omitempty"`
	IsPresent      bool   `json:"is_present"`
	IsSecure       bool   `json:"is_secure"`
	Recommendation string `json:"recommendation"`
}

// Grade is the coarse transport-security rating.
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
	GradeF     Grade = "F"
)

// CertificateAssessment summarizes the transport-security stage.
type CertificateAssessment struct {
	Subject         string     `json:"subject,omitempty"`
	Issuer          string     `json:"issuer,omitempty"`
	ValidFrom       *time.Time `json:"valid_from,omitempty"`
	ValidTo         *time.Time `json:"valid_to,omitempty"`
	TLSVersions     []string   `json:"tls_versions,omitempty"`
	CipherSuites    []string   `json:"cipher_suites,omitempty"`
	Vulnerabilities []string   `json:"vulnerabilities"`
	Grade           Grade      `json:"grade"`
}

// TechCategory groups detected technologies.
type TechCategory string

const (
	CategoryFramework TechCategory = "framework"
	CategoryCMS       TechCategory = "cms"
	CategoryServer    TechCategory = "server"
	CategoryAnalytics TechCategory = "analytics"
	CategoryCDN       TechCategory = "cdn"
	CategoryLanguage  TechCategory = "language"
	CategoryDatabase  TechCategory = "database"
)

// DetectedTechnology is one fingerprint match.
type DetectedTechnology struct {
	Name       string       `json:"name"`
	Version    string       `json:"version,omitempty"`
	Category   TechCategory `json:"category"`
	Confidence int          `json:"confidence"`
}

// Report accumulates the output of every stage for one task.
type Report struct {
	Task         Task                   `json:"task"`
	Headers      []SecurityHeaderCheck  `json:"headers"`
	Certificate  *CertificateAssessment `json:"certificate,omitempty"`
	Technologies []DetectedTechnology   `json:"technologies"`
	Findings     []Finding              `json:"findings"`
}

// NewReport starts an empty report for task.
func NewReport(task Task) Report {
	return Report{
		Task:         task.Clone(),
		Headers:      []SecurityHeaderCheck{},
		Technologies: []DetectedTechnology{},
		Findings:     []Finding{},
	}
}

// HasOutput reports whether any stage committed headers, a certificate
// assessment, findings or technologies.
func (r Report) HasOutput() bool {
	return len(r.Headers) > 0 || r.Certificate != nil || len(r.Findings) > 0 || len(r.Technologies) > 0
}

// Clone returns a deep copy of the report.
func (r Report) Clone() Report {
	out := Report{
		Task:         r.Task.Clone(),
		Headers:      append([]SecurityHeaderCheck{}, r.Headers...),
		Technologies: append([]DetectedTechnology{}, r.Technologies...),
		Findings:     make([]Finding, len(r.Findings)),
	}
	for i, f := range r.Findings {
		out.Findings[i] = f.Clone()
	}
	if r.Certificate != nil {
		out.Certificate = r.Certificate.Clone()
	}
	return out
}

// Clone returns a copy of the finding with its own evidence map.
func (f Finding) Clone() Finding {
	out := f
	if f.RawEvidence != nil {
		out.RawEvidence = maps.Clone(f.RawEvidence)
	}
	return out
}

// Clone returns a deep copy of the assessment.
func (c *CertificateAssessment) Clone() *CertificateAssessment {
	if c == nil {
		return nil
	}
	out := *c
	out.TLSVersions = append([]string(nil), c.TLSVersions...)
	out.CipherSuites = append([]string(nil), c.CipherSuites...)
	out.Vulnerabilities = append([]string{}, c.Vulnerabilities...)
	if c.ValidFrom != nil {
		t := *c.ValidFrom
		out.ValidFrom = &t
	}
	if c.ValidTo != nil {
		t := *c.ValidTo
		out.ValidTo = &t
	}
	return &out
}
