package checker

import (
	"net/http"
	"strings"
)

// CORSReport summarises the cross-origin policy a response advertises.
type CORSReport struct {
	AllowOrigin      string   `json:"allow_origin,omitempty"`
	AllowCredentials bool     `json:"allow_credentials"`
	AllowsAnyOrigin  bool     `json:"allows_any_origin"`
	ReflectsOrigin   bool     `json:"reflects_origin"`
	VaryOrigin       bool     `json:"vary_origin"`
	Issues           []string `json:"issues,omitempty"`
}

// Risky reports whether credentials are shared with arbitrary origins.
func (r *CORSReport) Risky() bool {
	return r != nil && r.AllowCredentials && (r.AllowsAnyOrigin || r.ReflectsOrigin)
}

// AnalyzeCORS inspects CORS headers returned for a request that carried
// requestOrigin. It returns nil when the response raises no concern.
func AnalyzeCORS(headers http.Header, requestOrigin string) *CORSReport {
	if headers == nil {
		return nil
	}
	report := &CORSReport{
		AllowOrigin:      headers.Get("Access-Control-Allow-Origin"),
		AllowCredentials: strings.EqualFold(headers.Get("Access-Control-Allow-Credentials"), "true"),
		VaryOrigin:       varyIncludesOrigin(headers.Values("Vary")),
	}
	if report.AllowOrigin == "" {
		return nil
	}

	switch {
	case report.AllowOrigin == "*":
		report.AllowsAnyOrigin = true
		report.Issues = append(report.Issues, "CORS allows any origin (*)")
	case requestOrigin != "" && strings.EqualFold(report.AllowOrigin, requestOrigin):
		report.ReflectsOrigin = true
		report.Issues = append(report.Issues, "CORS reflects the request Origin")
		if !report.VaryOrigin {
			report.Issues = append(report.Issues, "Vary: Origin header missing (responses may be cached incorrectly)")
		}
	}

	if report.AllowCredentials && (report.AllowsAnyOrigin || report.ReflectsOrigin) {
		report.Issues = append(report.Issues, "Credentials allowed for arbitrary origins")
	}

	if len(report.Issues) == 0 {
		return nil
	}
	return report
}

func varyIncludesOrigin(values []string) bool {
	for _, value := range values {
		for _, token := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "origin") {
				return true
			}
		}
	}
	return false
}
