package checker

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

// SecurityHeaderSpec defines the validation rule for one checklist header
type SecurityHeaderSpec struct {
	Name           string
	CheckFunc      func(value string) bool
	Recommendation string
}

// securityHeaderSpecs is the fixed checklist, in report order.
var securityHeaderSpecs = []SecurityHeaderSpec{
	{
		Name:           "strict-transport-security",
		CheckFunc:      checkHSTS,
		Recommendation: "Add 'Strict-Transport-Security: max-age=31536000; includeSubDomains' to enforce HTTPS",
	},
	{
		Name:           "content-security-policy",
		CheckFunc:      checkCSP,
		Recommendation: "Implement a Content-Security-Policy to mitigate XSS and data injection attacks",
	},
	{
		Name:           "x-frame-options",
		CheckFunc:      checkXFrameOptions,
		Recommendation: "Add 'X-Frame-Options: DENY' or 'SAMEORIGIN' to prevent clickjacking",
	},
	{
		Name:           "x-content-type-options",
		CheckFunc:      checkXContentTypeOptions,
		Recommendation: "Add 'X-Content-Type-Options: nosniff' to prevent MIME sniffing",
	},
	{
		Name:           "referrer-policy",
		CheckFunc:      nonEmpty,
		Recommendation: "Add 'Referrer-Policy: strict-origin-when-cross-origin' to control referrer information",
	},
	{
		Name:           "permissions-policy",
		CheckFunc:      nonEmpty,
		Recommendation: "Add a Permissions-Policy to restrict browser features such as camera and geolocation",
	},
	{
		Name:           "x-xss-protection",
		CheckFunc:      checkXXSSProtection,
		Recommendation: "Add 'X-XSS-Protection: 1; mode=block' for legacy browsers",
	},
}

// informationDisclosureHeaders are reported whenever present.
var informationDisclosureHeaders = []string{
	"server",
	"x-powered-by",
}

// ChecklistSize is the number of checklist headers every audit reports.
var ChecklistSize = len(securityHeaderSpecs)

// HeaderAuditor grades the security headers of a single response.
type HeaderAuditor struct {
	client *http.Client
	logger *zap.Logger
}

func NewHeaderAuditor(client *http.Client, logger *zap.Logger) *HeaderAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeaderAuditor{client: client, logger: logger}
}

// Audit fetches the target once. A failed request is returned as an error.
func (a *HeaderAuditor) Audit(ctx context.Context, target string) ([]scan.SecurityHeaderCheck, error) {
	page, err := Fetch(ctx, a.client, target)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	checks := EvaluateSecurityHeaders(page.Header)
	a.logger.Debug("security headers evaluated",
		zap.String("target", target),
		zap.Int("status", page.StatusCode),
		zap.Int("entries", len(checks)),
	)
	return checks, nil
}

// EvaluateSecurityHeaders applies the checklist to a header set. Header
// lookup is case-insensitive.
func EvaluateSecurityHeaders(headers http.Header) []scan.SecurityHeaderCheck {
	checks := make([]scan.SecurityHeaderCheck, 0, len(securityHeaderSpecs)+len(informationDisclosureHeaders))

	for _, spec := range securityHeaderSpecs {
		values, present := lookupHeader(headers, spec.Name)
		value := strings.Join(values, ", ")
		checks = append(checks, scan.SecurityHeaderCheck{
			HeaderName:     spec.Name,
			ObservedValue:  value,
			IsPresent:      present,
			IsSecure:       present && spec.CheckFunc(value),
			Recommendation: spec.Recommendation,
		})
	}

	for _, name := range informationDisclosureHeaders {
		values, present := lookupHeader(headers, name)
		if !present {
			continue
		}
		checks = append(checks, scan.SecurityHeaderCheck{
			HeaderName:     name,
			ObservedValue:  strings.Join(values, ", "),
			IsPresent:      true,
			IsSecure:       false,
			Recommendation: fmt.Sprintf("Remove or obfuscate the %s header to avoid disclosing version information", name),
		})
	}

	return checks
}

func lookupHeader(headers http.Header, name string) ([]string, bool) {
	values, ok := headers[http.CanonicalHeaderKey(name)]
	return values, ok
}

// checkHSTS requires a max-age directive of plausible length
func checkHSTS(value string) bool {
	return strings.Contains(strings.ToLower(value), "max-age=") && len(value) > 20
}

func checkCSP(value string) bool {
	return len(value) > 10
}

func checkXFrameOptions(value string) bool {
	upper := strings.ToUpper(value)
	return strings.Contains(upper, "DENY") || strings.Contains(upper, "SAMEORIGIN")
}

func checkXContentTypeOptions(value string) bool {
	return strings.Contains(strings.ToLower(value), "nosniff")
}

func checkXXSSProtection(value string) bool {
	return strings.Contains(value, "1")
}

func nonEmpty(value string) bool {
	return strings.TrimSpace(value) != ""
}
