package checker

import (
	"net/http"
	"strings"
)

// CookieFinding describes the security-relevant attributes of one cookie.
type CookieFinding struct {
	Name             string `json:"name"`
	MissingSecure    bool   `json:"missing_secure"`
	MissingHTTPOnly  bool   `json:"missing_http_only"`
	IsSession        bool   `json:"is_session"`
	SerializedMarker string `json:"serialized_marker,omitempty"`
}

// minSerializedLength is the shortest cookie value inspected for serialized objects.
const minSerializedLength = 50

var serializedPrefixes = []string{"O:", "rO0"}

var serializedFragments = []string{"__pickle", "__reduce"}

// AnalyzeCookies reports every cookie with its flags. Callers decide which
// combinations are worth a finding.
func AnalyzeCookies(cookies []*http.Cookie) []CookieFinding {
	if len(cookies) == 0 {
		return nil
	}
	findings := make([]CookieFinding, 0, len(cookies))
	for _, cookie := range cookies {
		if cookie == nil {
			continue
		}
		findings = append(findings, CookieFinding{
			Name:             cookie.Name,
			MissingSecure:    !cookie.Secure,
			MissingHTTPOnly:  !cookie.HttpOnly,
			IsSession:        IsSessionCookie(cookie.Name),
			SerializedMarker: serializedMarker(cookie.Value),
		})
	}
	return findings
}

// IsSessionCookie matches the usual session cookie names.
func IsSessionCookie(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "session") || strings.Contains(lower, "sess") || lower == "phpsessid"
}

// serializedMarker returns the marker that identifies a serialized object
// (PHP, Java, Python pickle), or "" when none applies.
func serializedMarker(value string) string {
	if len(value) <= minSerializedLength {
		return ""
	}
	for _, prefix := range serializedPrefixes {
		if strings.HasPrefix(value, prefix) {
			return prefix
		}
	}
	for _, fragment := range serializedFragments {
		if strings.Contains(value, fragment) {
			return fragment
		}
	}
	return ""
}
