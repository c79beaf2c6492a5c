package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

func TestLegacyScanner_Scan(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Has("search"):
			_, _ = w.Write([]byte("Results for " + q.Get("search")))
		case strings.Contains(q.Get("id"), "'"):
			_, _ = w.Write([]byte("Warning: mysql_fetch_array() expects parameter 1"))
		default:
			if origin := r.Header.Get("Origin"); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			http.SetCookie(w, &http.Cookie{Name: "prefs", Value: "dark"})
			_, _ = w.Write([]byte(`<script src="/js/jquery-3.4.1.min.js"></script>`))
		}
	}))
	defer server.Close()

	findings, err := NewLegacyScanner(newTestEngine(t)).Scan(context.Background(), server.URL, testTaskID)
	require.NoError(t, err)
	got := byTitle(findings)

	require.Len(t, findings, 6)
	assert.Equal(t, scan.SeverityHigh, got["Reflected XSS: unencoded search parameter"].Severity)
	assert.Equal(t, scan.SeverityCritical, got["SQL injection: error-based"].Severity)
	assert.Equal(t, scan.SeverityHigh, got["CORS allows credentials from any origin"].Severity)
	assert.Equal(t, scan.SeverityMedium, got["Missing clickjacking protection"].Severity)
	assert.Equal(t, scan.SeverityLow, got["Insecure cookie flags: prefs"].Severity)
	assert.Equal(t, scan.SeverityHigh, got["Vulnerable JavaScript library: jQuery 3.4.1"].Severity)

	for _, f := range findings {
		assert.Equal(t, "legacy", f.RawEvidence["source"], f.Title)
		assert.Contains(t, f.RawEvidence, "owasp", f.Title)
	}
}

func TestLegacyScanner_HardenedTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "x", Secure: true, HttpOnly: true})
		_, _ = w.Write([]byte("<html><body>static</body></html>"))
	}))
	defer server.Close()

	findings, err := NewLegacyScanner(newTestEngine(t)).Scan(context.Background(), server.URL, testTaskID)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestLegacyScanner_UnreachableTarget(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	findings, err := NewLegacyScanner(newTestEngine(t)).Scan(context.Background(), url, testTaskID)
	require.NoError(t, err)
	assert.Empty(t, findings)
}
