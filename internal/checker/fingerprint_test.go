package checker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

func techByName(techs []scan.DetectedTechnology) map[string]scan.DetectedTechnology {
	out := make(map[string]scan.DetectedTechnology, len(techs))
	for _, tech := range techs {
		out[tech.Name] = tech
	}
	return out
}

func TestFingerprintPage_HeadersAndMarkup(t *testing.T) {
	headers := http.Header{}
	headers.Set("Server", "nginx/1.18.0 (Ubuntu)")
	headers.Set("X-Powered-By", "PHP/8.1.2")
	headers.Set("CF-Ray", "7d1c2a")

	body := `<html><head>
		<meta name="generator" content="WordPress 6.4.2">
		<script src="https://www.googletagmanager.com/gtm.js?id=GTM-1"></script>
	</head><body><div id="__next"></div></body></html>`

	techs := techByName(FingerprintPage(headers, body))

	require.Contains(t, techs, "Nginx")
	assert.Equal(t, "1.18.0", techs["Nginx"].Version)
	assert.Equal(t, scan.CategoryServer, techs["Nginx"].Category)
	assert.Equal(t, 95, techs["Nginx"].Confidence)

	require.Contains(t, techs, "PHP")
	assert.Equal(t, "8.1.2", techs["PHP"].Version)
	assert.Equal(t, scan.CategoryLanguage, techs["PHP"].Category)

	require.Contains(t, techs, "WordPress")
	assert.Equal(t, "6.4.2", techs["WordPress"].Version)
	assert.Equal(t, scan.CategoryCMS, techs["WordPress"].Category)

	require.Contains(t, techs, "Next.js")
	assert.Equal(t, 90, techs["Next.js"].Confidence)

	require.Contains(t, techs, "Google Tag Manager")
	assert.Equal(t, scan.CategoryAnalytics, techs["Google Tag Manager"].Category)

	require.Contains(t, techs, "Cloudflare")
	assert.Equal(t, scan.CategoryCDN, techs["Cloudflare"].Category)

	assert.NotContains(t, techs, "Apache")
	assert.NotContains(t, techs, "Google Analytics")
}

func TestFingerprintPage_ReportsEachTechnologyOnce(t *testing.T) {
	body := `<div data-v-1a2b class="btn btn-primary"></div><script src="/vue.js"></script><link href="/bootstrap.css" rel="stylesheet">`
	techs := FingerprintPage(http.Header{}, body)

	counts := make(map[string]int)
	for _, tech := range techs {
		counts[tech.Name]++
	}
	assert.Equal(t, 1, counts["Vue.js"])
	assert.Equal(t, 1, counts["Bootstrap"])
}

func TestFingerprintPage_Tailwind(t *testing.T) {
	body := `<div class="flex-1 bg-white rounded-lg"></div>`
	techs := techByName(FingerprintPage(http.Header{}, body))
	require.Contains(t, techs, "Tailwind CSS")
	assert.Equal(t, 75, techs["Tailwind CSS"].Confidence)

	sparse := techByName(FingerprintPage(http.Header{}, `<div class="bg-white"></div>`))
	assert.NotContains(t, sparse, "Tailwind CSS")
}

func TestHeaderProductVersion(t *testing.T) {
	byName := make(map[string]headerProduct, len(headerProducts))
	for _, p := range headerProducts {
		require.NotNil(t, p.version, p.name)
		byName[p.name] = p
	}

	tests := []struct {
		product string
		value   string
		want    string
	}{
		{"Nginx", "nginx/1.18.0 (Ubuntu)", "1.18.0"},
		{"Apache", "Apache/2.4.41 (Unix) OpenSSL/1.1.1", "2.4.41"},
		{"Microsoft IIS", "Microsoft-IIS/10.0", "10.0"},
		{"PHP", "PHP/8.1.2", "8.1.2"},
		{"ASP.NET", "ASP.NET", ""},
		{"Nginx", "nginx", ""},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, byName[tt.product].versionIn(tt.value))
		})
	}
}

func TestFingerprintPage_CleanPage(t *testing.T) {
	techs := FingerprintPage(http.Header{}, `<html><body><h1>Welcome</h1></body></html>`)
	assert.Empty(t, techs)
}

func TestTechnologyFingerprinter_Detect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "Apache/2.4.57")
		_, _ = w.Write([]byte(`<html><body data-reactroot=""><div class="_reactroot"></div></body></html>`))
	}))
	defer server.Close()

	client := NewHTTPClient(ClientConfig{Timeout: 5 * time.Second, FollowRedirects: true})
	fp := NewTechnologyFingerprinter(client, zaptest.NewLogger(t))

	techs, err := fp.Detect(context.Background(), server.URL)
	require.NoError(t, err)

	byName := techByName(techs)
	require.Contains(t, byName, "Apache")
	assert.Equal(t, "2.4.57", byName["Apache"].Version)
	assert.Contains(t, byName, "React")
}

func TestTechnologyFingerprinter_DetectError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewHTTPClient(ClientConfig{Timeout: 5 * time.Second})
	fp := NewTechnologyFingerprinter(client, nil)

	_, err := fp.Detect(context.Background(), url)
	assert.Error(t, err)
}
