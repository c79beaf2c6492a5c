package checker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

func TestDetectVulnerableLibraries(t *testing.T) {
	tests := []struct {
		name         string
		html         string
		wantName     string
		wantVersion  string
		wantSeverity scan.Severity
	}{
		{"jquery", `<script src="https://code.jquery.com/jquery-3.4.1.min.js"></script>`, "jQuery", "3.4.1", scan.SeverityHigh},
		{"angularjs", `<script src="https://ajax.googleapis.com/ajax/libs/angularjs/1.7.8/angular.min.js"></script>`, "AngularJS", "1.7.8", scan.SeverityCritical},
		{"lodash", `<script src="https://cdn.jsdelivr.net/npm/lodash@4.17.11/lodash.min.js"></script>`, "Lodash", "4.17.11", scan.SeverityCritical},
		{"moment", `<script src="https://cdnjs.cloudflare.com/ajax/libs/moment.js/2.29.1/moment.min.js"></script>`, "Moment.js", "2.29.1", scan.SeverityHigh},
		{"bootstrap", `<script src="https://stackpath.bootstrapcdn.com/bootstrap/3.3.7/js/bootstrap.min.js"></script>`, "Bootstrap", "3.3.7", scan.SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vulns := DetectVulnerableLibraries(tt.html)
			require.Len(t, vulns, 1)
			assert.Equal(t, tt.wantName, vulns[0].Name)
			assert.Equal(t, tt.wantVersion, vulns[0].DetectedVersion)
			assert.Equal(t, tt.wantSeverity, vulns[0].Severity)
			assert.NotEmpty(t, vulns[0].VulnerabilityIDs)
		})
	}
}

func TestDetectVulnerableLibraries_SafeVersions(t *testing.T) {
	html := `
		<script src="https://code.jquery.com/jquery-3.5.0.min.js"></script>
		<script src="https://cdn.jsdelivr.net/npm/lodash@4.17.21/lodash.min.js"></script>
	`
	assert.Empty(t, DetectVulnerableLibraries(html))
}

func TestDetectVulnerableLibraries_ReportsOncePerVersion(t *testing.T) {
	html := `
		<script src="/js/jquery-1.12.4.min.js"></script>
		<script src="/fallback/jquery-1.12.4.js"></script>
	`
	vulns := DetectVulnerableLibraries(html)
	require.Len(t, vulns, 1)
	assert.Equal(t, "1.12.4", vulns[0].DetectedVersion)
}

func TestCompareVersion(t *testing.T) {
	tests := []struct {
		v1, v2 string
		want   int
	}{
		{"3.4.1", "3.5.0", -1},
		{"3.5.0", "3.5.0", 0},
		{"3.5", "3.5.0", 0},
		{"4.17.12", "4.17.2", 1},
		{"1.10", "1.9", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compareVersion(tt.v1, tt.v2), "%s vs %s", tt.v1, tt.v2)
	}
}

func TestAnalyzePage_Resources(t *testing.T) {
	html := `<html><head>
		<script src="https://cdn.example.com/app.js"></script>
		<script src="https://cdn.example.com/signed.js" integrity="sha384-abc" crossorigin="anonymous"></script>
		<script src="/local.js"></script>
		<link rel="stylesheet" href="http://cdn.example.com/site.css">
		<link rel="icon" href="https://cdn.example.com/favicon.ico">
	</head><body></body></html>`

	analysis := AnalyzePage(html)
	require.Len(t, analysis.Resources, 4)

	missing := analysis.MissingIntegrity()
	assert.Equal(t, []string{"https://cdn.example.com/app.js", "http://cdn.example.com/site.css"}, ResourceURLs(missing))

	insecure := analysis.InsecureResources()
	assert.Equal(t, []string{"http://cdn.example.com/site.css"}, ResourceURLs(insecure))
}

func TestAnalyzePage_PasswordInputs(t *testing.T) {
	html := `<form action="/login" method="post">
		<input type="text" name="user">
		<input type="password" name="pw">
		<input type="PASSWORD" name="pw2" autocomplete="off">
	</form>`

	analysis := AnalyzePage(html)
	assert.Equal(t, 1, analysis.Forms)
	assert.Equal(t, 2, analysis.PasswordInputs)
	assert.Equal(t, 1, analysis.PasswordAutocompleteOpen)
}

func TestAnalyzePage_CleanDocument(t *testing.T) {
	analysis := AnalyzePage(`<html><body><h1>Welcome</h1></body></html>`)
	assert.Empty(t, analysis.Resources)
	assert.Zero(t, analysis.PasswordInputs)
	assert.Empty(t, analysis.MissingIntegrity())
}
