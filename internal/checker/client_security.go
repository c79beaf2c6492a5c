package checker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

// PageResource is a script or stylesheet referenced by a page.
type PageResource struct {
	Tag       string `json:"tag"`
	URL       string `json:"url"`
	Integrity string `json:"integrity,omitempty"`
}

// External reports whether the resource is loaded from an absolute URL.
func (r PageResource) External() bool {
	lower := strings.ToLower(r.URL)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "//")
}

// PageAnalysis collects the client-side properties of one HTML document.
type PageAnalysis struct {
	Resources                []PageResource
	PasswordInputs           int
	PasswordAutocompleteOpen int
	Forms                    int
}

// AnalyzePage parses the document once. Unparseable input yields an empty analysis.
func AnalyzePage(body string) PageAnalysis {
	var analysis PageAnalysis
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return analysis
	}

	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		analysis.Resources = append(analysis.Resources, PageResource{
			Tag:       "script",
			URL:       strings.TrimSpace(s.AttrOr("src", "")),
			Integrity: s.AttrOr("integrity", ""),
		})
	})
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		rel := strings.ToLower(s.AttrOr("rel", ""))
		if !strings.Contains(rel, "stylesheet") && !strings.Contains(rel, "preload") && !strings.Contains(rel, "modulepreload") {
			return
		}
		analysis.Resources = append(analysis.Resources, PageResource{
			Tag:       "link",
			URL:       strings.TrimSpace(s.AttrOr("href", "")),
			Integrity: s.AttrOr("integrity", ""),
		})
	})

	analysis.Forms = doc.Find("form").Length()
	doc.Find("input[type]").Each(func(_ int, s *goquery.Selection) {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("type", "")), "password") {
			return
		}
		analysis.PasswordInputs++
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("autocomplete", "")), "off") {
			analysis.PasswordAutocompleteOpen++
		}
	})
	return analysis
}

// MissingIntegrity lists external resources without a sha-based integrity hash.
func (a PageAnalysis) MissingIntegrity() []PageResource {
	var out []PageResource
	for _, r := range a.Resources {
		if r.External() && !strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.Integrity)), "sha") {
			out = append(out, r)
		}
	}
	return out
}

// InsecureResources lists resources fetched over plain http.
func (a PageAnalysis) InsecureResources() []PageResource {
	var out []PageResource
	for _, r := range a.Resources {
		if strings.HasPrefix(strings.ToLower(r.URL), "http://") {
			out = append(out, r)
		}
	}
	return out
}

// ResourceURLs flattens resources for evidence maps.
func ResourceURLs(resources []PageResource) []string {
	urls := make([]string, 0, len(resources))
	for _, r := range resources {
		urls = append(urls, r.URL)
	}
	return urls
}

// VulnerableLibrary is a JavaScript library version with published advisories.
type VulnerableLibrary struct {
	Name             string        `json:"name"`
	DetectedVersion  string        `json:"detected_version"`
	VulnerabilityIDs []string      `json:"vulnerability_ids"`
	Severity         scan.Severity `json:"severity"`
	Description      string        `json:"description"`
	Recommendation   string        `json:"recommendation"`
}

type libraryAdvisory struct {
	name        string
	pattern     *regexp.Regexp
	fixed       string
	ids         []string
	severity    scan.Severity
	description string
}

var libraryAdvisories = []libraryAdvisory{
	{
		name:        "jQuery",
		pattern:     regexp.MustCompile(`(?i)jquery[/-](\d+\.\d+\.?\d*)`),
		fixed:       "3.5.0",
		ids:         []string{"CVE-2020-11022", "CVE-2020-11023"},
		severity:    scan.SeverityHigh,
		description: "jQuery versions before 3.5.0 contain XSS vulnerabilities in htmlPrefilter",
	},
	{
		name:        "AngularJS",
		pattern:     regexp.MustCompile(`(?i)angularjs?[/@](\d+\.\d+\.?\d*)`),
		fixed:       "1.7.9",
		ids:         []string{"CVE-2019-10768"},
		severity:    scan.SeverityCritical,
		description: "AngularJS versions before 1.7.9 contain a prototype pollution vulnerability",
	},
	{
		name:        "Lodash",
		pattern:     regexp.MustCompile(`(?i)lodash(?:\.js)?[@/](\d+\.\d+\.?\d*)`),
		fixed:       "4.17.12",
		ids:         []string{"CVE-2019-10744"},
		severity:    scan.SeverityCritical,
		description: "Lodash versions before 4.17.12 contain a prototype pollution vulnerability",
	},
	{
		name:        "Moment.js",
		pattern:     regexp.MustCompile(`(?i)moment\.js[/@](\d+\.\d+\.?\d*)`),
		fixed:       "2.29.2",
		ids:         []string{"CVE-2022-24785"},
		severity:    scan.SeverityHigh,
		description: "Moment.js versions before 2.29.2 contain a path traversal vulnerability",
	},
	{
		name:        "Bootstrap",
		pattern:     regexp.MustCompile(`(?i)bootstrap[/@](\d+\.\d+\.?\d*)`),
		fixed:       "3.4.0",
		ids:         []string{"CVE-2019-8331"},
		severity:    scan.SeverityMedium,
		description: "Bootstrap versions before 3.4.0 contain XSS in tooltip/popover",
	},
}

// DetectVulnerableLibraries reports each vulnerable library version once.
func DetectVulnerableLibraries(body string) []VulnerableLibrary {
	var found []VulnerableLibrary
	seen := make(map[string]bool)
	for _, adv := range libraryAdvisories {
		for _, match := range adv.pattern.FindAllStringSubmatch(body, -1) {
			version := match[1]
			key := adv.name + "@" + version
			if seen[key] || compareVersion(version, adv.fixed) >= 0 {
				continue
			}
			seen[key] = true
			found = append(found, VulnerableLibrary{
				Name:             adv.name,
				DetectedVersion:  version,
				VulnerabilityIDs: adv.ids,
				Severity:         adv.severity,
				Description:      adv.description,
				Recommendation:   fmt.Sprintf("Update %s to version %s or later", adv.name, adv.fixed),
			})
		}
	}
	return found
}

// compareVersion compares two dotted versions.
// Returns: -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func compareVersion(v1, v2 string) int {
	parts1 := strings.Split(v1, ".")
	parts2 := strings.Split(v2, ".")

	maxLen := max(len(parts1), len(parts2))
	for len(parts1) < maxLen {
		parts1 = append(parts1, "0")
	}
	for len(parts2) < maxLen {
		parts2 = append(parts2, "0")
	}

	for i := 0; i < maxLen; i++ {
		var n1, n2 int
		if _, err := fmt.Sscanf(parts1[i], "%d", &n1); err != nil {
			n1 = 0
		}
		if _, err := fmt.Sscanf(parts2[i], "%d", &n2); err != nil {
			n2 = 0
		}

		if n1 < n2 {
			return -1
		}
		if n1 > n2 {
			return 1
		}
	}
	return 0
}
