package checker

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

// techSignature matches when any marker occurs in the lower-cased haystack.
type techSignature struct {
	name       string
	category   scan.TechCategory
	markers    []string
	confidence int
}

var frameworkSignatures = []techSignature{
	{"React", scan.CategoryFramework, []string{"_reactroot", "react-", "__react"}, 85},
	{"Vue.js", scan.CategoryFramework, []string{"data-v-", "__vue__", "vue.js"}, 85},
	{"Angular", scan.CategoryFramework, []string{"ng-version", "angular", "_nghost"}, 85},
	{"Next.js", scan.CategoryFramework, []string{"__next", "_next/static"}, 90},
	{"Nuxt.js", scan.CategoryFramework, []string{"__nuxt", "_nuxt"}, 90},
	{"Svelte", scan.CategoryFramework, []string{"svelte-", "__svelte"}, 85},
}

var cssSignatures = []techSignature{
	{"Bootstrap", scan.CategoryFramework, []string{"bootstrap", "btn btn-"}, 80},
}

var analyticsSignatures = []techSignature{
	{"Google Analytics", scan.CategoryAnalytics, []string{"google-analytics.com", "gtag", "ga.js"}, 95},
	{"Google Tag Manager", scan.CategoryAnalytics, []string{"googletagmanager.com", "gtm.js"}, 95},
	{"Facebook Pixel", scan.CategoryAnalytics, []string{"facebook.net/en_us/fbevents.js", "fbq("}, 90},
	{"Hotjar", scan.CategoryAnalytics, []string{"hotjar.com", "hjid"}, 90},
	{"Mixpanel", scan.CategoryAnalytics, []string{"mixpanel.com", "mixpanel"}, 85},
}

// cdnSignatures are also matched against header names and values.
var cdnSignatures = []techSignature{
	{"Cloudflare", scan.CategoryCDN, []string{"cloudflare.com", "cf-ray"}, 90},
	{"Fastly", scan.CategoryCDN, []string{"fastly.net"}, 85},
	{"Akamai", scan.CategoryCDN, []string{"akamai.net", "akamaihd.net"}, 85},
	{"Amazon CloudFront", scan.CategoryCDN, []string{"cloudfront.net"}, 90},
}

// headerProduct detects a product named in a response header and extracts
// its version from "name/1.2.3".
type headerProduct struct {
	header   string
	name     string
	token    string
	category scan.TechCategory
	version  *regexp.Regexp
}

func newHeaderProduct(header, name, token string, category scan.TechCategory) headerProduct {
	return headerProduct{
		header:   header,
		name:     name,
		token:    token,
		category: category,
		version:  regexp.MustCompile(`(?i)` + regexp.QuoteMeta(token) + `/(\d+\.[\d.]+)`),
	}
}

var headerProducts = []headerProduct{
	newHeaderProduct("Server", "Nginx", "nginx", scan.CategoryServer),
	newHeaderProduct("Server", "Apache", "apache", scan.CategoryServer),
	newHeaderProduct("Server", "Microsoft IIS", "microsoft-iis", scan.CategoryServer),
	newHeaderProduct("X-Powered-By", "PHP", "php", scan.CategoryLanguage),
	newHeaderProduct("X-Powered-By", "ASP.NET", "asp.net", scan.CategoryFramework),
	newHeaderProduct("X-Powered-By", "Express", "express", scan.CategoryFramework),
}

const headerProductConfidence = 95

// cmsGenerators map a <meta name="generator"> prefix to a CMS.
var cmsGenerators = []string{"WordPress", "Drupal", "Joomla", "Ghost", "Hugo", "Wix"}

// tailwindPrefixes are utility-class prefixes; three distinct hits count as Tailwind.
var tailwindPrefixes = []string{
	"flex-", "grid-", "bg-", "text-", "p-", "m-", "w-", "h-",
	"rounded-", "shadow-", "hover:", "focus:", "md:", "lg:",
}

const (
	tailwindThreshold   = 3
	tailwindConfidence  = 75
	generatorConfidence = 95
)

func (p headerProduct) versionIn(value string) string {
	if m := p.version.FindStringSubmatch(value); len(m) > 1 {
		return m[1]
	}
	return ""
}

// TechnologyFingerprinter matches curated signatures against a single response.
type TechnologyFingerprinter struct {
	client *http.Client
	logger *zap.Logger
}

func NewTechnologyFingerprinter(client *http.Client, logger *zap.Logger) *TechnologyFingerprinter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TechnologyFingerprinter{client: client, logger: logger}
}

// Detect fetches the target once and fingerprints the response.
func (f *TechnologyFingerprinter) Detect(ctx context.Context, target string) ([]scan.DetectedTechnology, error) {
	page, err := Fetch(ctx, f.client, target)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	techs := FingerprintPage(page.Header, page.Body)
	f.logger.Debug("fingerprint complete", zap.String("target", target), zap.Int("technologies", len(techs)))
	return techs, nil
}

// FingerprintPage reports each technology at most once, with the confidence of
// the first signature that matched it.
func FingerprintPage(headers http.Header, body string) []scan.DetectedTechnology {
	d := &detections{seen: make(map[string]bool)}

	for _, p := range headerProducts {
		value := headers.Get(p.header)
		if value == "" || !strings.Contains(strings.ToLower(value), p.token) {
			continue
		}
		d.add(scan.DetectedTechnology{Name: p.name, Version: p.versionIn(value), Category: p.category, Confidence: headerProductConfidence})
	}

	markup := extractMarkup(body)
	for _, gen := range markup.generators {
		for _, cms := range cmsGenerators {
			if strings.HasPrefix(strings.ToLower(gen), strings.ToLower(cms)) {
				version := strings.TrimSpace(gen[len(cms):])
				d.add(scan.DetectedTechnology{Name: cms, Version: version, Category: scan.CategoryCMS, Confidence: generatorConfidence})
			}
		}
	}

	haystack := strings.ToLower(body) + "\n" + strings.ToLower(strings.Join(markup.resources, "\n"))

	matchSignatures(d, frameworkSignatures, haystack)
	matchSignatures(d, cssSignatures, haystack)
	if hasTailwindClasses(markup.classes) {
		d.add(scan.DetectedTechnology{Name: "Tailwind CSS", Category: scan.CategoryFramework, Confidence: tailwindConfidence})
	}
	matchSignatures(d, analyticsSignatures, haystack)

	headerText := flattenHeaders(headers)
	for _, sig := range cdnSignatures {
		if containsAny(haystack, sig.markers) || containsAny(headerText, sig.markers) {
			d.add(scan.DetectedTechnology{Name: sig.name, Category: sig.category, Confidence: sig.confidence})
		}
	}

	return d.list
}

type detections struct {
	seen map[string]bool
	list []scan.DetectedTechnology
}

func (d *detections) add(t scan.DetectedTechnology) {
	if d.seen[t.Name] {
		return
	}
	d.seen[t.Name] = true
	d.list = append(d.list, t)
}

func matchSignatures(d *detections, sigs []techSignature, haystack string) {
	for _, sig := range sigs {
		if containsAny(haystack, sig.markers) {
			d.add(scan.DetectedTechnology{Name: sig.name, Category: sig.category, Confidence: sig.confidence})
		}
	}
}

func containsAny(haystack string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(haystack, m) {
			return true
		}
	}
	return false
}

func flattenHeaders(headers http.Header) string {
	var b strings.Builder
	for key, values := range headers {
		b.WriteString(strings.ToLower(key))
		b.WriteByte(':')
		b.WriteString(strings.ToLower(strings.Join(values, ",")))
		b.WriteByte('\n')
	}
	return b.String()
}

type markup struct {
	resources  []string // script src and link href values
	generators []string
	classes    []string
}

func extractMarkup(body string) markup {
	var m markup
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return m
	}
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		m.resources = append(m.resources, s.AttrOr("src", ""))
	})
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		m.resources = append(m.resources, s.AttrOr("href", ""))
	})
	doc.Find(`meta[name="generator"]`).Each(func(_ int, s *goquery.Selection) {
		if content := strings.TrimSpace(s.AttrOr("content", "")); content != "" {
			m.generators = append(m.generators, content)
		}
	})
	doc.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		m.classes = append(m.classes, strings.Fields(s.AttrOr("class", ""))...)
	})
	return m
}

// hasTailwindClasses counts distinct utility prefixes seen at the start of a class.
func hasTailwindClasses(classes []string) bool {
	hits := 0
	for _, prefix := range tailwindPrefixes {
		for _, class := range classes {
			if strings.HasPrefix(class, prefix) {
				hits++
				break
			}
		}
		if hits >= tailwindThreshold {
			return true
		}
	}
	return false
}
