package checker

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/khanhnv2901/webrecon/internal/domain/scan"
)

// versionSSL30 represents the legacy SSL 3.0 protocol version (0x0300).
const versionSSL30 uint16 = 0x0300

// NoHTTPSNote is the single vulnerability note for targets not served over HTTPS.
const NoHTTPSNote = "HTTPS not used: traffic is transmitted without encryption"

// assumedTLSVersions is reported when the connection state is unavailable.
var assumedTLSVersions = []string{"TLS 1.2+"}

// Weak cipher suites recognised when naming a negotiated suite
var weakCipherSuites = map[uint16]string{
	tls.TLS_RSA_WITH_RC4_128_SHA:            "TLS_RSA_WITH_RC4_128_SHA",
	tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA:       "TLS_RSA_WITH_3DES_EDE_CBC_SHA",
	tls.TLS_ECDHE_ECDSA_WITH_RC4_128_SHA:    "TLS_ECDHE_ECDSA_WITH_RC4_128_SHA",
	tls.TLS_ECDHE_RSA_WITH_RC4_128_SHA:      "TLS_ECDHE_RSA_WITH_RC4_128_SHA",
	tls.TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA: "TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA",
}

// CertificateAuditor is the coarse transport-security stage: it checks that
// the target is served over HTTPS and records what the handshake exposed.
type CertificateAuditor struct {
	client *http.Client
	logger *zap.Logger
}

func NewCertificateAuditor(client *http.Client, logger *zap.Logger) *CertificateAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateAuditor{client: client, logger: logger}
}

// Audit issues one GET against the https form of the target. An http target
// grades F with a single note. For https targets a failed request is a stage
// error, and a redirect that downgrades to http also grades F.
func (a *CertificateAuditor) Audit(ctx context.Context, target string) (*scan.CertificateAssessment, error) {
	info, err := ValidateScanTarget(target)
	if err != nil {
		return nil, err
	}

	assessment := &scan.CertificateAssessment{
		Subject:         info.Host,
		TLSVersions:     append([]string(nil), assumedTLSVersions...),
		Vulnerabilities: []string{},
	}

	page, fetchErr := Fetch(ctx, a.client, HTTPSForm(info.FullURL))
	if fetchErr != nil && info.IsEncrypted() {
		return nil, fmt.Errorf("https request to %s: %w", info.Host, fetchErr)
	}
	if fetchErr != nil {
		a.logger.Debug("https form unreachable", zap.String("target", target), zap.Error(fetchErr))
	}
	if page != nil {
		applyConnectionState(assessment, page.TLS)
	}

	encrypted := info.IsEncrypted() && page != nil && page.FinalScheme == "https"
	if !encrypted {
		assessment.Grade = scan.GradeF
		assessment.Vulnerabilities = []string{NoHTTPSNote}
		return assessment, nil
	}
	assessment.Grade = scan.GradeA
	return assessment, nil
}

func applyConnectionState(assessment *scan.CertificateAssessment, state *tls.ConnectionState) {
	if state == nil {
		return
	}
	assessment.TLSVersions = []string{tlsVersionString(state.Version)}
	assessment.CipherSuites = []string{cipherSuiteString(state.CipherSuite)}
	if len(state.PeerCertificates) == 0 {
		return
	}
	cert := state.PeerCertificates[0]
	if cert.Subject.CommonName != "" {
		assessment.Subject = cert.Subject.CommonName
	}
	assessment.Issuer = cert.Issuer.CommonName
	if assessment.Issuer == "" && len(cert.Issuer.Organization) > 0 {
		assessment.Issuer = cert.Issuer.Organization[0]
	}
	from, to := cert.NotBefore.UTC(), cert.NotAfter.UTC()
	assessment.ValidFrom = &from
	assessment.ValidTo = &to
}

// GradeTLSProfile scores an offered protocol/cipher profile: start at 100,
// subtract 20 when TLS 1.0 or 1.1 is offered, 10 when TLS 1.3 is not, and 30
// when an RC4 or 3DES suite is offered. Audit keeps its coarse A/F grade.
func GradeTLSProfile(versions, cipherSuites []string) scan.Grade {
	score := 100
	if len(versions) > 0 {
		if containsVersion(versions, "TLS10") || containsVersion(versions, "TLS11") {
			score -= 20
		}
		if !containsVersion(versions, "TLS13") {
			score -= 10
		}
	}
	if hasWeakCipher(cipherSuites, "RC4") || hasWeakCipher(cipherSuites, "3DES") {
		score -= 30
	}

	switch {
	case score >= 90:
		return scan.GradeAPlus
	case score >= 80:
		return scan.GradeA
	case score >= 70:
		return scan.GradeB
	case score >= 60:
		return scan.GradeC
	case score >= 50:
		return scan.GradeD
	default:
		return scan.GradeF
	}
}

// ProfileVulnerabilities lists the weaknesses GradeTLSProfile penalises.
func ProfileVulnerabilities(versions, cipherSuites []string) []string {
	vulns := []string{}
	if containsVersion(versions, "TLS10") {
		vulns = append(vulns, "Deprecated TLS 1.0 supported (POODLE/BEAST exposure)")
	}
	if containsVersion(versions, "TLS11") {
		vulns = append(vulns, "Deprecated TLS 1.1 supported")
	}
	if hasWeakCipher(cipherSuites, "RC4") {
		vulns = append(vulns, "Insecure RC4 cipher suite offered")
	}
	if hasWeakCipher(cipherSuites, "3DES") {
		vulns = append(vulns, "Weak 3DES cipher suite offered")
	}
	return vulns
}

// normalizeVersion folds "TLS 1.0", "TLS1_0" and "tls1.0" onto "TLS10".
func normalizeVersion(v string) string {
	return strings.NewReplacer(" ", "", "_", "", ".", "", "V", "").Replace(strings.ToUpper(v))
}

func containsVersion(versions []string, want string) bool {
	for _, v := range versions {
		if normalizeVersion(v) == want {
			return true
		}
	}
	return false
}

func hasWeakCipher(suites []string, marker string) bool {
	for _, s := range suites {
		if strings.Contains(strings.ToUpper(s), marker) {
			return true
		}
	}
	return false
}

// tlsVersionString converts TLS version constant to string
func tlsVersionString(version uint16) string {
	switch version {
	case versionSSL30:
		return "SSL 3.0"
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("Unknown (0x%04x)", version)
	}
}

// cipherSuiteString converts cipher suite constant to string
func cipherSuiteString(suite uint16) string {
	if name, ok := weakCipherSuites[suite]; ok {
		return name
	}
	if name := tls.CipherSuiteName(suite); name != "" {
		return name
	}
	return fmt.Sprintf("Unknown (0x%04x)", suite)
}
