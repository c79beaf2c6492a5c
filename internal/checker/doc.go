// Package checker holds the passive scan stages and the response analysers
// they share with the probe engine.
//
// Architecture overview:
//
//   - HeaderAuditor fetches the target once and grades a fixed checklist of
//     security headers, plus disclosure entries for Server/X-Powered-By.
//   - CertificateAuditor performs the coarse HTTPS-usage assessment. The
//     detailed GradeTLSProfile scoring lives next to it as a pure helper
//     used by the CLI report view.
//   - TechnologyFingerprinter matches curated signatures against headers and
//     the HTML body (goquery extracts script, link and generator markers).
//   - AnalyzeCookies, AnalyzeCORS and AnalyzeClientSecurity inspect a single
//     response and are reused by the vulnerability probes in internal/probe.
//   - NewHTTPClient builds the outbound client every stage uses: invalid
//     certificates are accepted so self-signed targets stay reachable.
package checker
