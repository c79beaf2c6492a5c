package checker

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	sharedErrors "github.com/khanhnv2901/webrecon/internal/shared/errors"
)

// TargetInfo contains parsed target information
type TargetInfo struct {
	Original string // Original target string
	Scheme   string // http or https
	Host     string // Hostname (without protocol, path, port)
	Port     string // Port if specified
	Path     string // Path if specified
	FullURL  string // Full normalized URL
}

// IsEncrypted reports whether the target uses https.
func (t *TargetInfo) IsEncrypted() bool {
	return t.Scheme == "https"
}

// ValidateScanTarget accepts only absolute http and https URLs with a host.
func ValidateScanTarget(target string) (*TargetInfo, error) {
	trimmed := strings.TrimSpace(target)
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return nil, fmt.Errorf("%w: target %q must start with http:// or https://", sharedErrors.ErrInvalidInput, target)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: target %q: %v", sharedErrors.ErrInvalidInput, target, err)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("%w: target %q has no host", sharedErrors.ErrInvalidInput, target)
	}
	return &TargetInfo{
		Original: target,
		Scheme:   strings.ToLower(parsed.Scheme),
		Host:     parsed.Hostname(),
		Port:     parsed.Port(),
		Path:     parsed.Path,
		FullURL:  parsed.String(),
	}, nil
}

// HTTPSForm rewrites an http:// target to https://; other targets are returned unchanged.
func HTTPSForm(target string) string {
	if len(target) >= 7 && strings.EqualFold(target[:7], "http://") {
		return "https://" + target[7:]
	}
	return target
}

// HTTPForm rewrites an https:// target to http://; other targets are returned unchanged.
func HTTPForm(target string) string {
	if len(target) >= 8 && strings.EqualFold(target[:8], "https://") {
		return "http://" + target[8:]
	}
	return target
}

// JoinPath appends an absolute path to the target's path. The target's query
// and fragment are dropped so the request reaches the joined path.
func JoinPath(target, p string) string {
	u, err := url.Parse(target)
	if err != nil {
		return strings.TrimRight(target, "/") + "/" + strings.TrimLeft(p, "/")
	}
	joined := path.Join("/", u.Path, p)
	if strings.HasSuffix(p, "/") && joined != "/" {
		joined += "/"
	}
	u.Path = joined
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// WithQuery sets one query parameter on the target, keeping its other
// parameters. The fragment is dropped because it is never sent.
func WithQuery(target, param, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		return target + sep + url.QueryEscape(param) + "=" + url.QueryEscape(value)
	}
	q := u.Query()
	q.Set(param, value)
	u.RawQuery = q.Encode()
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
