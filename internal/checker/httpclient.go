package checker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/khanhnv2901/webrecon/internal/shared/constants"
)

// ClientConfig configures NewHTTPClient.
type ClientConfig struct {
	Timeout         time.Duration
	FollowRedirects bool
	UserAgent       string
	// Transport overrides the default transport, mostly for tests.
	Transport http.RoundTripper
}

// NewHTTPClient returns a client that accepts invalid certificates. When
// FollowRedirects is false the client hands 3xx responses back unfollowed so
// probes can inspect the Location header.
func NewHTTPClient(cfg ClientConfig) *http.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.AuditorTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = constants.DefaultUserAgent
	}
	base := cfg.Transport
	if base == nil {
		base = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			// #nosec G402 -- scanning self-signed and test targets is the point
			TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
			TLSHandshakeTimeout:   cfg.Timeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: cfg.Timeout,
		}
	}
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &userAgentTransport{base: base, userAgent: cfg.UserAgent},
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

// Page is a fetched response with its body already read and closed.
type Page struct {
	URL        string
	StatusCode int
	Header     http.Header
	Cookies    []*http.Cookie
	Body       string
	TLS        *tls.ConnectionState
	// FinalScheme is the scheme of the request that produced the response,
	// after any redirects the client followed.
	FinalScheme string
}

// Fetch issues a GET and reads at most MaxBodyBytes of the body.
func Fetch(ctx context.Context, client *http.Client, target string) (*Page, error) {
	return FetchWithHeaders(ctx, client, target, nil)
}

// FetchWithHeaders is Fetch with extra request headers.
func FetchWithHeaders(ctx context.Context, client *http.Client, target string, headers http.Header) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	page := &Page{
		URL:        target,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Cookies:    resp.Cookies(),
		Body:       string(body),
		TLS:        resp.TLS,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		page.FinalScheme = resp.Request.URL.Scheme
	}
	return page, nil
}

// IsSuccess reports a 2xx status.
func (p *Page) IsSuccess() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}
