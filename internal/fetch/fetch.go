// Package fetch provides bounded liveness probes for candidate resource URLs.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultProbeTimeout bounds the lightweight HEAD check.
	DefaultProbeTimeout = 5 * time.Second
	// DefaultFetchTimeout bounds the heavier GET fallback.
	DefaultFetchTimeout = 8 * time.Second
	// DefaultMaxBodyBytes caps how much of a page the GET fallback reads.
	DefaultMaxBodyBytes = 256 << 10
)

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; StudyResources/1.0)"

// Result holds the outcome of a probe.
type Result struct {
	URL        string
	StatusCode int
	Method     string // method of the request that decided the outcome
	Alive      bool
	Title      string // page <title>, only when the GET fallback ran
}

// Error represents an error during URL fetching.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the probe behavior.
type Options struct {
	ProbeTimeout time.Duration
	FetchTimeout time.Duration
	MaxBodyBytes int64
	UserAgent    string
	Headers      map[string]string
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// DefaultOptions returns sensible defaults for probing.
func DefaultOptions() *Options {
	return &Options{
		ProbeTimeout: DefaultProbeTimeout,
		FetchTimeout: DefaultFetchTimeout,
		MaxBodyBytes: DefaultMaxBodyBytes,
		UserAgent:    DefaultUserAgent,
	}
}

// Prober checks whether URLs are alive. Redirects are not followed: a 3xx
// answer already proves the resource exists.
type Prober struct {
	client *http.Client
	opts   Options
}

// NewProber creates a Prober. A nil opts uses DefaultOptions.
func NewProber(opts *Options) *Prober {
	defaults := DefaultOptions()
	if opts == nil {
		opts = defaults
	}
	o := *opts
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = defaults.ProbeTimeout
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = defaults.FetchTimeout
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if o.UserAgent == "" {
		o.UserAgent = defaults.UserAgent
	}
	return &Prober{
		client: &http.Client{
			Transport: o.Transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		opts: o,
	}
}

// Probe issues a HEAD request; when the host rejects it (error or non-2xx/3xx
// status) a single bounded GET decides. Only an invalid URL is an error; a
// dead resource is reported through Result.Alive.
func (p *Prober) Probe(ctx context.Context, urlStr string) (*Result, error) {
	if err := validateURL(urlStr); err != nil {
		return nil, err
	}

	result := &Result{URL: urlStr, Method: http.MethodHead}
	status, _, err := p.do(ctx, http.MethodHead, urlStr, p.opts.ProbeTimeout)
	if err == nil && isAlive(status) {
		result.StatusCode = status
		result.Alive = true
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, &Error{URL: urlStr, Message: "probe cancelled", Cause: ctx.Err()}
	}

	result.Method = http.MethodGet
	status, body, err := p.do(ctx, http.MethodGet, urlStr, p.opts.FetchTimeout)
	if err != nil {
		return result, nil
	}
	result.StatusCode = status
	result.Alive = isAlive(status)
	if result.Alive && len(body) > 0 {
		result.Title, _ = ExtractTitle(string(body))
	}
	return result, nil
}

// Title fetches the page with one bounded GET and returns its title. A page
// that does not answer 2xx/3xx is an error.
func (p *Prober) Title(ctx context.Context, urlStr string) (string, error) {
	if err := validateURL(urlStr); err != nil {
		return "", err
	}
	status, body, err := p.do(ctx, http.MethodGet, urlStr, p.opts.FetchTimeout)
	if err != nil {
		return "", err
	}
	if !isAlive(status) {
		return "", &Error{URL: urlStr, Message: fmt.Sprintf("unexpected status %d", status)}
	}
	return ExtractTitle(string(body))
}

func (p *Prober) do(ctx context.Context, method, urlStr string, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return 0, nil, &Error{URL: urlStr, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", p.opts.UserAgent)
	for key, value := range p.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, &Error{URL: urlStr, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if method == http.MethodHead {
		return resp.StatusCode, nil, nil
	}
	// A short read still leaves enough of the page for the title.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, p.opts.MaxBodyBytes))
	return resp.StatusCode, body, nil
}

func isAlive(status int) bool {
	return status >= 200 && status < 400
}

func validateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return &Error{URL: urlStr, Message: "invalid URL", Cause: err}
	}
	return nil
}

// ExtractTitle returns the document title, falling back to og:title.
func ExtractTitle(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	if title := cleanWhitespace(doc.Find("title").First().Text()); title != "" {
		return title, nil
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		return cleanWhitespace(og), nil
	}
	return "", nil
}

// cleanWhitespace collapses runs of whitespace into single spaces.
func cleanWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
