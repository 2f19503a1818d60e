// Package webcontent fetches and extracts plain text from a URL for
// SPEC_FULL.md §4.8/§12's "URL content fetching with source attribution"
// feature: the Orchestrator calls Service.Fetch before building context,
// attributing the fetched content to its source URL. Grounded on the same
// domain allow/deny + redirect-cap idiom as pkg/tools.WebFetch, which in
// turn adapts pkg/tool/webtool/web_request.go.
package webcontent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/kbagents/orchestrator/pkg/httpclient"
)

// Config restricts which URLs the Orchestrator's background URL-context
// fetch may reach.
type Config struct {
	Timeout         time.Duration
	MaxResponseSize int64
	AllowedDomains  []string
	DeniedDomains   []string
	UserAgent       string
}

// Service fetches a URL and returns its visible text, stripped of markup.
type Service struct {
	cfg    Config
	client *httpclient.Client
}

func New(cfg Config) *Service {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxResponseSize == 0 {
		cfg.MaxResponseSize = 5 * 1024 * 1024
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "orchestrator/1.0"
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return nil
		},
	}

	return &Service{cfg: cfg, client: httpclient.New(httpclient.WithHTTPClient(httpClient))}
}

// Fetch satisfies orchestrator.WebFetcher: GET the URL, strip HTML if the
// response looks like it, and return the resulting text. Domain-restricted
// the same way pkg/tools.WebFetch is, independently configured since the
// Orchestrator's URL-context fetch runs outside the tool-call path and has
// no agent permission check guarding it.
func (s *Service) Fetch(ctx context.Context, url string) (string, error) {
	if err := validateDomain(s.cfg, url); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("webcontent: invalid url: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webcontent: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, s.cfg.MaxResponseSize+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return "", fmt.Errorf("webcontent: reading body: %w", err)
	}
	if int64(len(raw)) > s.cfg.MaxResponseSize {
		return "", fmt.Errorf("webcontent: response from %s exceeds maximum size", url)
	}

	content := string(raw)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		content = stripHTML(content)
	}
	return strings.TrimSpace(content), nil
}

func validateDomain(cfg Config, rawURL string) error {
	if len(cfg.AllowedDomains) == 0 && len(cfg.DeniedDomains) == 0 {
		return nil
	}
	host := hostOf(rawURL)
	for _, denied := range cfg.DeniedDomains {
		if matchesDomain(host, denied) {
			return fmt.Errorf("webcontent: domain not allowed: %s", host)
		}
	}
	if len(cfg.AllowedDomains) > 0 {
		for _, allowed := range cfg.AllowedDomains {
			if matchesDomain(host, allowed) {
				return nil
			}
		}
		return fmt.Errorf("webcontent: domain not in allow list: %s", host)
	}
	return nil
}

func hostOf(rawURL string) string {
	rest := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	if idx := strings.IndexAny(rest, "/?#"); idx != -1 {
		rest = rest[:idx]
	}
	if idx := strings.Index(rest, ":"); idx != -1 {
		rest = rest[:idx]
	}
	return rest
}

func matchesDomain(host, pattern string) bool {
	if host == pattern {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:])
	}
	return false
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

func stripHTML(html string) string {
	text := htmlTagPattern.ReplaceAllString(html, " ")
	return strings.Join(strings.Fields(text), " ")
}
